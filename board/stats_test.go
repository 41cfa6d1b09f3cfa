package board

import (
	"testing"
	"time"

	"taskflow/domain"
)

func TestComputeStats(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	tasks := []domain.Task{
		{ID: "1", Status: domain.StatusCompleted, DueDate: &past},
		{ID: "2", Status: domain.StatusTodo, DueDate: &past},
		{ID: "3", Status: domain.StatusInProgress, DueDate: &future},
		{ID: "4", Status: domain.StatusTodo},
	}
	got := ComputeStats(tasks, now)
	want := Stats{Total: 4, Completed: 1, Overdue: 1}
	if got != want {
		t.Fatalf("ComputeStats() = %+v, want %+v", got, want)
	}
}

func TestSort(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d1 := base.AddDate(0, 0, 5)
	d2 := base.AddDate(0, 0, 2)
	tasks := func() []domain.Task {
		return []domain.Task{
			{ID: "a", Title: "banana", Priority: domain.PriorityLow, DueDate: &d1, CreatedAt: base},
			{ID: "b", Title: "Apple", Priority: domain.PriorityHigh, CreatedAt: base.Add(time.Minute)},
			{ID: "c", Title: "cherry", Priority: domain.PriorityMedium, DueDate: &d2, CreatedAt: base.Add(2 * time.Minute)},
		}
	}
	tests := []struct {
		order string
		want  string
	}{
		{order: domain.SortByDueDate, want: "cab"},
		{order: domain.SortByPriority, want: "bca"},
		{order: domain.SortByTitle, want: "bac"},
		{order: domain.SortByCreatedAt, want: "abc"},
		{order: "bogus", want: "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.order, func(t *testing.T) {
			list := tasks()
			Sort(list, tt.order)
			got := ""
			for _, task := range list {
				got += task.ID
			}
			if got != tt.want {
				t.Fatalf("Sort(%s) = %s, want %s", tt.order, got, tt.want)
			}
		})
	}
}

func TestBoardStatsAndSorted(t *testing.T) {
	b, _ := newTestBoard(t)
	due := boardNow.Add(2 * time.Hour)
	for _, title := range []string{"zeta", "alpha"} {
		if _, err := b.AddTask(t.Context(), domain.TaskFields{Title: ptr(title), DueDate: domain.Some(due)}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	b.now = func() time.Time { return boardNow.Add(3 * time.Hour) }

	if s := b.Stats(); s.Total != 2 || s.Overdue != 2 || s.Completed != 0 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	sorted := b.Sorted(domain.SortByTitle)
	if sorted[0].Title != "alpha" || sorted[1].Title != "zeta" {
		t.Fatalf("unexpected order: %+v", sorted)
	}
}

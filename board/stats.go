package board

import (
	"sort"
	"strings"
	"time"

	"taskflow/domain"
)

// Stats are the counters shown above the task list.
type Stats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Overdue   int `json:"overdue"`
}

// ComputeStats counts overdue tasks as those due before now and not completed.
func ComputeStats(tasks []domain.Task, now time.Time) Stats {
	s := Stats{Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed() {
			s.Completed++
		}
		if t.Overdue(now) {
			s.Overdue++
		}
	}
	return s
}

// Sort orders tasks in place by one of the settings sort orders. Ties and
// unknown orders fall back to creation time. Tasks without a due date sort last.
func Sort(tasks []domain.Task, order string) {
	byCreated := func(a, b domain.Task) bool { return a.CreatedAt.Before(b.CreatedAt) }
	var less func(a, b domain.Task) bool
	switch order {
	case domain.SortByDueDate:
		less = func(a, b domain.Task) bool {
			switch {
			case a.DueDate == nil && b.DueDate == nil:
				return byCreated(a, b)
			case a.DueDate == nil:
				return false
			case b.DueDate == nil:
				return true
			case !a.DueDate.Equal(*b.DueDate):
				return a.DueDate.Before(*b.DueDate)
			}
			return byCreated(a, b)
		}
	case domain.SortByPriority:
		less = func(a, b domain.Task) bool {
			if a.Priority.Rank() != b.Priority.Rank() {
				return a.Priority.Rank() < b.Priority.Rank()
			}
			return byCreated(a, b)
		}
	case domain.SortByTitle:
		less = func(a, b domain.Task) bool {
			ta, tb := strings.ToLower(a.Title), strings.ToLower(b.Title)
			if ta != tb {
				return ta < tb
			}
			return byCreated(a, b)
		}
	default:
		less = byCreated
	}
	sort.SliceStable(tasks, func(i, j int) bool { return less(tasks[i], tasks[j]) })
}

// Sorted returns the local tasks in the given sort order.
func (b *Board) Sorted(order string) []domain.Task {
	tasks := b.Tasks()
	Sort(tasks, order)
	return tasks
}

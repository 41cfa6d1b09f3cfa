package domain

import (
	"strings"
	"time"
)

// Priority ranks how urgent a task is.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities from most to least urgent. Unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

// Status is the progress state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Task represents a single item on the board.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Notes       string     `json:"notes"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	DueDate     *time.Time `json:"dueDate"`
	CategoryID  *string    `json:"categoryId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TaskFields carries the caller supplied fields of a create or a partial update.
// Nil pointers and unset Nullable fields are left untouched.
type TaskFields struct {
	Title       *string             `json:"title,omitempty"`
	Description *string             `json:"description,omitempty"`
	Notes       *string             `json:"notes,omitempty"`
	Priority    *Priority           `json:"priority,omitempty"`
	Status      *Status             `json:"status,omitempty"`
	DueDate     Nullable[time.Time] `json:"dueDate"`
	CategoryID  Nullable[string]    `json:"categoryId"`
}

// Empty reports whether the patch carries no field at all.
func (f TaskFields) Empty() bool {
	return f.Title == nil && f.Description == nil && f.Notes == nil && f.Priority == nil &&
		f.Status == nil && !f.DueDate.Set && !f.CategoryID.Set
}

// Trimmed returns a copy with surrounding whitespace removed from the text fields.
func (f TaskFields) Trimmed() TaskFields {
	trim := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := strings.TrimSpace(*s)
		return &v
	}
	f.Title = trim(f.Title)
	f.Description = trim(f.Description)
	f.Notes = trim(f.Notes)
	return f
}

// NewTask builds a task from caller fields merged over the defaults.
func NewTask(id string, f TaskFields, now time.Time) Task {
	t := Task{
		ID:        id,
		Priority:  PriorityMedium,
		Status:    StatusTodo,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return t.Apply(f)
}

// Apply performs a shallow merge of f over t. Timestamps are not touched.
func (t Task) Apply(f TaskFields) Task {
	t = t.Clone()
	if f.Title != nil {
		t.Title = *f.Title
	}
	if f.Description != nil {
		t.Description = *f.Description
	}
	if f.Notes != nil {
		t.Notes = *f.Notes
	}
	if f.Priority != nil {
		t.Priority = *f.Priority
	}
	if f.Status != nil {
		t.Status = *f.Status
	}
	if f.DueDate.Set {
		t.DueDate = f.DueDate.Clone()
	}
	if f.CategoryID.Set {
		t.CategoryID = f.CategoryID.Clone()
	}
	return t
}

// Clone returns a deep copy so callers cannot alias the pointer fields.
func (t Task) Clone() Task {
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	if t.CategoryID != nil {
		c := *t.CategoryID
		t.CategoryID = &c
	}
	return t
}

// Completed reports whether the task is done.
func (t Task) Completed() bool { return t.Status == StatusCompleted }

// Overdue reports whether the task is past its due date and still open.
func (t Task) Overdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && !t.Completed()
}

// InCategory reports whether the task references the given category id.
func (t Task) InCategory(id string) bool {
	return t.CategoryID != nil && *t.CategoryID == id
}

// TaskKind describes tasks to the generic backends.
var TaskKind = Kind[Task, TaskFields]{
	Name:   "task",
	Plural: "tasks",
	New:    NewTask,
	Merge: func(t Task, f TaskFields, now time.Time) Task {
		t = t.Apply(f)
		t.UpdatedAt = NextStamp(t.UpdatedAt, now)
		return t
	},
	Clone: Task.Clone,
	ID:    func(t Task) string { return t.ID },
}

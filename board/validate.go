package board

import (
	"sort"
	"strings"
	"time"

	"taskflow/domain"
)

// ValidationError lists the rejected fields with a message for each.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = msg
}

// StartOfDay returns midnight of t in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ValidateTask trims the text fields and checks them. On create the title is
// required; on update it is checked only when supplied. A due date must not
// fall before the start of today.
func ValidateTask(f domain.TaskFields, creating bool, now time.Time) (domain.TaskFields, error) {
	f = f.Trimmed()
	verr := &ValidationError{}
	switch {
	case f.Title == nil && creating:
		verr.add("title", "Title is required")
	case f.Title != nil && *f.Title == "":
		verr.add("title", "Title is required")
	}
	if f.Priority != nil && f.Priority.Rank() > 2 {
		verr.add("priority", "Unknown priority "+string(*f.Priority))
	}
	if f.Status != nil {
		switch *f.Status {
		case domain.StatusTodo, domain.StatusInProgress, domain.StatusCompleted:
		default:
			verr.add("status", "Unknown status "+string(*f.Status))
		}
	}
	if f.DueDate.Value != nil && f.DueDate.Value.Before(StartOfDay(now)) {
		verr.add("dueDate", "Due date cannot be in the past")
	}
	if f.CategoryID.Value != nil {
		id := strings.TrimSpace(*f.CategoryID.Value)
		if id == "" {
			f.CategoryID = domain.Null[string]()
		} else {
			f.CategoryID = domain.Some(id)
		}
	}
	if len(verr.Fields) > 0 {
		return f, verr
	}
	return f, nil
}

// ValidateCategory trims the name and requires it on create.
func ValidateCategory(f domain.CategoryFields, creating bool) (domain.CategoryFields, error) {
	if f.Name != nil {
		name := strings.TrimSpace(*f.Name)
		f.Name = &name
	}
	if (f.Name == nil && creating) || (f.Name != nil && *f.Name == "") {
		return f, &ValidationError{Fields: map[string]string{"name": "Name is required"}}
	}
	return f, nil
}

// ValidateSettings checks the enumerated settings values.
func ValidateSettings(f domain.SettingsFields) error {
	verr := &ValidationError{}
	if f.Theme != nil && *f.Theme != "light" && *f.Theme != "dark" {
		verr.add("theme", "Unknown theme "+*f.Theme)
	}
	if f.TaskSortOrder != nil {
		switch *f.TaskSortOrder {
		case domain.SortByDueDate, domain.SortByPriority, domain.SortByCreatedAt, domain.SortByTitle:
		default:
			verr.add("taskSortOrder", "Unknown sort order "+*f.TaskSortOrder)
		}
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

package domain

import (
	"context"
	"time"
)

// Service is the CRUD contract the UI layer depends on. Every backend
// (memory, remote record API, table storage) and every decorator implements
// it, so callers never know which one is active.
type Service[E any, F any] interface {
	// GetAll returns a copy of every record.
	GetAll(ctx context.Context) ([]E, error)
	// GetByID fails with ErrNotFound when no record has the id.
	GetByID(ctx context.Context, id string) (E, error)
	// Create assigns a new id and stamps CreatedAt/UpdatedAt.
	Create(ctx context.Context, fields F) (E, error)
	// Update merges fields over the stored record and re-stamps UpdatedAt.
	Update(ctx context.Context, id string, fields F) (E, error)
	// Delete removes the record permanently. A nil error acknowledges it.
	Delete(ctx context.Context, id string) error
}

type (
	TaskService     = Service[Task, TaskFields]
	CategoryService = Service[Category, CategoryFields]
)

// Kind bundles the per-entity behaviour the generic backends need.
type Kind[E any, F any] struct {
	Name   string
	Plural string
	// New builds a record from caller fields merged over defaults.
	New func(id string, fields F, now time.Time) E
	// Merge applies a partial update and re-stamps UpdatedAt.
	Merge func(e E, fields F, now time.Time) E
	Clone func(E) E
	ID    func(E) string
}

// NextStamp returns now, or the instant right after prev when the clock has
// not moved past it, so UpdatedAt strictly increases on every update.
func NextStamp(prev, now time.Time) time.Time {
	if !now.After(prev) {
		return prev.Add(time.Nanosecond)
	}
	return now
}

package domain

import (
	"context"
	"time"
)

// SettingsID is the id of the only settings record.
const SettingsID = "user-settings"

// Task sort orders accepted in Settings.TaskSortOrder.
const (
	SortByDueDate   = "dueDate"
	SortByPriority  = "priority"
	SortByCreatedAt = "createdAt"
	SortByTitle     = "title"
)

// Settings represents user configurable options.
type Settings struct {
	ID              string    `json:"id"`
	Theme           string    `json:"theme"`
	DefaultView     string    `json:"defaultView"`
	DefaultCategory string    `json:"defaultCategory"`
	TaskSortOrder   string    `json:"taskSortOrder"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// SettingsFields is a partial settings update.
type SettingsFields struct {
	Theme           *string `json:"theme,omitempty"`
	DefaultView     *string `json:"defaultView,omitempty"`
	DefaultCategory *string `json:"defaultCategory,omitempty"`
	TaskSortOrder   *string `json:"taskSortOrder,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		ID:            SettingsID,
		Theme:         "light",
		DefaultView:   "list",
		TaskSortOrder: SortByDueDate,
	}
}

func (s Settings) Apply(f SettingsFields) Settings {
	if f.Theme != nil {
		s.Theme = *f.Theme
	}
	if f.DefaultView != nil {
		s.DefaultView = *f.DefaultView
	}
	if f.DefaultCategory != nil {
		s.DefaultCategory = *f.DefaultCategory
	}
	if f.TaskSortOrder != nil {
		s.TaskSortOrder = *f.TaskSortOrder
	}
	return s
}

// SettingsService reads and writes the settings record.
type SettingsService interface {
	Get(ctx context.Context, id string) (Settings, error)
	Update(ctx context.Context, id string, fields SettingsFields) (Settings, error)
	// Reset restores the defaults.
	Reset(ctx context.Context, id string) error
}

package domain

import "time"

// Category groups tasks in the sidebar.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CategoryFields carries the caller supplied fields of a category create or update.
type CategoryFields struct {
	Name *string `json:"name,omitempty"`
	Icon *string `json:"icon,omitempty"`
}

// Empty reports whether the patch carries no field at all.
func (f CategoryFields) Empty() bool { return f.Name == nil && f.Icon == nil }

func NewCategory(id string, f CategoryFields, now time.Time) Category {
	c := Category{ID: id, CreatedAt: now, UpdatedAt: now}
	return c.Apply(f)
}

// Apply performs a shallow merge of f over c.
func (c Category) Apply(f CategoryFields) Category {
	if f.Name != nil {
		c.Name = *f.Name
	}
	if f.Icon != nil {
		c.Icon = *f.Icon
	}
	return c
}

// UnknownCategory is displayed for tasks whose category no longer exists.
const UnknownCategory = "Unknown"

var CategoryKind = Kind[Category, CategoryFields]{
	Name:   "category",
	Plural: "categories",
	New:    NewCategory,
	Merge: func(c Category, f CategoryFields, now time.Time) Category {
		c = c.Apply(f)
		c.UpdatedAt = NextStamp(c.UpdatedAt, now)
		return c
	},
	Clone: func(c Category) Category { return c },
	ID:    func(c Category) string { return c.ID },
}

package remote

import (
	"strconv"
	"time"
)

// Codec says how a value is normalised when it crosses the mapping.
type Codec int

const (
	Plain Codec = iota
	// Identifier values are always read back as strings.
	Identifier
	// Date values are written as date-only strings and read back as RFC 3339.
	Date
)

// Field maps one local JSON field to its backend column.
type Field struct {
	Local  string
	Remote string
	// Mirror lists extra backend columns written with the same value. They
	// are read only when Remote is absent.
	Mirror   []string
	ReadOnly bool
	Codec    Codec
}

// FieldMap is the bidirectional mapping between local records and backend rows.
type FieldMap []Field

// TaskFields maps domain.Task to the task table.
var TaskFields = FieldMap{
	{Local: "id", Remote: "Id", ReadOnly: true, Codec: Identifier},
	{Local: "title", Remote: "title", Mirror: []string{"Name"}},
	{Local: "description", Remote: "description"},
	{Local: "notes", Remote: "notes"},
	{Local: "priority", Remote: "priority"},
	{Local: "status", Remote: "status"},
	{Local: "dueDate", Remote: "due_date", Codec: Date},
	{Local: "categoryId", Remote: "category_id", Codec: Identifier},
	{Local: "createdAt", Remote: "CreatedOn", ReadOnly: true, Codec: Date},
	{Local: "updatedAt", Remote: "ModifiedOn", ReadOnly: true, Codec: Date},
}

// CategoryFields maps domain.Category to the category table.
var CategoryFields = FieldMap{
	{Local: "id", Remote: "Id", ReadOnly: true, Codec: Identifier},
	{Local: "name", Remote: "Name"},
	{Local: "icon", Remote: "icon"},
	{Local: "createdAt", Remote: "CreatedOn", ReadOnly: true, Codec: Date},
	{Local: "updatedAt", Remote: "ModifiedOn", ReadOnly: true, Codec: Date},
}

// RemoteName returns the backend column of a local field.
func (m FieldMap) RemoteName(local string) (string, bool) {
	for _, f := range m {
		if f.Local == local {
			return f.Remote, true
		}
	}
	return "", false
}

// LocalName returns the local field of a backend column, mirrors included.
func (m FieldMap) LocalName(remote string) (string, bool) {
	for _, f := range m {
		if f.Remote == remote {
			return f.Local, true
		}
		for _, mirror := range f.Mirror {
			if mirror == remote {
				return f.Local, true
			}
		}
	}
	return "", false
}

// Columns lists every backend column to request, mirrors included.
func (m FieldMap) Columns() []string {
	cols := make([]string, 0, len(m))
	for _, f := range m {
		cols = append(cols, f.Remote)
		cols = append(cols, f.Mirror...)
	}
	return cols
}

// ToRemote converts local fields to a backend row. Read-only and unknown
// fields are dropped.
func (m FieldMap) ToRemote(local map[string]any) Record {
	out := Record{}
	for _, f := range m {
		if f.ReadOnly {
			continue
		}
		v, ok := local[f.Local]
		if !ok {
			continue
		}
		v = f.Codec.encode(v)
		out[f.Remote] = v
		for _, mirror := range f.Mirror {
			out[mirror] = v
		}
	}
	return out
}

// ToLocal converts a backend row to local fields. Columns outside the map are
// dropped.
func (m FieldMap) ToLocal(r Record) map[string]any {
	out := make(map[string]any, len(m))
	for _, f := range m {
		v, ok := r[f.Remote]
		if !ok {
			for _, mirror := range f.Mirror {
				if v, ok = r[mirror]; ok {
					break
				}
			}
		}
		if !ok {
			continue
		}
		out[f.Local] = f.Codec.decode(v)
	}
	return out
}

func (c Codec) encode(v any) any {
	if c != Date {
		return v
	}
	s, ok := v.(string)
	if !ok {
		return v
	}
	if d, err := time.Parse(time.RFC3339, s); err == nil {
		return d.UTC().Format(time.DateOnly)
	}
	return v
}

func (c Codec) decode(v any) any {
	switch c {
	case Identifier:
		switch id := v.(type) {
		case float64:
			return strconv.FormatFloat(id, 'f', -1, 64)
		case int64:
			return strconv.FormatInt(id, 10)
		case int:
			return strconv.Itoa(id)
		}
	case Date:
		s, ok := v.(string)
		if !ok {
			return v
		}
		if s == "" {
			return nil
		}
		if d, err := time.Parse(time.DateOnly, s); err == nil {
			return d.Format(time.RFC3339)
		}
	}
	return v
}

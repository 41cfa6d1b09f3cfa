package domain

import "encoding/json"

// Nullable is a patch field that tells "absent" apart from an explicit null.
// Set is false when the field was not supplied; Set with a nil Value clears it.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// Some returns a field set to v.
func Some[T any](v T) Nullable[T] { return Nullable[T]{Set: true, Value: &v} }

// Null returns a field that clears the stored value.
func Null[T any]() Nullable[T] { return Nullable[T]{Set: true} }

// Clone copies the value so the result does not alias the patch.
func (n Nullable[T]) Clone() *T {
	if n.Value == nil {
		return nil
	}
	v := *n.Value
	return &v
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

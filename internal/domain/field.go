package domain

import (
	"bytes"
	"encoding/json"
)

// Field is one entry of a partial update, used by create and update
// requests alike. A key missing from the JSON body leaves Set false (no
// change). An explicit null or "" sets Null (clear). Anything else sets
// Value.
type Field[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Value returns a Field that sets v.
func Value[T any](v T) Field[T] { return Field[T]{Set: true, Value: v} }

// Clear returns a Field that clears the target.
func Clear[T any]() Field[T] { return Field[T]{Set: true, Null: true} }

// UnmarshalJSON implements json.Unmarshaler.
func (f *Field[T]) UnmarshalJSON(b []byte) error {
	f.Set = true
	switch string(bytes.TrimSpace(b)) {
	case "null", `""`:
		var zero T
		f.Null, f.Value = true, zero
		return nil
	}
	f.Null = false
	return json.Unmarshal(b, &f.Value)
}

// Get returns the value and whether the field carries one.
func (f Field[T]) Get() (T, bool) {
	return f.Value, f.Set && !f.Null
}

// Or returns the value, or def when the field is absent or cleared.
func (f Field[T]) Or(def T) T {
	if v, ok := f.Get(); ok {
		return v
	}
	return def
}

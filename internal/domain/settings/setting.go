package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type state uint8

const (
	stateNotSet state = iota
	stateSet
	stateReset
)

// Setting is a tri-state field: NotSet keeps the current value, Reset restores the engine
// default, Set carries a new value. JSON: absent is NotSet, null is Reset.
type Setting[T any] struct {
	state state
	value T
}

// Set returns a Setting carrying v.
func Set[T any](v T) Setting[T] { return Setting[T]{state: stateSet, value: v} }

// Reset returns a Setting that restores the default.
func Reset[T any]() Setting[T] { return Setting[T]{state: stateReset} }

// NotSet returns a Setting that leaves the current value untouched.
func NotSet[T any]() Setting[T] { return Setting[T]{} }

// IsSet reports whether a value is carried.
func (s Setting[T]) IsSet() bool { return s.state == stateSet }

// IsReset reports whether the default is requested.
func (s Setting[T]) IsReset() bool { return s.state == stateReset }

// IsNotSet reports whether the field is absent.
func (s Setting[T]) IsNotSet() bool { return s.state == stateNotSet }

// IsZero makes `omitzero` drop NotSet fields from JSON output.
func (s Setting[T]) IsZero() bool { return s.state == stateNotSet }

// Get returns the carried value and whether it is Set.
func (s Setting[T]) Get() (T, bool) { return s.value, s.state == stateSet }

// Or returns the carried value, or def when not Set.
func (s Setting[T]) Or(def T) T {
	if s.state == stateSet {
		return s.value
	}
	return def
}

// nested is implemented by struct values merged field by field.
type nested[T any] interface {
	merge(patch T) T
	resetUnset() T
}

// Merge applies patch on top of s: NotSet keeps s, Reset and Set override it. Struct
// values that support field-wise merging are merged recursively.
func (s Setting[T]) Merge(patch Setting[T]) Setting[T] {
	switch patch.state {
	case stateNotSet:
		return s
	case stateReset:
		return patch
	}
	n, ok := any(patch.value).(nested[T])
	if !ok {
		return patch
	}
	switch s.state {
	case stateSet:
		base := any(s.value).(nested[T])
		return Set(base.merge(patch.value))
	case stateReset:
		// Reset followed by a partial value: unset sub-fields must also reset.
		return Set(n.resetUnset())
	default:
		return patch
	}
}

// Resolve returns the effective value against the current and default values.
func (s Setting[T]) Resolve(current, def T) T {
	switch s.state {
	case stateSet:
		return s.value
	case stateReset:
		return def
	default:
		return current
	}
}

// String is used in log lines.
func (s Setting[T]) String() string {
	switch s.state {
	case stateSet:
		return fmt.Sprintf("Set(%v)", s.value)
	case stateReset:
		return "Reset"
	default:
		return "NotSet"
	}
}

// MarshalJSON writes the value for Set and null otherwise.
func (s Setting[T]) MarshalJSON() ([]byte, error) {
	if s.state != stateSet {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}

// UnmarshalJSON reads null as Reset and anything else as Set.
func (s *Setting[T]) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*s = Reset[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err //nolint:wrapcheck // the json error already names the offending type
	}
	*s = Set(v)
	return nil
}

func resetIfUnset[T any](s Setting[T]) Setting[T] {
	if s.IsNotSet() {
		return Reset[T]()
	}
	return s
}

func unsetIfReset[T any](s Setting[T]) Setting[T] {
	if s.IsReset() {
		return NotSet[T]()
	}
	return s
}

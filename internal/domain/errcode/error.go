package errcode

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a field path: a field name or a list index.
type Segment struct {
	Field   string
	Index   int
	IsIndex bool
}

// Path is an ordered root-to-leaf list of segments, e.g. rankingRules[2].
type Path []Segment

func (p Path) String() string {
	var b strings.Builder
	for _, s := range p {
		if s.IsIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(s.Index))
			b.WriteByte(']')
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.Field)
	}
	return b.String()
}

// MarshalJSON encodes the path as a mixed array of names and indices.
func (p Path) MarshalJSON() ([]byte, error) {
	out := make([]any, len(p))
	for i, s := range p {
		if s.IsIndex {
			out[i] = s.Index
		} else {
			out[i] = s.Field
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the array form written by MarshalJSON.
func (p *Path) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode path: %w", err)
	}
	out := make(Path, 0, len(raw))
	for _, r := range raw {
		var name string
		if err := json.Unmarshal(r, &name); err == nil {
			out = append(out, Segment{Field: name})
			continue
		}
		var idx int
		if err := json.Unmarshal(r, &idx); err != nil {
			return fmt.Errorf("decode path segment %s: %w", r, err)
		}
		out = append(out, Segment{Index: idx, IsIndex: true})
	}
	*p = out
	return nil
}

// Error is a catalogued error with an optional field path. Values are immutable:
// In and At return copies.
type Error struct {
	code    Code
	message string
	path    Path
	cause   error
}

// New creates an error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error that keeps cause reachable through errors.Is/As.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...), cause: cause}
}

// Code returns the error kind.
func (e *Error) Code() Code { return e.code }

// Path returns the field path, nil for request-level errors.
func (e *Error) Path() Path { return e.path }

// Message returns the leaf message without the path prefix.
func (e *Error) Message() string { return e.message }

// In prepends a field name to the path.
func (e *Error) In(field string) *Error {
	return e.prepend(Segment{Field: field})
}

// At prepends a list index to the path.
func (e *Error) At(i int) *Error {
	return e.prepend(Segment{Index: i, IsIndex: true})
}

func (e *Error) prepend(s Segment) *Error {
	p := make(Path, 0, len(e.path)+1)
	p = append(p, s)
	p = append(p, e.path...)
	return &Error{code: e.code, message: e.message, path: p, cause: e.cause}
}

func (e *Error) Error() string {
	if len(e.path) == 0 {
		return e.message
	}
	return pathPrefix(e.path) + e.message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.code == e.code
}

// Equal compares code, path and message; causes are not part of identity.
func (e *Error) Equal(o *Error) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.code == o.code && e.message == o.message && e.path.String() == o.path.String()
}

func pathPrefix(p Path) string {
	return "Invalid value at `." + p.String() + "`: "
}

type wireError struct {
	Message string `json:"message"`
	Code    Code   `json:"code"`
	Type    Type   `json:"type"`
	Path    Path   `json:"path,omitempty"`
}

// MarshalJSON writes the rendered form. The stored message includes the path prefix so
// persisted errors read the same as live ones.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireError{
		Message: e.Error(),
		Code:    e.code,
		Type:    e.code.Type(),
		Path:    e.path,
	})
}

// UnmarshalJSON restores an error written by MarshalJSON.
func (e *Error) UnmarshalJSON(b []byte) error {
	var w wireError
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("decode error: %w", err)
	}
	msg := w.Message
	if len(w.Path) > 0 {
		msg = strings.TrimPrefix(msg, pathPrefix(w.Path))
	}
	*e = Error{code: w.Code, message: msg, path: w.Path}
	return nil
}

// Errors aggregates field errors in depth-first discovery order.
type Errors []*Error

// First returns the error that single-error responses surface, or nil.
func (es Errors) First() *Error {
	if len(es) == 0 {
		return nil
	}
	return es[0]
}

// In prepends a field name to every error.
func (es Errors) In(field string) Errors {
	out := make(Errors, len(es))
	for i, e := range es {
		out[i] = e.In(field)
	}
	return out
}

// At prepends a list index to every error.
func (es Errors) At(i int) Errors {
	out := make(Errors, len(es))
	for j, e := range es {
		out[j] = e.At(i)
	}
	return out
}

// Err returns nil when empty, the errors otherwise.
func (es Errors) Err() error {
	if len(es) == 0 {
		return nil
	}
	return es
}

func (es Errors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes every error to errors.Is/As.
func (es Errors) Unwrap() []error {
	out := make([]error, len(es))
	for i, e := range es {
		out[i] = e
	}
	return out
}

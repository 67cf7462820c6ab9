package common

import (
	"sort"
	"strings"
)

// ValidationError carries every field-level violation found in a request.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError returns an empty ValidationError ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string][]string{}}
}

// Add records a violation for field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Empty reports whether no violation was recorded.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

// ErrOrNil returns e when it holds violations and nil otherwise.
func (e *ValidationError) ErrOrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
	}
	return "validation error: " + strings.Join(parts, ", ")
}

// WeakPasswordError lists every password rule a candidate failed.
type WeakPasswordError struct {
	Reasons []string
}

func (e *WeakPasswordError) Error() string {
	return "weak password: " + strings.Join(e.Reasons, "; ")
}

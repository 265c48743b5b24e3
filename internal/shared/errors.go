package shared

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState indicates an action incompatible with the current document status.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrForbidden indicates missing permission.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// FieldErrors aggregates field-level validation messages. It unwraps to
// ErrValidation so callers can branch with errors.Is.
type FieldErrors struct {
	Fields map[string]string
}

// NewFieldErrors builds an empty FieldErrors collector.
func NewFieldErrors() *FieldErrors {
	return &FieldErrors{Fields: map[string]string{}}
}

// Add records a message for a field; existing messages are kept.
func (e *FieldErrors) Add(field, message string) {
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

// Any reports whether messages were recorded.
func (e *FieldErrors) Any() bool {
	return e != nil && len(e.Fields) > 0
}

// Err returns the collector as an error, or nil when empty.
func (e *FieldErrors) Err() error {
	if e.Any() {
		return e
	}
	return nil
}

func (e *FieldErrors) Error() string {
	if !e.Any() {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

// Unwrap makes errors.Is(err, ErrValidation) succeed.
func (e *FieldErrors) Unwrap() error {
	return ErrValidation
}

// UserSafeMessage returns a message suitable to show to end users.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found"
	case errors.Is(err, ErrDuplicate):
		return "A record with the same code already exists"
	case errors.Is(err, ErrInvalidState):
		return "The document status does not allow this action"
	case errors.Is(err, ErrValidation):
		return err.Error()
	default:
		return "Something went wrong, please try again"
	}
}

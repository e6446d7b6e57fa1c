// Package apperror defines the typed errors surfaced across service boundaries.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a domain error that knows its HTTP status.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Details any    `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so wrapped clones still compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

func Wrap(err error, base *Error, message string) *Error {
	e := Clone(base, message)
	e.Err = err
	return e
}

var (
	ErrUnauthorized  = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden     = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrNotFound      = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation    = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrConflict      = New("SCHEDULE_CONFLICT", http.StatusConflict, "time blocks overlap")
	ErrNotConfigured = New("NOT_CONFIGURED", http.StatusOK, "no loop configured")
	ErrEnrichment    = New("ENRICHMENT_FAILED", http.StatusOK, "module settings enrichment failed")
	ErrStorage       = New("STORAGE_ERROR", http.StatusInternalServerError, "internal server error")
)

// FromError normalises any error into an *Error. Unknown errors become storage errors.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrStorage, "")
}

// Clone copies base, optionally overriding its message.
func Clone(base *Error, message string) *Error {
	if base == nil {
		return nil
	}
	clone := *base
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy carrying caller-facing detail.
func (e *Error) WithDetails(details any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// Validation builds a 400 with a specific message.
func Validation(format string, args ...any) *Error {
	return Clone(ErrValidation, fmt.Sprintf(format, args...))
}

// Storage wraps a persistence failure. The cause is kept for logging only.
func Storage(err error) *Error {
	return Wrap(err, ErrStorage, "")
}

// Package apperr defines the shared error taxonomy surfaced to callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel categories, matchable with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrStorage    = errors.New("storage error")
	ErrConflict   = errors.New("concurrency conflict")
	ErrNotFound   = errors.New("not found")
)

// Error carries a category, a machine code, and an HTTP status for the
// request boundary.
type Error struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err != ErrValidation && e.Err != ErrStorage && e.Err != ErrConflict && e.Err != ErrNotFound {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation creates a malformed-input error. Always surfaced to the caller.
func Validation(code, message string) *Error {
	return &Error{
		Err:        ErrValidation,
		Message:    message,
		Code:       code,
		HTTPStatus: http.StatusBadRequest,
	}
}

// Storage wraps a persistence failure. Ingest and query callers may retry;
// the store never partially commits.
func Storage(err error, message string) *Error {
	return &Error{
		Err:        fmt.Errorf("%w: %w", ErrStorage, err),
		Message:    message,
		Code:       "STORAGE_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Conflict signals two transitions racing on the same chip. Callers retry.
func Conflict(message string) *Error {
	return &Error{
		Err:        ErrConflict,
		Message:    message,
		Code:       "CONCURRENCY_CONFLICT",
		HTTPStatus: http.StatusConflict,
	}
}

// NotFound creates a missing-resource error.
func NotFound(resource, id string) *Error {
	return &Error{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// Status returns the HTTP status for an error, defaulting to 500.
func Status(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.HTTPStatus
	}
	return http.StatusInternalServerError
}

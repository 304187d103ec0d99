// Package errors defines the sentinel errors shared by the batch client, its
// transports and the stub index, plus an AppError that carries an HTTP status
// alongside a sentinel.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Construction errors. These are raised before any network interaction.
var (
	ErrInvalidAction = errors.New("invalid index action")
	ErrEmptyBatch    = errors.New("index batch contains no actions")
	ErrBatchTooLarge = errors.New("index batch exceeds maximum size")
)

// Submission errors.
var (
	ErrPartialFailure   = errors.New("some index actions failed")
	ErrRequestFailed    = errors.New("index request failed")
	ErrResultMismatch   = errors.New("indexing results do not align with batch actions")
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// IsConstruction reports whether err was raised while building an action or
// batch, i.e. before anything was sent.
func IsConstruction(err error) bool {
	return errors.Is(err, ErrInvalidAction) ||
		errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrBatchTooLarge)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidAction), errors.Is(err, ErrEmptyBatch),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrPartialFailure):
		return http.StatusMultiStatus
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Package errors provides typed error codes shared across the sync core.
// Every remote-call and storage failure is classified into one of four
// classes at the orchestrator boundary; lower layers only raise codes and
// never retry themselves.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique, stable error code.
type ErrorCode string

const (
	// Transient failures: retried with backoff, surfaced only at the
	// terminal attempt count.
	ErrNetwork     ErrorCode = "NETWORK_UNREACHABLE"
	ErrTimeout     ErrorCode = "REQUEST_TIMEOUT"
	ErrServer      ErrorCode = "SERVER_ERROR"
	ErrRateLimited ErrorCode = "RATE_LIMITED"

	// Authentication failures: suspend affected queue entries and require
	// re-login. Never discards data.
	ErrAuthRequired    ErrorCode = "AUTH_REQUIRED"
	ErrRefreshRejected ErrorCode = "REFRESH_REJECTED"

	// Permanent failures: marked terminal on the entry, surfaced with the
	// server-provided reason, retained for manual retry or discard.
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrConflict   ErrorCode = "CONFLICT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrForbidden  ErrorCode = "FORBIDDEN"

	// Local storage failures: fatal for the affected transaction, which is
	// rolled back entirely.
	ErrStorage   ErrorCode = "STORAGE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"

	// General
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrInvalid  ErrorCode = "INVALID_INPUT"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf extracts the ErrorCode from an error chain. Unclassified errors
// map to ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Is checks if an error carries a specific code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsTransient reports whether the error should be retried with backoff.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case ErrNetwork, ErrTimeout, ErrServer, ErrRateLimited:
		return true
	}
	return false
}

// IsAuth reports whether the error requires re-authentication.
func IsAuth(err error) bool {
	switch CodeOf(err) {
	case ErrAuthRequired, ErrRefreshRejected:
		return true
	}
	return false
}

// IsPermanent reports whether the error is a validation or conflict failure
// that must be surfaced rather than retried.
func IsPermanent(err error) bool {
	switch CodeOf(err) {
	case ErrValidation, ErrConflict, ErrNotFound, ErrForbidden:
		return true
	}
	return false
}

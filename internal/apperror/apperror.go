// Package apperror defines the domain error taxonomy shared by the service,
// repository and handler layers.
//
// Every AppError carries a sentinel (Err) that callers match with errors.Is,
// a human-readable Message that is safe to show to clients, and optionally
// the Field that failed validation. Cause holds the underlying driver or
// library error; it is included in Error() for logs but never rendered to
// HTTP clients.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidDate        = errors.New("invalid date format")
	ErrUnavailable        = errors.New("store unavailable")
)

type AppError struct {
	Err     error  // sentinel, one of the Err* values above
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error, for logs only
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// DuplicateUser is returned when registering an email that is already taken.
func DuplicateUser(email string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("a user with email %s already exists", email),
		Field:   "email",
	}
}

// InvalidCredentials deliberately does not say whether the email or the
// password was wrong.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "invalid email or password",
	}
}

func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: "valid authentication required",
	}
}

func InvalidToken(cause error) *AppError {
	return &AppError{
		Err:     ErrInvalidToken,
		Message: "valid authentication required",
		Cause:   cause,
	}
}

func InvalidDateFormat(value string) *AppError {
	return &AppError{
		Err:     ErrInvalidDate,
		Message: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", value),
		Field:   "date",
	}
}

// Unavailable wraps a storage failure. The message is generic so raw driver
// errors never reach clients; op names the failing operation for logs.
func Unavailable(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: "storage is temporarily unavailable",
		Cause:   fmt.Errorf("%s: %w", op, cause),
	}
}

package notifications

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("notifications: validation failed")
	ErrUnknownChannel    = errors.New("notifications: unknown channel")
	ErrNotFound          = errors.New("notifications: notification not found")
	ErrAlreadyExists     = errors.New("notifications: notification already exists")
	ErrInvalidTransition = errors.New("notifications: invalid state transition")
	ErrStateConflict     = errors.New("notifications: record state changed concurrently")
	ErrStopped           = errors.New("notifications: dispatcher is stopped")
	ErrNoAdapters        = errors.New("notifications: at least one channel adapter is required")

	// ErrCanceled is the cause attached to an in-flight send aborted by Cancel.
	ErrCanceled = errors.New("notifications: canceled")
)

// ValidationError rejects a request before any record is created.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("notifications: invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidationError reports whether err rejects a request as invalid.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

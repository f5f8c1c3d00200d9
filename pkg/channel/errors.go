package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrTransient        = errors.New("channel: transient failure")
	ErrPermanent        = errors.New("channel: permanent failure")
	ErrInvalidRecipient = errors.New("channel: invalid recipient")
	ErrInvalidConfig    = errors.New("channel: invalid config")
	ErrUnknownKind      = errors.New("channel: unknown kind")
)

// Error is a classified delivery failure.
type Error struct {
	Kind       Kind
	Permanent  bool
	StatusCode int
	// RetryAfter is the provider's requested wait, when it sent one.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	class := "transient"
	if e.Permanent {
		class = "permanent"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s failure (status %d): %v", e.Kind, class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Kind, class, e.Err)
}

func (e *Error) Unwrap() []error {
	class := ErrTransient
	if e.Permanent {
		class = ErrPermanent
	}
	return []error{class, e.Err}
}

// Transient wraps err as a retryable failure.
func Transient(kind Kind, status int, err error) error {
	return &Error{Kind: kind, StatusCode: status, Err: err}
}

// Permanent wraps err as a failure that will not succeed on retry.
func Permanent(kind Kind, status int, err error) error {
	return &Error{Kind: kind, Permanent: true, StatusCode: status, Err: err}
}

func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }

// RetryAfter returns the provider-requested wait carried by err, if any.
func RetryAfter(err error) time.Duration {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.RetryAfter
	}
	return 0
}

// PermanentStatus reports whether an HTTP status means the request will keep
// failing. 408, 425 and 429 are 4xx codes that may clear on their own.
func PermanentStatus(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	default:
		return true
	}
}

// classifyStatus turns a non-2xx HTTP status into a classified error.
func classifyStatus(kind Kind, status int, err error) error {
	if PermanentStatus(status) {
		return Permanent(kind, status, err)
	}
	return Transient(kind, status, err)
}

// classifyTransport classifies an error from http.Client.Do. Context errors
// pass through untouched.
func classifyTransport(ctx context.Context, kind Kind, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return Transient(kind, 0, err)
}

package email

import (
	"errors"
	"fmt"
)

var (
	ErrFailedToSendEmail = errors.New("email: failed to send")
	ErrInvalidConfig     = errors.New("email: invalid config")
	ErrInvalidParams     = errors.New("email: invalid params")
	ErrInvalidAddress    = errors.New("email: invalid address")
)

// SendError describes a failed delivery attempt.
type SendError struct {
	Provider  string
	Code      int // provider error code or SMTP reply code, 0 when unknown
	Message   string
	Temporary bool
	Err       error
}

func (e *SendError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *SendError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFailedToSendEmail}
	}
	return []error{ErrFailedToSendEmail, e.Err}
}

// IsTemporary reports whether err is a SendError marked temporary.
func IsTemporary(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Temporary
}

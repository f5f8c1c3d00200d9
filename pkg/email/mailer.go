package email

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// EmailSender represents an interface for sending emails.
type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

// TrackedSender is implemented by senders that know the id the provider
// assigned to an accepted message.
type TrackedSender interface {
	EmailSender
	SendTrackedEmail(ctx context.Context, params SendEmailParams) (messageID string, err error)
}

// SendEmailParams represents the parameters for sending an email.
type SendEmailParams struct {
	SendTo   string `json:"send_to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	BodyText string `json:"body_text,omitempty"`
	Tag      string `json:"tag,omitempty"`
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateAddress checks that s is a plain address such as user@example.com.
func ValidateAddress(s string) error {
	if !emailRegex.MatchString(s) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return nil
}

// Validate checks the recipient address and that a subject and a body are set.
func (p SendEmailParams) Validate() error {
	if err := ValidateAddress(p.SendTo); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if strings.TrimSpace(p.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidParams)
	}
	if strings.TrimSpace(p.BodyHTML) == "" && strings.TrimSpace(p.BodyText) == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidParams)
	}
	return nil
}

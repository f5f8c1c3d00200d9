package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/notifykit/pkg/email"
)

// EmailAdapter delivers messages through an email.EmailSender.
// The title becomes the subject; the body is sent as both HTML and text parts.
// Metadata "tag" is forwarded as the provider tag. Senders implementing
// email.TrackedSender report the provider message id in Outcome.ProviderID.
type EmailAdapter struct {
	sender email.EmailSender
}

func NewEmailAdapter(sender email.EmailSender) (*EmailAdapter, error) {
	if sender == nil {
		return nil, fmt.Errorf("%w: email sender is required", ErrInvalidConfig)
	}
	return &EmailAdapter{sender: sender}, nil
}

func (a *EmailAdapter) Kind() Kind { return KindEmail }

func (a *EmailAdapter) ValidateRecipient(recipient string) error {
	if err := email.ValidateAddress(recipient); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
	}
	return nil
}

func (a *EmailAdapter) Send(ctx context.Context, msg Message) (Outcome, error) {
	if err := a.ValidateRecipient(msg.Recipient); err != nil {
		return Outcome{}, Permanent(KindEmail, 0, err)
	}

	params := email.SendEmailParams{
		SendTo:   msg.Recipient,
		Subject:  msg.Title,
		BodyHTML: msg.Body,
		BodyText: msg.Body,
		Tag:      msg.Metadata["tag"],
	}
	var (
		id  string
		err error
	)
	if ts, ok := a.sender.(email.TrackedSender); ok {
		id, err = ts.SendTrackedEmail(ctx, params)
	} else {
		err = a.sender.SendEmail(ctx, params)
	}
	if err == nil {
		return Outcome{ProviderID: id}, nil
	}

	var se *email.SendError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Outcome{}, err
	case errors.Is(err, email.ErrInvalidParams):
		return Outcome{}, Permanent(KindEmail, 0, err)
	case errors.As(err, &se):
		if se.Temporary {
			return Outcome{}, Transient(KindEmail, se.Code, err)
		}
		return Outcome{}, Permanent(KindEmail, se.Code, err)
	default:
		return Outcome{}, Transient(KindEmail, 0, err)
	}
}

package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
)

type smtpSender struct {
	config Config
	opts   []mail.Option
}

// NewSMTPSender creates a sender that relays through an SMTP server.
// A connection is dialed per message.
func NewSMTPSender(cfg Config) (EmailSender, error) {
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("%w: SMTPHost is required", ErrInvalidConfig)
	}
	if err := cfg.validateSender(); err != nil {
		return nil, err
	}

	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(tlsPolicy(cfg.SMTPTLS)),
	}
	if cfg.SMTPTimeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.SMTPTimeout))
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}

	// validate options once up front
	if _, err := mail.NewClient(cfg.SMTPHost, opts...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return &smtpSender{config: cfg, opts: opts}, nil
}

func (s *smtpSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	_, err := s.SendTrackedEmail(ctx, params)
	return err
}

// SendTrackedEmail sends like SendEmail and returns the generated Message-ID
// without angle brackets.
func (s *smtpSender) SendTrackedEmail(ctx context.Context, params SendEmailParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	m := mail.NewMsg()
	if err := m.From(s.config.SenderEmail); err != nil {
		return "", fmt.Errorf("%w: from: %w", ErrInvalidConfig, err)
	}
	if err := m.To(params.SendTo); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if s.config.SupportEmail != "" {
		if err := m.ReplyTo(s.config.SupportEmail); err != nil {
			return "", fmt.Errorf("%w: reply-to: %w", ErrInvalidConfig, err)
		}
	}
	m.Subject(params.Subject)
	m.SetMessageID()

	switch {
	case params.BodyText != "" && params.BodyHTML != "":
		m.SetBodyString(mail.TypeTextPlain, params.BodyText)
		m.AddAlternativeString(mail.TypeTextHTML, params.BodyHTML)
	case params.BodyHTML != "":
		m.SetBodyString(mail.TypeTextHTML, params.BodyHTML)
	default:
		m.SetBodyString(mail.TypeTextPlain, params.BodyText)
	}

	c, err := mail.NewClient(s.config.SMTPHost, s.opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return "", classifySMTPError(err)
	}
	return strings.Trim(m.GetMessageID(), "<>"), nil
}

func classifySMTPError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *mail.SendError
	if errors.As(err, &se) {
		return &SendError{
			Provider:  ProviderSMTP,
			Code:      se.ErrorCode(),
			Message:   se.Error(),
			Temporary: se.IsTemp(),
			Err:       err,
		}
	}
	// dial and handshake failures
	return &SendError{Provider: ProviderSMTP, Temporary: true, Err: err}
}

func tlsPolicy(s string) mail.TLSPolicy {
	switch strings.ToLower(s) {
	case "mandatory", "ssl_tls":
		return mail.TLSMandatory
	case "none", "off":
		return mail.NoTLS
	default:
		return mail.TLSOpportunistic
	}
}

package email

import (
	"fmt"
	"time"
)

// Provider names accepted by New.
const (
	ProviderPostmark = "postmark"
	ProviderSMTP     = "smtp"
	ProviderDev      = "dev"
)

// Config holds email transport configuration. Only the fields of the selected
// provider need to be set.
type Config struct {
	Provider     string `env:"EMAIL_PROVIDER" envDefault:"dev"`
	SenderEmail  string `env:"SENDER_EMAIL" envDefault:"noreply@example.com"`
	SupportEmail string `env:"SUPPORT_EMAIL"` // Reply-To, optional

	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	PostmarkBaseURL      string `env:"POSTMARK_BASE_URL"`

	SMTPHost     string        `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort     int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string        `env:"SMTP_USERNAME"`
	SMTPPassword string        `env:"SMTP_PASSWORD"`
	SMTPTLS      string        `env:"SMTP_TLS" envDefault:"opportunistic"` // mandatory, opportunistic or none
	SMTPTimeout  time.Duration `env:"SMTP_TIMEOUT" envDefault:"15s"`

	DevDir string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
}

// New builds the sender selected by cfg.Provider.
func New(cfg Config) (EmailSender, error) {
	switch cfg.Provider {
	case ProviderPostmark:
		return NewPostmarkSender(cfg)
	case ProviderSMTP:
		return NewSMTPSender(cfg)
	case ProviderDev, "":
		return NewDevSender(cfg.DevDir), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

func (c Config) validateSender() error {
	if err := ValidateAddress(c.SenderEmail); err != nil {
		return fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	if c.SupportEmail != "" {
		if err := ValidateAddress(c.SupportEmail); err != nil {
			return fmt.Errorf("%w: SupportEmail must be a valid email address", ErrInvalidConfig)
		}
	}
	return nil
}

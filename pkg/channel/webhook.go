package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// WebhookConfig is the env-driven webhook configuration.
type WebhookConfig struct {
	Secret  string        `env:"WEBHOOK_SECRET"`
	Timeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
}

// Options converts the config into adapter options.
func (c WebhookConfig) Options() []WebhookOption {
	opts := []WebhookOption{WithWebhookSecret(c.Secret)}
	if c.Timeout > 0 {
		opts = append(opts, WithWebhookHTTPClient(&http.Client{Timeout: c.Timeout}))
	}
	return opts
}

// WebhookAdapter POSTs a JSON envelope to the recipient URL.
type WebhookAdapter struct {
	client    *http.Client
	secret    string
	userAgent string
	now       func() time.Time
}

// WebhookOption configures a WebhookAdapter.
type WebhookOption func(*WebhookAdapter)

// WithWebhookSecret enables HMAC signing of every delivery.
func WithWebhookSecret(secret string) WebhookOption {
	return func(a *WebhookAdapter) { a.secret = secret }
}

func WithWebhookHTTPClient(c *http.Client) WebhookOption {
	return func(a *WebhookAdapter) {
		if c != nil {
			a.client = c
		}
	}
}

func WithUserAgent(ua string) WebhookOption {
	return func(a *WebhookAdapter) {
		if ua != "" {
			a.userAgent = ua
		}
	}
}

func NewWebhookAdapter(opts ...WebhookOption) *WebhookAdapter {
	a := &WebhookAdapter{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: "notifykit-webhook/1.0",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *WebhookAdapter) Kind() Kind { return KindWebhook }

// ValidateRecipient accepts absolute http and https URLs with a host.
func (a *WebhookAdapter) ValidateRecipient(recipient string) error {
	u, err := url.Parse(recipient)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: only http and https URLs are supported", ErrInvalidRecipient)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: URL host is required", ErrInvalidRecipient)
	}
	return nil
}

// Envelope is the JSON body of a webhook delivery.
type Envelope struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
	SentAt   time.Time         `json:"sent_at"`
}

func (a *WebhookAdapter) Send(ctx context.Context, msg Message) (Outcome, error) {
	if err := a.ValidateRecipient(msg.Recipient); err != nil {
		return Outcome{}, Permanent(KindWebhook, 0, err)
	}

	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := a.now()
	payload, err := json.Marshal(Envelope{
		ID:       id,
		Title:    msg.Title,
		Body:     msg.Body,
		Metadata: msg.Metadata,
		SentAt:   now.UTC(),
	})
	if err != nil {
		return Outcome{}, Permanent(KindWebhook, 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, msg.Recipient, bytes.NewReader(payload))
	if err != nil {
		return Outcome{}, Permanent(KindWebhook, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set(HeaderID, id)
	if a.secret != "" {
		sig, err := Sign(a.secret, id, payload, now)
		if err != nil {
			return Outcome{}, Permanent(KindWebhook, 0, err)
		}
		sig.Apply(req.Header)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Outcome{}, classifyTransport(ctx, KindWebhook, err)
	}
	defer resp.Body.Close()
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Outcome{ProviderID: resp.Header.Get("X-Request-Id"), StatusCode: resp.StatusCode}, nil
	}

	cerr := classifyStatus(KindWebhook, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	if ra := parseRetryAfter(resp.Header.Get("Retry-After"), now); ra > 0 {
		cerr.(*Error).RetryAfter = ra
	}
	return Outcome{}, cerr
}

// parseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

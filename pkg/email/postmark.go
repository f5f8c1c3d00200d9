package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mrz1836/postmark"
)

// Postmark API error codes that are worth retrying.
// https://postmarkapp.com/developer/api/overview#error-codes
const (
	postmarkCodeMaintenance = 100
	postmarkCodeRateLimited = 429
)

type postmarkSender struct {
	client *postmark.Client
	config Config
}

// PostmarkOption configures the Postmark sender.
type PostmarkOption func(*http.Client)

// WithPostmarkHTTPClient sets the timeout and transport used for API calls.
func WithPostmarkHTTPClient(c *http.Client) PostmarkOption {
	return func(hc *http.Client) {
		if c == nil {
			return
		}
		hc.Timeout = c.Timeout
		if c.Transport != nil {
			hc.Transport = statusRecorder{next: c.Transport}
		}
	}
}

// NewPostmarkSender creates a Postmark-backed sender. Only the server token is
// needed for sending.
func NewPostmarkSender(cfg Config, opts ...PostmarkOption) (EmailSender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if err := cfg.validateSender(); err != nil {
		return nil, err
	}

	hc := &http.Client{
		Timeout:   30 * time.Second,
		Transport: statusRecorder{next: http.DefaultTransport},
	}
	for _, opt := range opts {
		opt(hc)
	}

	client := postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken)
	client.HTTPClient = hc
	if cfg.PostmarkBaseURL != "" {
		client.BaseURL = cfg.PostmarkBaseURL
	}
	return &postmarkSender{client: client, config: cfg}, nil
}

// SendEmail sends one message through the Postmark transactional API.
func (s *postmarkSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	_, err := s.SendTrackedEmail(ctx, params)
	return err
}

// SendTrackedEmail sends like SendEmail and returns the Postmark MessageID.
func (s *postmarkSender) SendTrackedEmail(ctx context.Context, params SendEmailParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	var status int
	resp, err := s.client.SendEmail(context.WithValue(ctx, statusKey{}, &status), postmark.Email{
		From:       s.config.SenderEmail,
		ReplyTo:    s.config.SupportEmail,
		To:         params.SendTo,
		Subject:    params.Subject,
		Tag:        params.Tag,
		HTMLBody:   params.BodyHTML,
		TextBody:   params.BodyText,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})

	switch {
	case resp.ErrorCode > 0:
		code := int(resp.ErrorCode)
		return "", &SendError{
			Provider:  ProviderPostmark,
			Code:      code,
			Message:   resp.Message,
			Temporary: code == postmarkCodeMaintenance || code == postmarkCodeRateLimited || status >= 500,
		}
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return "", err
	case err != nil || status >= 400:
		if err == nil {
			err = fmt.Errorf("unexpected status %d", status)
		}
		return "", &SendError{
			Provider:  ProviderPostmark,
			Message:   http.StatusText(status),
			Temporary: status == 0 || status >= 500 || status == http.StatusTooManyRequests,
			Err:       err,
		}
	}
	return resp.MessageID, nil
}

type statusKey struct{}

// statusRecorder stores the HTTP status of the response in the request
// context so failures can be classified whatever the client library returns.
type statusRecorder struct {
	next http.RoundTripper
}

func (r statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if resp != nil {
		if p, ok := req.Context().Value(statusKey{}).(*int); ok {
			*p = resp.StatusCode
		}
	}
	return resp, err
}

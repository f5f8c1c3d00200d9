package channel

import "context"

// Adapter delivers a rendered message over one channel.
type Adapter interface {
	Kind() Kind
	// ValidateRecipient checks the recipient syntax without network I/O.
	ValidateRecipient(recipient string) error
	// Send makes one delivery attempt.
	Send(ctx context.Context, msg Message) (Outcome, error)
}

// Message is a fully rendered notification addressed to one recipient.
type Message struct {
	// ID identifies the notification; adapters may forward it for
	// receiver-side idempotency.
	ID        string
	Recipient string
	Title     string
	Body      string
	Metadata  map[string]string
}

// Outcome describes a successful delivery.
type Outcome struct {
	ProviderID string
	StatusCode int
}

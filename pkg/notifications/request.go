package notifications

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/channel"
)

// Priority orders pending sends; higher values are sent first.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the defined priorities.
func (p Priority) Valid() bool { return p >= PriorityLow && p <= PriorityUrgent }

// High reports whether p uses the short high-priority dedup window.
func (p Priority) High() bool { return p >= PriorityHigh }

// MarshalText encodes the zero Priority as normal.
func (p Priority) MarshalText() ([]byte, error) {
	if p == 0 {
		p = PriorityNormal
	}
	if !p.Valid() {
		return nil, fmt.Errorf("notifications: invalid priority %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParsePriority maps low, normal, high and urgent to a Priority.
// An empty string means normal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	default:
		return 0, fmt.Errorf("notifications: unknown priority %q", s)
	}
}

// Request is a rendered notification for one recipient. It is never mutated
// after submission.
type Request struct {
	ID             string            `json:"id"`
	Channel        channel.Kind      `json:"channel"`
	Recipient      string            `json:"recipient"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Priority       Priority          `json:"priority"`
	IdempotencyKey string            `json:"idempotency_key"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	// SendAt delays the first attempt. Zero means now.
	SendAt    time.Time `json:"send_at,omitzero"`
	CreatedAt time.Time `json:"created_at"`
}

// normalize fills the defaults: id, created time, priority and idempotency key.
func (r Request) normalize(now time.Time) Request {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.Priority == 0 {
		r.Priority = PriorityNormal
	}
	if r.IdempotencyKey == "" {
		r.IdempotencyKey = IdempotencyKey(r.Channel, r.Recipient, r.Title, r.Body)
	}
	if len(r.Metadata) > 0 {
		r.Metadata = maps.Clone(r.Metadata)
	}
	return r
}

// IdempotencyKey derives the dedup key for a message: the first 32 hex chars
// of SHA-256 over the NUL-joined channel, recipient, title and body.
func IdempotencyKey(kind channel.Kind, recipient, title, body string) string {
	h := sha256.New()
	for i, part := range []string{string(kind), recipient, title, body} {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

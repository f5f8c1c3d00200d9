package channel

import "fmt"

// Kind names a delivery channel.
type Kind string

const (
	KindEmail   Kind = "email"
	KindChatBot Kind = "chatbot"
	KindWebhook Kind = "webhook"
)

func (k Kind) String() string { return string(k) }

// ParseKind maps a channel name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindEmail, KindChatBot, KindWebhook:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

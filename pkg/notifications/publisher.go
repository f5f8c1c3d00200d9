package notifications

import (
	"context"
	"errors"

	"github.com/dmitrymomot/notifykit/pkg/broadcast"
)

// Publisher receives a DeliveryEvent for every terminal transition.
// Publishing is best effort: errors are logged and never change a record.
type Publisher interface {
	Publish(ctx context.Context, ev DeliveryEvent) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev DeliveryEvent) error

func (f PublisherFunc) Publish(ctx context.Context, ev DeliveryEvent) error {
	return f(ctx, ev)
}

// BroadcastPublisher forwards events to a broadcaster, in-process or Redis.
type BroadcastPublisher struct {
	b broadcast.Broadcaster[DeliveryEvent]
}

func NewBroadcastPublisher(b broadcast.Broadcaster[DeliveryEvent]) *BroadcastPublisher {
	return &BroadcastPublisher{b: b}
}

func (p *BroadcastPublisher) Publish(ctx context.Context, ev DeliveryEvent) error {
	return p.b.Broadcast(ctx, broadcast.Message[DeliveryEvent]{Data: ev})
}

// Subscribe exposes the underlying broadcaster to listeners.
func (p *BroadcastPublisher) Subscribe(ctx context.Context) broadcast.Subscriber[DeliveryEvent] {
	return p.b.Subscribe(ctx)
}

// MultiPublisher publishes to every publisher, even when some fail.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, ev DeliveryEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoOpPublisher drops every event.
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(context.Context, DeliveryEvent) error { return nil }

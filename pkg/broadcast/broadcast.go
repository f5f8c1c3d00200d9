package broadcast

import (
	"context"
	"sync"
)

// Message wraps data of type T.
type Message[T any] struct {
	Data T
}

// Subscriber receives messages from a Broadcaster.
type Subscriber[T any] interface {
	// Receive returns the delivery channel. It is closed when the subscriber
	// is closed, its context ends, or the broadcaster shuts down.
	Receive(ctx context.Context) <-chan Message[T]

	// Close is idempotent.
	Close() error
}

// Broadcaster sends messages to every active subscriber.
type Broadcaster[T any] interface {
	// Subscribe registers a subscriber for the lifetime of ctx.
	Subscribe(ctx context.Context) Subscriber[T]

	// Broadcast never blocks on slow subscribers; their copy is dropped.
	Broadcast(ctx context.Context, msg Message[T]) error

	Close() error
}

type subscriber[T any] struct {
	ch     chan Message[T]
	done   chan struct{}
	closed bool
	mu     sync.RWMutex
}

func newSubscriber[T any](bufferSize int) *subscriber[T] {
	return &subscriber[T]{
		ch:   make(chan Message[T], bufferSize),
		done: make(chan struct{}),
	}
}

func (s *subscriber[T]) Receive(context.Context) <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
		close(s.done)
	}
	return nil
}

type sendResult int

const (
	sent sendResult = iota
	full
	gone
)

func (s *subscriber[T]) send(msg Message[T]) sendResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return gone
	}

	select {
	case s.ch <- msg:
		return sent
	default:
		return full
	}
}

package broadcast

import (
	"context"
	"sync"
)

// MemoryBroadcaster is an in-process Broadcaster.
// A subscriber whose buffer is full misses the message and is dropped.
type MemoryBroadcaster[T any] struct {
	subscribers map[*subscriber[T]]struct{}
	bufferSize  int
	onDrop      func()
	closed      bool
	mu          sync.RWMutex
	cleanupWg   sync.WaitGroup
}

// MemoryOption configures a MemoryBroadcaster.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	onDrop func()
}

// WithOnDrop registers a callback invoked each time a slow subscriber is dropped.
func WithOnDrop(fn func()) MemoryOption {
	return func(o *memoryOptions) { o.onDrop = fn }
}

// NewMemoryBroadcaster creates an in-memory broadcaster. bufferSize is the
// per-subscriber buffer, at least 1.
func NewMemoryBroadcaster[T any](bufferSize int, opts ...MemoryOption) *MemoryBroadcaster[T] {
	var o memoryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryBroadcaster[T]{
		subscribers: make(map[*subscriber[T]]struct{}),
		bufferSize:  max(bufferSize, 1),
		onDrop:      o.onDrop,
	}
}

// Subscribe returns an already closed subscriber once the broadcaster is closed.
func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context) Subscriber[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newSubscriber[T](b.bufferSize)
	if b.closed {
		_ = sub.Close()
		return sub
	}
	b.subscribers[sub] = struct{}{}

	b.cleanupWg.Add(1)
	go func() {
		defer b.cleanupWg.Done()
		select {
		case <-ctx.Done():
		case <-sub.done:
		}
		b.unsubscribe(sub)
	}()

	return sub
}

func (b *MemoryBroadcaster[T]) Broadcast(_ context.Context, msg Message[T]) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for sub := range b.subscribers {
		if sub.send(msg) == full {
			// closing wakes the cleanup goroutine, which takes the write lock
			_ = sub.Close()
			if b.onDrop != nil {
				b.onDrop()
			}
		}
	}
	return nil
}

// Len returns the number of active subscribers.
func (b *MemoryBroadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscriber. It is safe to call more than once.
func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for sub := range b.subscribers {
		_ = sub.Close()
	}
	b.mu.Unlock()

	b.cleanupWg.Wait()
	return nil
}

func (b *MemoryBroadcaster[T]) unsubscribe(sub *subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	_ = sub.Close()
}

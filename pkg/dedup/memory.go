package dedup

import (
	"context"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/cache"
)

// MemoryGuard is an in-process Guard. Once capacity is reached the least
// recently used keys are forgotten early.
type MemoryGuard struct {
	keys *cache.ExpiringLRU[string, struct{}]
}

// MemoryOption configures a MemoryGuard.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	now func() time.Time
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(o *memoryOptions) { o.now = now }
}

// NewMemoryGuard creates a guard that holds at most capacity keys.
// A non-positive capacity defaults to 100000.
func NewMemoryGuard(capacity int, opts ...MemoryOption) *MemoryGuard {
	if capacity <= 0 {
		capacity = 100_000
	}
	o := &memoryOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return &MemoryGuard{
		keys: cache.NewExpiringLRU(capacity, cache.WithClock[string, struct{}](o.now)),
	}
}

func (g *MemoryGuard) ShouldSend(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	return !g.keys.Contains(key), nil
}

func (g *MemoryGuard) MarkSent(_ context.Context, key string, ttl time.Duration) error {
	if err := checkArgs(key, ttl); err != nil {
		return err
	}
	g.keys.Put(key, struct{}{}, ttl)
	return nil
}

func (g *MemoryGuard) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := checkArgs(key, ttl); err != nil {
		return false, err
	}
	return g.keys.PutIfAbsent(key, struct{}{}, ttl), nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	g.keys.Remove(key)
	return nil
}

// Prune drops expired keys and returns how many were removed.
func (g *MemoryGuard) Prune() int {
	return g.keys.Prune()
}

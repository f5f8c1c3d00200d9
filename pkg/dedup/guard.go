package dedup

import (
	"context"
	"time"
)

// Guard tracks recently sent idempotency keys.
type Guard interface {
	// ShouldSend reports whether no live entry exists for key.
	ShouldSend(ctx context.Context, key string) (bool, error)
	// MarkSent records key for ttl, overwriting any existing entry.
	MarkSent(ctx context.Context, key string, ttl time.Duration) error
	// Acquire records key for ttl only if it is absent and reports whether it did.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release forgets key so a later request with the same key is accepted.
	Release(ctx context.Context, key string) error
}

func checkArgs(key string, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}

package dedup

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of go-redis commands RedisGuard needs.
// redis.UniversalClient satisfies it.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisGuard shares dedup state between processes through Redis.
type RedisGuard struct {
	client RedisClient
	prefix string
}

// RedisOption configures a RedisGuard.
type RedisOption func(*RedisGuard)

// WithPrefix sets the key namespace. Defaults to "notifykit:dedup:".
func WithPrefix(prefix string) RedisOption {
	return func(g *RedisGuard) { g.prefix = prefix }
}

func NewRedisGuard(client RedisClient, opts ...RedisOption) *RedisGuard {
	g := &RedisGuard{client: client, prefix: "notifykit:dedup:"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *RedisGuard) ShouldSend(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	n, err := g.client.Exists(ctx, g.prefix+key).Result()
	if err != nil {
		return false, errors.Join(errors.New("dedup: exists"), err)
	}
	return n == 0, nil
}

func (g *RedisGuard) MarkSent(ctx context.Context, key string, ttl time.Duration) error {
	if err := checkArgs(key, ttl); err != nil {
		return err
	}
	if err := g.client.Set(ctx, g.prefix+key, 1, ttl).Err(); err != nil {
		return errors.Join(errors.New("dedup: set"), err)
	}
	return nil
}

// Acquire issues SET key 1 NX PX ttl.
func (g *RedisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := checkArgs(key, ttl); err != nil {
		return false, err
	}
	ok, err := g.client.SetNX(ctx, g.prefix+key, 1, ttl).Result()
	if err != nil {
		return false, errors.Join(errors.New("dedup: setnx"), err)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := g.client.Del(ctx, g.prefix+key).Err(); err != nil {
		return errors.Join(errors.New("dedup: del"), err)
	}
	return nil
}

package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/redis"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) *goredis.StatusCmd {
	return goredis.NewStatusResult("PONG", f(ctx))
}

func TestHealthcheck(t *testing.T) {
	t.Parallel()

	ok := redis.Healthcheck(pingerFunc(func(context.Context) error { return nil }))
	assert.NoError(t, ok(context.Background()))

	refused := errors.New("connection refused")
	bad := redis.Healthcheck(pingerFunc(func(context.Context) error { return refused }))
	err := bad(context.Background())
	assert.ErrorIs(t, err, redis.ErrHealthcheckFailed)
	assert.ErrorIs(t, err, refused)
}

func TestConnect_Errors(t *testing.T) {
	t.Parallel()

	_, err := redis.Connect(context.Background(), redis.Config{})
	assert.ErrorIs(t, err, redis.ErrEmptyConnectionURL)

	_, err = redis.Connect(context.Background(), redis.Config{ConnectionURL: "http://localhost"})
	assert.ErrorIs(t, err, redis.ErrFailedToParseRedisConnString)

	// nothing listens on port 1
	_, err = redis.Connect(context.Background(), redis.Config{
		ConnectionURL:  "redis://127.0.0.1:1/0",
		RetryAttempts:  2,
		RetryInterval:  time.Millisecond,
		ConnectTimeout: 2 * time.Second,
	})
	assert.ErrorIs(t, err, redis.ErrRedisNotReady)
}

func TestConfig(t *testing.T) {
	t.Parallel()

	var cfg redis.Config
	assert.False(t, cfg.Enabled())
	require.NoError(t, cfg.Validate())

	cfg = redis.Config{ConnectionURL: "redis://localhost:6379/0", RetryAttempts: 3, EventsChannel: "events"}
	assert.True(t, cfg.Enabled())
	require.NoError(t, cfg.Validate())

	cfg.EventsChannel = ""
	assert.Error(t, cfg.Validate())
}

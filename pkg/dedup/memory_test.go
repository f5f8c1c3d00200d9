package dedup_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/dedup"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryGuard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("acquire within window", func(t *testing.T) {
		clk := &clock{now: time.Now()}
		g := dedup.NewMemoryGuard(10, dedup.WithClock(clk.Now))

		ok, err := g.Acquire(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = g.Acquire(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		send, err := g.ShouldSend(ctx, "k")
		require.NoError(t, err)
		assert.False(t, send)

		clk.Advance(time.Minute)
		send, err = g.ShouldSend(ctx, "k")
		require.NoError(t, err)
		assert.True(t, send)

		ok, err = g.Acquire(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("mark sent and release", func(t *testing.T) {
		g := dedup.NewMemoryGuard(10)
		require.NoError(t, g.MarkSent(ctx, "k", time.Minute))
		send, _ := g.ShouldSend(ctx, "k")
		assert.False(t, send)

		require.NoError(t, g.Release(ctx, "k"))
		send, _ = g.ShouldSend(ctx, "k")
		assert.True(t, send)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		g := dedup.NewMemoryGuard(0)
		_, err := g.Acquire(ctx, "", time.Minute)
		assert.ErrorIs(t, err, dedup.ErrEmptyKey)
		_, err = g.Acquire(ctx, "k", 0)
		assert.ErrorIs(t, err, dedup.ErrInvalidTTL)
		assert.ErrorIs(t, g.MarkSent(ctx, "k", -time.Second), dedup.ErrInvalidTTL)
		assert.ErrorIs(t, g.Release(ctx, ""), dedup.ErrEmptyKey)
		_, err = g.ShouldSend(ctx, "")
		assert.ErrorIs(t, err, dedup.ErrEmptyKey)
	})

	t.Run("prune", func(t *testing.T) {
		clk := &clock{now: time.Now()}
		g := dedup.NewMemoryGuard(10, dedup.WithClock(clk.Now))
		require.NoError(t, g.MarkSent(ctx, "a", time.Second))
		require.NoError(t, g.MarkSent(ctx, "b", time.Hour))
		clk.Advance(time.Minute)
		assert.Equal(t, 1, g.Prune())
	})

	t.Run("concurrent acquire", func(t *testing.T) {
		g := dedup.NewMemoryGuard(100)
		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 64 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := g.Acquire(ctx, "same", time.Minute); ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestWindows(t *testing.T) {
	t.Parallel()

	w := dedup.Config{
		Default: 10 * time.Minute,
		Email:   10 * time.Minute,
		ChatBot: 5 * time.Minute,
		Webhook: 10 * time.Minute,
		High:    time.Minute,
	}.Windows()

	assert.Equal(t, 10*time.Minute, w.For("email", false))
	assert.Equal(t, 5*time.Minute, w.For("chatbot", false))
	assert.Equal(t, time.Minute, w.For("chatbot", true))
	assert.Equal(t, 10*time.Minute, w.For("sms", false))

	assert.Equal(t, 10*time.Minute, dedup.Windows{}.For("email", true))
}

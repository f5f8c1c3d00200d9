package cache_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/cache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newCache(t *testing.T, capacity int) (*cache.ExpiringLRU[string, int], *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	return cache.NewExpiringLRU(capacity, cache.WithClock[string, int](clk.Now)), clk
}

func TestExpiringLRU_Basic(t *testing.T) {
	t.Parallel()

	t.Run("put and get", func(t *testing.T) {
		c, _ := newCache(t, 3)
		c.Put("a", 1, 0)
		c.Put("b", 2, time.Minute)

		v, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, 1, v)
		v, ok = c.Get("b")
		require.True(t, ok)
		assert.Equal(t, 2, v)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("missing key", func(t *testing.T) {
		c, _ := newCache(t, 3)
		v, ok := c.Get("missing")
		assert.False(t, ok)
		assert.Zero(t, v)
	})

	t.Run("overwrite refreshes ttl", func(t *testing.T) {
		c, clk := newCache(t, 3)
		c.Put("a", 1, time.Minute)
		clk.Advance(50 * time.Second)
		c.Put("a", 2, time.Minute)
		clk.Advance(50 * time.Second)
		v, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, 2, v)
	})

	t.Run("zero capacity panics", func(t *testing.T) {
		assert.Panics(t, func() { cache.NewExpiringLRU[string, int](0) })
	})
}

func TestExpiringLRU_Expiry(t *testing.T) {
	t.Parallel()

	c, clk := newCache(t, 10)
	c.Put("a", 1, time.Minute)
	c.Put("b", 2, 2*time.Minute)
	c.Put("c", 3, 0)

	clk.Advance(time.Minute)
	assert.False(t, c.Contains("a"))
	assert.True(t, c.Contains("b"))

	clk.Advance(time.Hour)
	assert.Equal(t, 1, c.Prune())
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains("c"))
}

func TestExpiringLRU_Eviction(t *testing.T) {
	t.Parallel()

	var evicted []string
	c := cache.NewExpiringLRU(2, cache.WithEvictCallback(func(k string, _ int) {
		evicted = append(evicted, k)
	}))

	c.Put("a", 1, 0)
	c.Put("b", 2, 0)
	_, _ = c.Get("a")
	c.Put("c", 3, 0)

	assert.Equal(t, []string{"b"}, evicted)
	assert.True(t, c.Contains("a"))
	assert.True(t, c.Contains("c"))
	assert.False(t, c.Contains("b"))
}

func TestExpiringLRU_PutIfAbsent(t *testing.T) {
	t.Parallel()

	t.Run("only first wins", func(t *testing.T) {
		c, _ := newCache(t, 10)
		assert.True(t, c.PutIfAbsent("k", 1, time.Minute))
		assert.False(t, c.PutIfAbsent("k", 2, time.Minute))
		v, _ := c.Get("k")
		assert.Equal(t, 1, v)
	})

	t.Run("expired entry can be taken again", func(t *testing.T) {
		c, clk := newCache(t, 10)
		require.True(t, c.PutIfAbsent("k", 1, time.Minute))
		clk.Advance(time.Minute)
		assert.True(t, c.PutIfAbsent("k", 2, time.Minute))
	})

	t.Run("remove releases key", func(t *testing.T) {
		c, _ := newCache(t, 10)
		require.True(t, c.PutIfAbsent("k", 1, time.Minute))
		assert.True(t, c.Remove("k"))
		assert.False(t, c.Remove("k"))
		assert.True(t, c.PutIfAbsent("k", 1, time.Minute))
	})

	t.Run("concurrent callers", func(t *testing.T) {
		c := cache.NewExpiringLRU[string, int](100)
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if c.PutIfAbsent("same", i, time.Minute) {
					wins.Add(1)
				}
				c.Put(fmt.Sprintf("k%d", i), i, time.Minute)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time // zero means no expiry
}

func (e *entry[K, V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// ExpiringLRU is an LRU cache with per-entry expiration.
// When the cache reaches its capacity, the least recently used item is evicted.
type ExpiringLRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List
	now      func() time.Time
	onEvict  func(key K, value V)
}

// Option configures an ExpiringLRU.
type Option[K comparable, V any] func(*ExpiringLRU[K, V])

// WithClock overrides the time source.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *ExpiringLRU[K, V]) {
		if now != nil {
			c.now = now
		}
	}
}

// WithEvictCallback registers fn to be called for entries removed by capacity
// pressure or expiry. Explicit Remove calls do not trigger it.
func WithEvictCallback[K comparable, V any](fn func(key K, value V)) Option[K, V] {
	return func(c *ExpiringLRU[K, V]) { c.onEvict = fn }
}

// NewExpiringLRU creates a cache holding at most capacity entries.
// Panics if capacity is not positive.
func NewExpiringLRU[K comparable, V any](capacity int, opts ...Option[K, V]) *ExpiringLRU[K, V] {
	if capacity <= 0 {
		panic("LRU cache capacity must be positive")
	}
	c := &ExpiringLRU[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the live value for key and marks it as recently used.
func (c *ExpiringLRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.live(key); ok {
		c.order.MoveToFront(e)
		return e.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Contains reports whether key holds a live value without touching recency.
func (c *ExpiringLRU[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live(key)
	return ok
}

// Put stores value under key. A ttl <= 0 stores it without expiry.
func (c *ExpiringLRU[K, V]) Put(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		ent := e.Value.(*entry[K, V])
		ent.value = value
		ent.expiresAt = c.expiry(ttl)
		c.order.MoveToFront(e)
		return
	}
	c.insert(key, value, ttl)
}

// PutIfAbsent stores value only if key has no live entry and reports whether
// it did. The check and the write happen under one lock.
func (c *ExpiringLRU[K, V]) PutIfAbsent(key K, value V, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.live(key); ok {
		return false
	}
	c.insert(key, value, ttl)
	return true
}

// Remove deletes key and reports whether a live entry was present.
func (c *ExpiringLRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return false
	}
	live := !e.Value.(*entry[K, V]).expired(c.now())
	c.order.Remove(e)
	delete(c.items, key)
	return live
}

// Len returns the number of stored entries, including expired ones not yet pruned.
func (c *ExpiringLRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Prune drops every expired entry and returns how many were removed.
func (c *ExpiringLRU[K, V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for e := c.order.Back(); e != nil; {
		prev := e.Prev()
		if e.Value.(*entry[K, V]).expired(now) {
			c.evict(e)
			n++
		}
		e = prev
	}
	return n
}

// live returns the element for key if it exists and has not expired.
// Expired elements are evicted on the way. Caller holds the lock.
func (c *ExpiringLRU[K, V]) live(key K) (*list.Element, bool) {
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if e.Value.(*entry[K, V]).expired(c.now()) {
		c.evict(e)
		return nil, false
	}
	return e, true
}

func (c *ExpiringLRU[K, V]) insert(key K, value V, ttl time.Duration) {
	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, expiresAt: c.expiry(ttl)})
	if c.order.Len() > c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.evict(oldest)
		}
	}
}

func (c *ExpiringLRU[K, V]) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func (c *ExpiringLRU[K, V]) evict(e *list.Element) {
	c.order.Remove(e)
	ent := e.Value.(*entry[K, V])
	delete(c.items, ent.key)
	if c.onEvict != nil {
		c.onEvict(ent.key, ent.value)
	}
}

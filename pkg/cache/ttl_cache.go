// Package cache provides a generic in-memory TTL cache.
//
// Every entry carries an expiry. Reads never return an expired entry; expired
// entries are physically removed by a background sweep every cleanupInterval.
// All methods are safe for concurrent use.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a concurrency-safe map whose entries expire after ttl. Values
// are read and written together through Upsert, so a read-modify-write on one
// key is never interleaved with another.
//
//	c := cache.NewWithClock[string, int](30*time.Second, 5*time.Minute, time.Now)
//	defer c.Close()
//	c.Upsert("key", func(n int, _ bool) (int, bool) { return n + 1, true })
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	now     func() time.Time

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// NewWithClock creates a cache that reads time from now and starts its
// eviction goroutine. Call Close when done.
func NewWithClock[K comparable, V any](ttl, cleanupInterval time.Duration, now func() time.Time) *TTLCache[K, V] {
	c := &TTLCache[K, V]{
		entries:     make(map[K]entry[V]),
		ttl:         ttl,
		now:         now,
		stopCleanup: make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.evictExpired()
			case <-c.stopCleanup:
				return
			}
		}
	}()

	return c
}

// Upsert runs fn on the current value of key (found=false if absent or expired)
// under the write lock and stores the result with a fresh ttl. If fn returns
// keep=false the key is removed. Upsert returns whatever fn returned.
func (c *TTLCache[K, V]) Upsert(key K, fn func(current V, found bool) (next V, keep bool)) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, found := c.entries[key]
	if found && !now.Before(e.expiresAt) {
		found = false
		var zero V
		e.value = zero
	}

	next, keep := fn(e.value, found)
	if keep {
		c.entries[key] = entry[V]{value: next, expiresAt: now.Add(c.ttl)}
	} else {
		delete(c.entries, key)
	}
	return next, keep
}

// Delete removes key.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Close stops the eviction goroutine. Safe to call more than once.
func (c *TTLCache[K, V]) Close() {
	c.closeOnce.Do(func() { close(c.stopCleanup) })
}

func (c *TTLCache[K, V]) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

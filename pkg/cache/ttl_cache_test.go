package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func newTestCache(t *testing.T, ttl time.Duration) (*TTLCache[string, int], *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := NewWithClock[string, int](ttl, time.Hour, clock.Now)
	t.Cleanup(c.Close)
	return c, clock
}

// get reads key without refreshing its ttl.
func get(c *TTLCache[string, int], key string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return 0, false
	}
	return e.value, true
}

func size(c *TTLCache[string, int]) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func set(c *TTLCache[string, int], key string, v int) {
	c.Upsert(key, func(int, bool) (int, bool) { return v, true })
}

func TestTTLCache_Expiry(t *testing.T) {
	c, clock := newTestCache(t, time.Minute)

	set(c, "a", 1)
	clock.Advance(59 * time.Second)
	_, ok := get(c, "a")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = get(c, "a")
	assert.False(t, ok, "entry must be dead exactly at its expiry")

	// Still physically present until a sweep runs.
	assert.Equal(t, 1, size(c))
	c.evictExpired()
	assert.Equal(t, 0, size(c))
}

func TestTTLCache_Upsert(t *testing.T) {
	c, clock := newTestCache(t, time.Minute)

	next, keep := c.Upsert("n", func(cur int, found bool) (int, bool) {
		assert.False(t, found)
		return cur + 1, true
	})
	assert.Equal(t, 1, next)
	assert.True(t, keep)

	c.Upsert("n", func(cur int, found bool) (int, bool) {
		assert.True(t, found)
		return cur + 1, true
	})
	v, _ := get(c, "n")
	assert.Equal(t, 2, v)

	clock.Advance(2 * time.Minute)
	c.Upsert("n", func(cur int, found bool) (int, bool) {
		assert.False(t, found, "expired entries are reported as absent")
		assert.Zero(t, cur)
		return 0, false
	})
	assert.Equal(t, 0, size(c))
}

func TestTTLCache_UpsertRefreshesTTL(t *testing.T) {
	c, clock := newTestCache(t, time.Minute)

	set(c, "a", 1)
	clock.Advance(50 * time.Second)
	set(c, "a", 2)
	clock.Advance(50 * time.Second)

	v, ok := get(c, "a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTTLCache_UpsertConcurrent(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Upsert("counter", func(cur int, _ bool) (int, bool) { return cur + 1, true })
		}()
	}
	wg.Wait()

	v, ok := get(c, "counter")
	require.True(t, ok)
	assert.Equal(t, 100, v)
}

func TestTTLCache_Delete(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	set(c, "login|1.1.1.1", 1)
	set(c, "register|1.1.1.1", 3)

	c.Delete("login|1.1.1.1")
	_, ok := get(c, "login|1.1.1.1")
	assert.False(t, ok)
	assert.Equal(t, 1, size(c))

	c.Delete("missing")
	assert.Equal(t, 1, size(c))
}

func TestTTLCache_CloseTwice(t *testing.T) {
	c := NewWithClock[string, int](time.Minute, time.Minute, time.Now)
	c.Close()
	assert.NotPanics(t, c.Close)
}

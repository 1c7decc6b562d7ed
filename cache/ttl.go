package cache

import (
	"sync"
	"time"
)

// TTL is a generic thread-safe expiring map. Entries older than the
// configured lifetime are treated as misses and evicted lazily on access.
type TTL[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]ttlEntry[V]
	ttl   time.Duration

	// now is replaceable for tests
	now func() time.Time
}

type ttlEntry[V any] struct {
	value    V
	storedAt time.Time
}

// NewTTL creates a TTL cache with the given entry lifetime.
func NewTTL[K comparable, V any](ttl time.Duration) *TTL[K, V] {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TTL[K, V]{
		items: make(map[K]ttlEntry[V]),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get retrieves a live value. An expired entry is evicted and reported
// as a miss.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}

	if c.now().Sub(e.storedAt) > c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; a fresher entry may have landed.
		if cur, still := c.items[key]; still && c.now().Sub(cur.storedAt) > c.ttl {
			delete(c.items, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}

	return e.value, true
}

// Set stores a value with the current timestamp.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = ttlEntry[V]{value: value, storedAt: c.now()}
}

// Delete removes an entry.
func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len returns the number of stored entries, including not-yet-evicted
// expired ones.
func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear removes all entries.
func (c *TTL[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]ttlEntry[V])
}

// Prune removes all expired entries eagerly and returns how many were
// removed.
func (c *TTL[K, V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	cutoff := c.now().Add(-c.ttl)
	for k, e := range c.items {
		if e.storedAt.Before(cutoff) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// SetClock replaces the time source. Intended for tests.
func (c *TTL[K, V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Package reqcache provides the TTL result cache and the per-key
// debouncer that sit between the interactive API surface and the
// prediction engine. The cache absorbs repeated identical requests,
// while the debouncer coalesces bursts of rapid-fire parameter changes
// so only the final state of a burst is computed.
package reqcache

import (
	"sync"
	"time"

	"github.com/whistle-data/refzone.report/internal/timeutil"
)

// DefaultTTL is how long a cached result stays servable.
const DefaultTTL = 5 * time.Minute

// Key identifies one fully specified prediction request. Overrides is
// the canonical fingerprint from features.Fingerprint, so equivalent
// override maps hit the same entry.
type Key struct {
	OfficialID string
	Season     string
	Exposure   string
	Grid       string
	Overrides  string
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is a TTL-bounded result cache. An expired entry behaves exactly
// like a miss; expiry never serves stale data.
type Cache[V any] struct {
	clock timeutil.Clock
	ttl   time.Duration

	mu      sync.Mutex
	entries map[Key]entry[V]
	hits    uint64
	misses  uint64
}

// NewCache creates a cache with the given TTL. A zero or negative ttl
// falls back to DefaultTTL.
func NewCache[V any](clock timeutil.Clock, ttl time.Duration) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[Key]entry[V]),
	}
}

// Get returns the cached value for k if present and not expired.
// Expired entries are evicted on the way out.
func (c *Cache[V]) Get(k Key) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k]
	if ok && c.clock.Now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, k)
		ok = false
	}
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Put stores v under k, resetting its TTL.
func (c *Cache[V]) Put(k Key, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k] = entry[V]{value: v, storedAt: c.clock.Now()}
}

// Invalidate drops the entry for k if present.
func (c *Cache[V]) Invalidate(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, k)
}

// InvalidateAll drops every entry. Used when the coefficient store is
// reseeded under a running server.
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]entry[V])
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	dropped := 0
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, k)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cumulative hit and miss counts.
func (c *Cache[V]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

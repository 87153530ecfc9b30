// Package ttlcache provides a single-process key/value cache where the TTL
// is a property of the read, not the entry. The same stored value can be
// queried under different effective TTLs, which lets one cache serve callers
// with different freshness requirements.
package ttlcache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is a mutex-guarded map of key to (value, write timestamp). Stale
// entries are evicted lazily on a read that finds them expired, or eagerly by
// Sweep. Size is unbounded; callers that need a bound should sweep.
type Cache[K comparable, V any] struct {
	mu   sync.Mutex
	data map[K]entry[V]
	now  func() time.Time
}

// New creates an empty cache.
func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		data: make(map[K]entry[V]),
		now:  time.Now,
	}
}

// Get returns the stored value if it was written less than ttl ago.
// An entry found expired under the supplied ttl is removed.
func (c *Cache[K, V]) Get(key K, ttl time.Duration) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().Sub(e.storedAt) < ttl {
		return e.value, true
	}
	delete(c.data, key)
	var zero V
	return zero, false
}

// Set stores value under key with the current timestamp, unconditionally
// overwriting any prior entry.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = entry[V]{value: value, storedAt: c.now()}
}

// Clear empties the cache.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[K]entry[V])
}

// Len returns the number of stored entries, including expired ones that have
// not yet been swept or read.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Sweep removes every entry older than ttl and returns the number evicted.
func (c *Cache[K, V]) Sweep(ttl time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	evicted := 0
	for key, e := range c.data {
		if now.Sub(e.storedAt) >= ttl {
			delete(c.data, key)
			evicted++
		}
	}
	return evicted
}

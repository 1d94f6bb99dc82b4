package proxy

import (
	"sync"
	"time"
)

// Cache is a thread-safe memoization cache with per-key TTLs fixed at
// construction. It holds at most one entry per key; a refresh simply
// overwrites the previous entry (last write wins).
type Cache struct {
	mu         sync.RWMutex
	items      map[string]cacheEntry
	ttls       map[string]time.Duration
	defaultTTL time.Duration
	hits       int64
	misses     int64

	// now is replaceable for tests
	now func() time.Time
}

type cacheEntry struct {
	value      interface{}
	capturedAt time.Time
	ttl        time.Duration
}

// NewCache creates a cache. ttls maps keys to their validity windows; keys
// without an explicit TTL use defaultTTL.
func NewCache(defaultTTL time.Duration, ttls map[string]time.Duration) *Cache {
	if ttls == nil {
		ttls = make(map[string]time.Duration)
	}
	return &Cache{
		items:      make(map[string]cacheEntry),
		ttls:       ttls,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get returns the cached value iff it is still within its TTL. An expired
// entry is treated as absent; the caller is expected to refresh via Put.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(entry.capturedAt) >= entry.ttl {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return entry.value, true
}

// Put stores a value under key with the key's configured TTL.
func (c *Cache) Put(key string, value interface{}) {
	ttl, ok := c.ttls[key]
	if !ok {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheEntry{
		value:      value,
		capturedAt: c.now(),
		ttl:        ttl,
	}
}

// Delete removes a key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Stats returns hit/miss counters and the current entry count.
func (c *Cache) Stats() (hits, misses int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.items)
}

// ABOUTME: Thread-safe TTL cache for resource list reads
// ABOUTME: Invalidated by prefix when a mutation settles against a collection

package readcache

import (
	"strings"
	"sync"
	"time"

	"github.com/driftline/driftline-console/internal/platform"
)

type entry struct {
	value    any
	storedAt time.Time
}

// Cache holds recently fetched collection reads so list screens do not
// refetch on every render. Entries expire after the TTL or when the owning
// collection is invalidated after a settled mutation.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	clock   platform.Clock
}

// New creates a cache with the given TTL. A zero TTL disables expiry; entries
// live until invalidated.
func New(ttl time.Duration, clock platform.Clock) *Cache {
	if clock == nil {
		clock = platform.SystemClock{}
	}
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.clock.Now().Sub(e.storedAt) >= c.ttl {
		return nil, false
	}
	return e.value, true
}

// Put stores the value under key.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, storedAt: c.clock.Now()}
}

// Invalidate drops every entry whose key starts with prefix.
func (c *Cache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

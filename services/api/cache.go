package api

import (
	"encoding/json"
	"sync"
	"time"
)

type cacheEntry struct {
	data      json.RawMessage
	timestamp time.Time
}

// responseCache holds successful GET bodies, keyed by endpoint. Entries
// expire after ttl regardless of the capacity eviction, which drops the
// oldest insertion when full.
type responseCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	maxItems int
	entries  map[string]cacheEntry
	order    []string // insertion order for oldest-first eviction
	now      func() time.Time
}

func newResponseCache(ttl time.Duration, maxItems int) *responseCache {
	return &responseCache{
		ttl:      ttl,
		maxItems: maxItems,
		entries:  make(map[string]cacheEntry),
		now:      time.Now,
	}
}

func (c *responseCache) get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.timestamp) > c.ttl {
		c.remove(key)
		return nil, false
	}
	return entry.data, true
}

func (c *responseCache) set(key string, data json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		if len(c.entries) >= c.maxItems && len(c.order) > 0 {
			c.remove(c.order[0])
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = cacheEntry{data: data, timestamp: c.now()}
}

func (c *responseCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *responseCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	c.order = nil
}

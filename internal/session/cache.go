package session

import (
	"sync"
	"time"
)

// cacheEntry pairs a session with its cache insertion time.
type cacheEntry struct {
	session    *ProxySession
	insertedAt time.Time
}

// readCache is the bounded in-process session cache. Sessions are
// immutable, so entries can only be absent or valid, never stale; the
// TTL exists to keep the working set small, not for correctness. At
// capacity the single oldest entry by insertion time is evicted.
type readCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	maxEntries int
	ttl        time.Duration
}

// newReadCache creates a bounded session read cache.
func newReadCache(maxEntries int, ttl time.Duration) *readCache {
	if maxEntries <= 0 {
		maxEntries = 500
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &readCache{
		entries:    make(map[string]cacheEntry, maxEntries),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// get returns the cached session for id, distinguishing an expired
// entry from a plain miss so callers can record the outcome.
func (c *readCache) get(id string) (s *ProxySession, expired bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil, false
	}

	if time.Since(entry.insertedAt) > c.ttl {
		delete(c.entries, id)
		return nil, true
	}

	return entry.session, false
}

// put inserts a session, evicting the oldest entry when at capacity.
func (c *readCache) put(s *ProxySession) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[s.ID]; !ok && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	c.entries[s.ID] = cacheEntry{
		session:    s,
		insertedAt: time.Now(),
	}
}

// evictOldest removes the entry with the earliest insertion time.
// Must be called with the lock held.
func (c *readCache) evictOldest() {
	var oldestID string
	var oldestAt time.Time

	for id, entry := range c.entries {
		if oldestID == "" || entry.insertedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = entry.insertedAt
		}
	}

	if oldestID != "" {
		delete(c.entries, oldestID)
	}
}

// len returns the current entry count.
func (c *readCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

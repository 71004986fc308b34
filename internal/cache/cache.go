// Package cache provides a small TTL cache for storage catalogue
// listings, so repeated quick checks do not hammer the backend.
package cache

import (
	"sync"
	"time"

	"github.com/kanbu/backup-integrity/internal/storage"
)

// entry is one cached catalogue listing.
type entry struct {
	objects   []storage.ObjectInfo
	expiresAt time.Time
}

func (e *entry) expired() bool {
	return time.Now().After(e.expiresAt)
}

// Stats holds cache hit/miss counters.
type Stats struct {
	Hits   int64
	Misses int64
}

// ListingCache caches storage listings per category with a fixed TTL.
type ListingCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	stats   Stats
}

// NewListingCache creates a cache with the given entry TTL.
func NewListingCache(ttl time.Duration) *ListingCache {
	return &ListingCache{
		entries: make(map[string]*entry),
		ttl:     ttl,
	}
}

// Get returns the cached listing for a category, if fresh.
func (c *ListingCache) Get(category string) ([]storage.ObjectInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[category]
	if !ok || e.expired() {
		if ok {
			delete(c.entries, category)
		}
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return e.objects, true
}

// Set stores a listing for a category.
func (c *ListingCache) Set(category string, objects []storage.ObjectInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[category] = &entry{
		objects:   objects,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Invalidate drops a cached category.
func (c *ListingCache) Invalidate(category string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, category)
}

// Stats returns hit/miss counters.
func (c *ListingCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

package pricing

import (
	"sync"
	"time"

	"github.com/ClipFinance/settlement-lib/common/types"
)

// CacheEntry is a quote with its freshness window.
type CacheEntry struct {
	Quote     types.Quote
	FetchedAt time.Time
	TTL       time.Duration
}

// Fresh reports whether the entry may still be served as-is at now.
func (e CacheEntry) Fresh(now time.Time) bool {
	return now.Sub(e.FetchedAt) < e.TTL
}

// Cache stores the latest quote per (input token, amount). Concurrent writers
// for the same key race and the last write wins; the mutex only keeps the
// map consistent.
type Cache struct {
	mu      sync.Mutex
	entries map[types.CacheKey]CacheEntry
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[types.CacheKey]CacheEntry)}
}

// Get returns the entry for key, fresh or not.
func (c *Cache) Get(key types.CacheKey) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	return entry, ok
}

// Put stores entry under key, replacing any previous entry.
func (c *Cache) Put(key types.CacheKey, entry CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

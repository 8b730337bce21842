package search

import (
	"sync"
	"time"

	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

type cacheEntry struct {
	results  []models.SearchResult
	storedAt time.Time
}

// Cache provides thread-safe caching of search results keyed by query.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewCache creates a new results cache with the specified TTL.
// A non-positive TTL disables caching.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get retrieves results for key if present and not expired.
// Returns a copy of the results and whether the lookup was a hit.
func (c *Cache) Get(key string) ([]models.SearchResult, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.storedAt) > c.ttl {
		return nil, false
	}

	out := make([]models.SearchResult, len(entry.results))
	copy(out, entry.results)
	return out, true
}

// Set stores results for key, evicting expired entries on the way.
func (c *Cache) Set(key string, results []models.SearchResult) {
	if c == nil || c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, entry := range c.entries {
		if now.Sub(entry.storedAt) > c.ttl {
			delete(c.entries, k)
		}
	}

	stored := make([]models.SearchResult, len(results))
	copy(stored, results)
	c.entries[key] = cacheEntry{results: stored, storedAt: now}
}

// Clear removes all cached entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}

// Size returns the number of cached queries, expired ones included.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

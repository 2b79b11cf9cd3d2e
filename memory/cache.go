package memory

import (
	"sync"
	"time"

	"github.com/becomeliminal/nim-memory/core"
)

// CacheStats is a snapshot of QueryCache occupancy and counters.
type CacheStats struct {
	Size          int           `json:"size"`
	MaxSize       int           `json:"max_size"`
	TTL           time.Duration `json:"ttl"`
	Hits          uint64        `json:"hits"`
	Misses        uint64        `json:"misses"`
	Evictions     uint64        `json:"evictions"`
	Expirations   uint64        `json:"expirations"`
	Invalidations uint64        `json:"invalidations"`
}

type cacheEntry struct {
	results    []core.RankedResult
	insertedAt time.Time
	seq        uint64
}

// QueryCache memoizes search results keyed by CacheKey.
//
// Entries are valid while their age is below the TTL. When full, inserting a
// new key evicts the entry with the oldest insertion time; reads never refresh
// an entry. Stored and returned slices are copies, so callers can't mutate
// cached state.
type QueryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	seq     uint64

	hits, misses, evictions, expirations, invalidations uint64
}

// NewQueryCache creates a cache holding at most maxSize entries for ttl.
// now defaults to time.Now.
func NewQueryCache(maxSize int, ttl time.Duration, now func() time.Time) *QueryCache {
	if now == nil {
		now = time.Now
	}
	if maxSize < 1 {
		maxSize = 1
	}
	return &QueryCache{
		entries: make(map[string]cacheEntry, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     now,
	}
}

// Get returns the cached results for key. Expired entries are removed and
// reported as a miss.
func (c *QueryCache) Get(key string) ([]core.RankedResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.expired(e, c.now()) {
		delete(c.entries, key)
		c.expirations++
		c.misses++
		return nil, false
	}
	c.hits++
	return cloneOrEmpty(e.results), true
}

// Set stores results under key, evicting the oldest entry if the cache is
// full and key is new.
func (c *QueryCache) Set(key string, results []core.RankedResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.seq++
	c.entries[key] = cacheEntry{
		results:    cloneOrEmpty(results),
		insertedAt: c.now(),
		seq:        c.seq,
	}
}

// InvalidateAll drops every entry and returns how many were removed.
func (c *QueryCache) InvalidateAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	if n > 0 {
		c.entries = make(map[string]cacheEntry, c.maxSize)
		c.invalidations++
	}
	return n
}

// Sweep removes expired entries and returns how many were removed.
func (c *QueryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
			removed++
		}
	}
	c.expirations += uint64(removed)
	return removed
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *QueryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Size:          len(c.entries),
		MaxSize:       c.maxSize,
		TTL:           c.ttl,
		Hits:          c.hits,
		Misses:        c.misses,
		Evictions:     c.evictions,
		Expirations:   c.expirations,
		Invalidations: c.invalidations,
	}
}

func (c *QueryCache) expired(e cacheEntry, now time.Time) bool {
	return now.Sub(e.insertedAt) >= c.ttl
}

// evictOldest must be called with mu held.
func (c *QueryCache) evictOldest() {
	var (
		oldestKey string
		oldest    cacheEntry
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.insertedAt.Before(oldest.insertedAt) ||
			(e.insertedAt.Equal(oldest.insertedAt) && e.seq < oldest.seq) {
			oldestKey, oldest, found = k, e, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

func cloneOrEmpty(results []core.RankedResult) []core.RankedResult {
	if len(results) == 0 {
		return []core.RankedResult{}
	}
	return core.CloneResults(results)
}

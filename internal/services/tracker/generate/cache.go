package generate

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// CacheKey identifies one generation by everything that shapes its output.
// Two calls with the same key are interchangeable, so re-running a turn (for
// example after a swipe on a later message) reuses earlier responses.
type CacheKey struct {
	Prompt      string
	Profile     string
	Temperature float64
	SystemHash  string
	UserHash    string
}

type cacheEntry struct {
	response string
	storedAt time.Time
}

// ResultCache remembers raw responses of successful generations. Entries
// older than the max age are treated as absent. Safe for concurrent use.
type ResultCache struct {
	mu      sync.Mutex
	maxAge  time.Duration
	entries map[CacheKey]cacheEntry
}

// NewResultCache creates a cache whose entries expire after maxAge. A zero
// maxAge disables expiry.
func NewResultCache(maxAge time.Duration) *ResultCache {
	return &ResultCache{
		maxAge:  maxAge,
		entries: make(map[CacheKey]cacheEntry),
	}
}

// Get returns the cached response for key if present and fresh at now.
func (c *ResultCache) Get(key CacheKey, now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.maxAge > 0 && now.Sub(e.storedAt) > c.maxAge {
		delete(c.entries, key)
		return "", false
	}
	return e.response, true
}

// Put stores a response against key.
func (c *ResultCache) Put(key CacheKey, response string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{response: response, storedAt: now}
}

// Len reports the number of stored entries, expired or not.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reset drops every entry. Test hook.
func (c *ResultCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[CacheKey]cacheEntry)
}

func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Package cache is a small in-process TTL cache used to memoize search
// responses, so repeated scheduled runs inside the window reuse the previous
// answer instead of spending API quota again.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func New() *TTLCache {
	c := &TTLCache{
		entries: make(map[string]entry),
	}

	go c.janitor()

	return c
}

func (c *TTLCache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Get returns the cached value if it has not expired. Expired entries are
// left for the janitor so reads stay on the read lock.
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.entries[key]
	if !exists || time.Now().After(e.expiresAt) {
		return nil, false
	}

	return e.value, true
}

func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Key derives a stable cache key from the request parts.
func Key(parts ...string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h.Sum(nil))
}

// QueryKey is the key for one search request.
func QueryKey(query string, maxResults int) string {
	return Key(query, fmt.Sprintf("%d", maxResults))
}

func (c *TTLCache) janitor() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		c.sweep()
	}
}

func (c *TTLCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

package cache

import (
	"strings"
	"sync"
	"time"
)

// Entry is one cached value with its lifetime. Entries at or past ExpiresAt
// are treated as absent; they are evicted lazily on access and in bulk
// by the periodic sweep.
type Entry[T any] struct {
	Data      T
	CreatedAt int64 // Unix timestamp in milliseconds
	ExpiresAt int64 // Unix timestamp in milliseconds
}

// Cache is an in-process TTL cache. All operations are safe for
// concurrent use. CachedFetch runs its producer outside the lock, so a
// slow recompute never blocks readers of other keys; concurrent
// producers for the same key race and the last write wins.
type Cache[T any] struct {
	mu         sync.RWMutex
	entries    map[string]Entry[T]
	defaultTTL time.Duration

	now func() int64
}

// New creates a Cache with the given default TTL.
func New[T any](defaultTTL time.Duration) *Cache[T] {
	return &Cache[T]{
		entries:    make(map[string]Entry[T]),
		defaultTTL: defaultTTL,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// Get returns the live value for a key. An expired entry is evicted and
// reported as a miss.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero T
	if !ok {
		return zero, false
	}
	if c.now() >= e.ExpiresAt {
		c.mu.Lock()
		// Re-check: a writer may have refreshed the entry meanwhile.
		if cur, still := c.entries[key]; still && c.now() >= cur.ExpiresAt {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.Data, true
}

// Has reports whether a key holds a live value.
func (c *Cache[T]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Set stores a value under the default TTL.
func (c *Cache[T]) Set(key string, value T) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores a value with an explicit TTL.
func (c *Cache[T]) SetTTL(key string, value T, ttl time.Duration) {
	now := c.now()
	c.mu.Lock()
	c.entries[key] = Entry[T]{
		Data:      value,
		CreatedAt: now,
		ExpiresAt: now + ttl.Milliseconds(),
	}
	c.mu.Unlock()
}

// CachedFetch returns the live value for a key, or runs the producer
// and caches its result. Producer errors are returned without caching
// anything.
func (c *Cache[T]) CachedFetch(key string, ttl time.Duration, producer func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := producer()
	if err != nil {
		var zero T
		return zero, err
	}
	c.SetTTL(key, v, ttl)
	return v, nil
}

// Invalidate removes a key. Returns true if a live entry was removed.
func (c *Cache[T]) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	return c.now() < e.ExpiresAt
}

// InvalidatePattern removes every key matching a glob-style pattern
// where '*' matches any run of characters. Returns the number of keys
// removed.
func (c *Cache[T]) InvalidatePattern(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key := range c.entries {
		if matchPattern(pattern, key) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Sweep evicts every expired entry and returns the count.
func (c *Cache[T]) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if now >= e.ExpiresAt {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// matchPattern matches key against pattern, with '*' matching any run
// of characters including the empty run.
func matchPattern(pattern, key string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == key
	}
	if !strings.HasPrefix(key, parts[0]) {
		return false
	}
	key = key[len(parts[0]):]
	for i := 1; i < len(parts)-1; i++ {
		idx := strings.Index(key, parts[i])
		if idx < 0 {
			return false
		}
		key = key[idx+len(parts[i]):]
	}
	return strings.HasSuffix(key, parts[len(parts)-1])
}

package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process backend. It is mainly used for tests and
// single-instance deployments.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	sliding bool
	now     func() time.Time
}

type cacheEntry struct {
	value     []byte
	ttl       time.Duration
	expiresAt time.Time
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithSlidingTTL makes every successful read extend the entry's expiry by
// its original TTL.
func WithSlidingTTL() MemoryOption {
	return func(c *MemoryCache) { c.sliding = true }
}

// WithNow overrides the clock used for expiry checks.
func WithNow(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) { c.now = now }
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]*cacheEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a payload. Expired entries are removed lazily.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	now := c.now()

	if !c.sliding {
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if !ok {
			return nil, false, nil
		}
		if !now.Before(entry.expiresAt) {
			c.mu.Lock()
			if cur, ok := c.entries[key]; ok && cur == entry {
				delete(c.entries, key)
			}
			c.mu.Unlock()
			return nil, false, nil
		}
		return entry.value, true, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !now.Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	entry.expiresAt = now.Add(entry.ttl)
	return entry.value, true, nil
}

// GetWithTTL retrieves a payload and its remaining lifetime.
func (c *MemoryCache) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	b, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return nil, 0, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, 0, false, nil
	}
	remaining := entry.expiresAt.Sub(c.now())
	if remaining <= 0 {
		return nil, 0, false, nil
	}
	return b, remaining, true, nil
}

// Set stores a payload. A non-positive ttl stores nothing.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	buf := make([]byte, len(value))
	copy(buf, value)

	c.mu.Lock()
	c.entries[key] = &cacheEntry{
		value:     buf,
		ttl:       ttl,
		expiresAt: c.now().Add(ttl),
	}
	c.mu.Unlock()

	return nil
}

// Delete removes a payload. Idempotent - no error on miss.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, including expired entries that
// have not been read since expiring.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var (
	_ Cache        = (*MemoryCache)(nil)
	_ ExpiryReader = (*MemoryCache)(nil)
)

package cache

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"
)

// RistrettoConfig sizes a RistrettoCache.
type RistrettoConfig struct {
	NumCounters int64
	MaxCost     int64 // total payload bytes
	BufferItems int64
}

// DefaultRistrettoConfig holds about 64MiB of payloads.
func DefaultRistrettoConfig() RistrettoConfig {
	return RistrettoConfig{
		NumCounters: 1e6,
		MaxCost:     64 << 20,
		BufferItems: 64,
	}
}

// RistrettoCache is a bounded in-process backend with per-entry TTL.
// Writes are admitted by ristretto's policy and may be dropped under
// pressure, which the Cache contract allows.
type RistrettoCache struct {
	c *rc.Cache
}

// NewRistrettoCache builds a RistrettoCache.
func NewRistrettoCache(cfg RistrettoConfig) (*RistrettoCache, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("cache: invalid ristretto config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoCache{c: c}, nil
}

// Get retrieves a payload.
func (r *RistrettoCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := r.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		r.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set stores a payload. A non-positive ttl stores nothing.
func (r *RistrettoCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	r.c.SetWithTTL(key, buf, int64(len(buf))+1, ttl)
	return nil
}

// Delete removes a payload.
func (r *RistrettoCache) Delete(_ context.Context, key string) error {
	r.c.Del(key)
	return nil
}

// Wait blocks until buffered writes are applied.
func (r *RistrettoCache) Wait() {
	r.c.Wait()
}

// Close stops ristretto's background goroutines.
func (r *RistrettoCache) Close() error {
	r.c.Close()
	return nil
}

var _ Cache = (*RistrettoCache)(nil)

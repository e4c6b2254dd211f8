package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueryTimeout bounds each Redis round trip.
const DefaultQueryTimeout = 5 * time.Second

// RedisConfig configures a RedisCache.
type RedisConfig struct {
	// Prefix is prepended to every key as "<prefix>:<key>". Empty disables it.
	Prefix string

	// QueryTimeout bounds each operation. Zero selects DefaultQueryTimeout.
	QueryTimeout time.Duration
}

// RedisCache is a shared backend stored in Redis.
// The caller owns the client unless the cache was built with NewRedisCacheFromURL.
type RedisCache struct {
	client redis.UniversalClient
	cfg    RedisConfig
	owns   bool
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.UniversalClient, cfg RedisConfig) *RedisCache {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	return &RedisCache{client: client, cfg: cfg}
}

// NewRedisCacheFromURL dials a client from a redis:// URL. Close releases it.
func NewRedisCacheFromURL(url string, cfg RedisConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	c := NewRedisCache(redis.NewClient(opts), cfg)
	c.owns = true
	return c, nil
}

func (c *RedisCache) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.cfg.QueryTimeout)
}

func (c *RedisCache) prefixKey(key string) string {
	if c.cfg.Prefix == "" {
		return key
	}
	return c.cfg.Prefix + ":" + key
}

// Get retrieves a payload. redis.Nil is a miss, not an error.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	b, err := c.client.Get(qctx, c.prefixKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// GetWithTTL reads the payload and its PTTL in one MULTI/EXEC round trip.
// A key without expiry reports a zero lifetime.
func (c *RedisCache) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()

	k := c.prefixKey(key)
	pipe := c.client.TxPipeline()
	get := pipe.Get(qctx, k)
	pttl := pipe.PTTL(qctx, k)
	if _, err := pipe.Exec(qctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, err
	}

	b, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	remaining := pttl.Val()
	if remaining < 0 {
		remaining = 0
	}
	return b, remaining, true, nil
}

// Set stores a payload with an expiry. A non-positive ttl stores nothing.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	return c.client.Set(qctx, c.prefixKey(key), value, ttl).Err()
}

// Delete removes a payload. Deleting a missing key is not an error.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	return c.client.Del(qctx, c.prefixKey(key)).Err()
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	return c.client.Ping(qctx).Err()
}

// Close releases the client if this cache dialed it.
func (c *RedisCache) Close() error {
	if c.owns {
		return c.client.Close()
	}
	return nil
}

var (
	_ Cache        = (*RedisCache)(nil)
	_ ExpiryReader = (*RedisCache)(nil)
)

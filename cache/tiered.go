package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jonwraymond/ledgerops/observe"
)

// TieredCache chains a local tier in front of a shared tier.
// Get checks local then shared and backfills local on a shared hit.
// Set and Delete go to both tiers.
type TieredCache struct {
	local  Cache
	shared Cache
	logger observe.Logger

	// localTTL caps how long an entry lives in the local tier, which bounds
	// staleness across instances after an invalidation.
	localTTL time.Duration
}

// TieredOption configures a TieredCache.
type TieredOption func(*TieredCache)

// WithTieredLogger sets the logger that receives backfill failures.
func WithTieredLogger(logger observe.Logger) TieredOption {
	return func(t *TieredCache) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTieredCache builds a TieredCache. A non-positive localTTL keeps local
// entries for the full TTL requested by the caller and disables backfill.
// Backfill also needs the shared tier to implement ExpiryReader, so a
// backfilled entry never outlives the shared one.
func NewTieredCache(local, shared Cache, localTTL time.Duration, opts ...TieredOption) (*TieredCache, error) {
	if local == nil || shared == nil {
		return nil, ErrNilCache
	}
	t := &TieredCache{local: local, shared: shared, localTTL: localTTL, logger: observe.NopLogger()}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *TieredCache) capLocal(ttl time.Duration) time.Duration {
	if t.localTTL > 0 && ttl > t.localTTL {
		return t.localTTL
	}
	return ttl
}

// Get returns the first hit. A local error falls through to the shared tier.
func (t *TieredCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if b, ok, err := t.local.Get(ctx, key); err == nil && ok {
		return b, true, nil
	}

	er, canBackfill := t.shared.(ExpiryReader)
	if t.localTTL <= 0 || !canBackfill {
		return t.shared.Get(ctx, key)
	}

	b, remaining, ok, err := er.GetWithTTL(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if remaining > 0 {
		if err := t.local.Set(ctx, key, b, t.capLocal(remaining)); err != nil {
			t.logger.Warn(ctx, "cache backfill failed",
				observe.Field{Key: "key", Value: key},
				observe.Field{Key: "error", Value: err},
			)
		}
	}
	return b, true, nil
}

// Set writes both tiers and joins their errors.
func (t *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	errLocal := t.local.Set(ctx, key, value, t.capLocal(ttl))
	errShared := t.shared.Set(ctx, key, value, ttl)
	return errors.Join(errLocal, errShared)
}

// Delete removes the key from both tiers even if one of them fails.
func (t *TieredCache) Delete(ctx context.Context, key string) error {
	errLocal := t.local.Delete(ctx, key)
	errShared := t.shared.Delete(ctx, key)
	return errors.Join(errLocal, errShared)
}

var _ Cache = (*TieredCache)(nil)

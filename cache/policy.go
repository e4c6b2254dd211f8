package cache

import "time"

// Policy bounds the TTLs handed to the cache-aside engine.
type Policy struct {
	// DefaultTTL is used by callers that have no TTL of their own.
	DefaultTTL time.Duration

	// MaxTTL is the maximum allowed TTL. Larger TTLs are clamped to this.
	// If zero, no maximum is enforced.
	MaxTTL time.Duration
}

// DefaultPolicy returns the ledger caching policy.
// DefaultTTL: 10 minutes, MaxTTL: 1 hour
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL: 10 * time.Minute,
		MaxTTL:     1 * time.Hour,
	}
}

// NoCachePolicy returns a policy under which every value passes through
// uncached.
func NoCachePolicy() Policy {
	return Policy{}
}

// ShouldCache returns true if caching is enabled by this policy.
func (p Policy) ShouldCache() bool {
	return p.DefaultTTL > 0
}

// EffectiveTTL clamps ttl to MaxTTL. Zero stays zero so pass-through
// requests are never turned into cached ones; negative values become zero.
func (p Policy) EffectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		return p.MaxTTL
	}
	return ttl
}

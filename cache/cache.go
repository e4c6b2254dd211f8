package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrNilCache   = errors.New("cache: cache is nil")
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
	ErrInvalidTTL = errors.New("cache: ttl must not be negative")
	ErrNilCodec   = errors.New("cache: codec is nil")
)

// Cache is the backend capability consumed by the cache-aside engine.
// Backends are typically shared, remote, and unreliable.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines where applicable.
// - Get returns (nil, false, nil) on miss. A non-nil error means the
// backend could not answer; callers treat it as a miss.
// - Set with ttl <= 0 stores nothing.
// - Delete is idempotent: deleting a missing key is not an error.
type Cache interface {
	// Get retrieves a cached payload.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a payload for at most ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a cached payload.
	Delete(ctx context.Context, key string) error
}

// ExpiryReader is implemented by backends that can report how long an entry
// has left to live alongside its payload.
//
// GetWithTTL returns a remaining lifetime of zero or less when the entry has
// no expiry or the backend cannot tell.
type ExpiryReader interface {
	GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool, error)
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}

// ValidateTTL rejects negative TTLs. Zero is valid and means pass-through.
func ValidateTTL(ttl time.Duration) error {
	if ttl < 0 {
		return ErrInvalidTTL
	}
	return nil
}

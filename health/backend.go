package health

import (
	"context"
	"fmt"
	"time"
)

// Pinger is a backend that can be probed, such as a Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheChecker probes a cache backend.
//
// A failed ping or one slower than SlowThreshold reports Degraded, since
// the ledger keeps serving reads from the store while the cache is away.
type CacheChecker struct {
	name          string
	pinger        Pinger
	slowThreshold time.Duration
}

// NewCacheChecker creates a CacheChecker. A zero slow threshold defaults
// to 100ms.
func NewCacheChecker(name string, p Pinger, slowThreshold time.Duration) *CacheChecker {
	if slowThreshold <= 0 {
		slowThreshold = 100 * time.Millisecond
	}
	return &CacheChecker{name: name, pinger: p, slowThreshold: slowThreshold}
}

func (c *CacheChecker) Name() string { return c.name }

func (c *CacheChecker) Check(ctx context.Context) Result {
	start := time.Now()
	err := c.pinger.Ping(ctx)
	elapsed := time.Since(start)
	details := map[string]any{"latency_ms": elapsed.Milliseconds()}

	switch {
	case err != nil:
		return Degraded("cache unreachable", err).WithDetails(details)
	case elapsed > c.slowThreshold:
		return Degraded(fmt.Sprintf("cache slow: %s", elapsed.Round(time.Millisecond)), nil).WithDetails(details)
	default:
		return Healthy("cache reachable").WithDetails(details)
	}
}

// BreakerChecker reports the state of a circuit breaker guarding a
// backend. An open or half-open breaker is Degraded.
type BreakerChecker struct {
	name  string
	state func() string
}

// NewBreakerChecker creates a BreakerChecker. state returns the breaker
// state name ("closed", "open" or "half-open").
func NewBreakerChecker(name string, state func() string) *BreakerChecker {
	return &BreakerChecker{name: name, state: state}
}

func (b *BreakerChecker) Name() string { return b.name }

func (b *BreakerChecker) Check(_ context.Context) Result {
	s := b.state()
	details := map[string]any{"state": s}
	if s == "closed" {
		return Healthy("circuit closed").WithDetails(details)
	}
	return Degraded("circuit "+s, nil).WithDetails(details)
}

var (
	_ Checker = (*CacheChecker)(nil)
	_ Checker = (*BreakerChecker)(nil)
)

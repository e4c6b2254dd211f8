package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jonwraymond/ledgerops/resilience"
)

// GuardedCache protects callers from a slow or failing backend. Every call
// runs under a per-operation timeout, and consecutive failures open a
// circuit breaker so later calls fail fast with resilience.ErrCircuitOpen
// instead of waiting on a dead backend.
type GuardedCache struct {
	inner   Cache
	breaker *resilience.CircuitBreaker
	exec    *resilience.Executor
}

// GuardConfig configures a GuardedCache.
type GuardConfig struct {
	// Timeout bounds each backend call. Default: 250ms
	Timeout time.Duration

	// MaxFailures opens the breaker. Default: 5
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 10s
	ResetTimeout time.Duration

	// OnStateChange observes breaker transitions.
	OnStateChange func(from, to resilience.State)
}

// NewGuardedCache wraps inner.
func NewGuardedCache(inner Cache, cfg GuardConfig) (*GuardedCache, error) {
	if inner == nil {
		return nil, ErrNilCache
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 250 * time.Millisecond
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 10 * time.Second
	}

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:   cfg.MaxFailures,
		ResetTimeout:  cfg.ResetTimeout,
		OnStateChange: cfg.OnStateChange,
		// The caller giving up says nothing about backend health.
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		},
	})

	return &GuardedCache{
		inner:   inner,
		breaker: cb,
		exec: resilience.NewExecutor(
			resilience.WithCircuitBreaker(cb),
			resilience.WithTimeout(cfg.Timeout),
		),
	}, nil
}

// Get retrieves a payload through the breaker.
func (g *GuardedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		b  []byte
		ok bool
	)
	err := g.exec.Execute(ctx, func(ctx context.Context) error {
		var err error
		b, ok, err = g.inner.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return b, ok, nil
}

// Set stores a payload through the breaker.
func (g *GuardedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return g.exec.Execute(ctx, func(ctx context.Context) error {
		return g.inner.Set(ctx, key, value, ttl)
	})
}

// Delete removes a payload through the breaker.
func (g *GuardedCache) Delete(ctx context.Context, key string) error {
	return g.exec.Execute(ctx, func(ctx context.Context) error {
		return g.inner.Delete(ctx, key)
	})
}

// State reports the breaker state.
func (g *GuardedCache) State() resilience.State {
	return g.breaker.State()
}

var _ Cache = (*GuardedCache)(nil)

package cache

import (
	"context"
	"reflect"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/ledgerops/observe"
)

// Lookup outcomes reported to Metrics.
const (
	ResultHit         = "hit"
	ResultMiss        = "miss"
	ResultReadError   = "read_error"
	ResultCorrupt     = "corrupt"
	ResultEncodeError = "encode_error"
	ResultWriteError  = "write_error"
)

// Metrics receives cache-aside outcomes. observe.Metrics satisfies it.
type Metrics interface {
	RecordCache(ctx context.Context, family, result string)
}

// Options configures an Aside engine.
type Options struct {
	// Codec serializes values. Default: JSONCodec.
	Codec Codec

	// Policy clamps TTLs. Default: no clamping.
	Policy Policy

	// Logger receives backend and codec failures. Default: discard.
	Logger observe.Logger

	// Metrics receives lookup outcomes. Default: discard.
	Metrics Metrics

	// Coalesce shares one compute between concurrent misses on the same
	// key within this process. Off by default, so concurrent misses each
	// compute.
	Coalesce bool
}

// Aside is the cache-aside engine: read the backend, compute on miss, write
// back. Backend and codec failures are logged and degrade to a miss; they
// are never returned to callers of GetOrSet.
//
// Aside is safe for concurrent use.
type Aside struct {
	backend  Cache
	codec    Codec
	policy   Policy
	logger   observe.Logger
	metrics  Metrics
	coalesce bool
	group    singleflight.Group
}

// NewAside builds an engine over backend.
func NewAside(backend Cache, opts Options) (*Aside, error) {
	if backend == nil {
		return nil, ErrNilCache
	}
	if opts.Codec == nil {
		opts.Codec = JSONCodec{}
	}
	if opts.Logger == nil {
		opts.Logger = observe.NopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	return &Aside{
		backend:  backend,
		codec:    opts.Codec,
		policy:   opts.Policy,
		logger:   opts.Logger.With(observe.Field{Key: "component", Value: "cache"}),
		metrics:  opts.Metrics,
		coalesce: opts.Coalesce,
	}, nil
}

// GetOrSet returns the cached value for key, or computes, stores and returns
// it on a miss.
//
// A hit never calls compute. A miss (absent, empty, unreadable or
// undecodable entry) calls compute exactly once for this call. Compute
// errors are returned unchanged and nothing is stored. Nil results are
// returned but never stored. A ttl of zero computes and returns without
// storing. Each call issues at most one backend read and one backend write.
func GetOrSet[T any](ctx context.Context, a *Aside, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var zero T
	if a == nil {
		return zero, ErrNilCache
	}
	if err := ValidateKey(key); err != nil {
		return zero, err
	}
	if err := ValidateTTL(ttl); err != nil {
		return zero, err
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	ttl = a.policy.EffectiveTTL(ttl)

	if v, ok := lookup[T](ctx, a, key); ok {
		return v, nil
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	if !a.coalesce {
		return fill(ctx, a, key, ttl, compute)
	}

	// The shared compute must outlive any single caller, so it runs
	// detached from the leader's cancellation; each caller still stops
	// waiting when its own context ends.
	ch := a.group.DoChan(key, func() (any, error) {
		return fill(context.WithoutCancel(ctx), a, key, ttl, compute)
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, ok := res.Val.(T)
		if !ok {
			// Same key used with two value types; compute our own.
			return fill(ctx, a, key, ttl, compute)
		}
		return v, nil
	}
}

// Remove deletes key from the backend. Removing a missing key is not an
// error. Backend failures are returned for the caller to log.
func (a *Aside) Remove(ctx context.Context, key string) error {
	if a == nil {
		return ErrNilCache
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	return a.backend.Delete(ctx, key)
}

func lookup[T any](ctx context.Context, a *Aside, key string) (T, bool) {
	var zero T
	family := KeyFamily(key)

	b, ok, err := a.backend.Get(ctx, key)
	if err != nil {
		a.logger.Warn(ctx, "cache read failed",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "error", Value: err},
		)
		a.metrics.RecordCache(ctx, family, ResultReadError)
		return zero, false
	}
	if !ok || len(b) == 0 {
		a.metrics.RecordCache(ctx, family, ResultMiss)
		return zero, false
	}

	var v T
	if err := a.codec.Unmarshal(b, &v); err != nil {
		a.logger.Warn(ctx, "cache payload corrupt",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "codec", Value: a.codec.Name()},
			observe.Field{Key: "error", Value: err},
		)
		a.metrics.RecordCache(ctx, family, ResultCorrupt)
		return zero, false
	}

	a.metrics.RecordCache(ctx, family, ResultHit)
	return v, true
}

func fill[T any](ctx context.Context, a *Aside, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	v, err := compute(ctx)
	if err != nil {
		return v, err
	}
	if ttl <= 0 || isNil(v) {
		return v, nil
	}

	b, err := a.codec.Marshal(v)
	if err != nil {
		a.logger.Warn(ctx, "cache encode failed",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "codec", Value: a.codec.Name()},
			observe.Field{Key: "error", Value: err},
		)
		a.metrics.RecordCache(ctx, KeyFamily(key), ResultEncodeError)
		return v, nil
	}
	if err := a.backend.Set(ctx, key, b, ttl); err != nil {
		a.logger.Warn(ctx, "cache write failed",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "ttl", Value: ttl},
			observe.Field{Key: "error", Value: err},
		)
		a.metrics.RecordCache(ctx, KeyFamily(key), ResultWriteError)
	}
	return v, nil
}

// isNil reports whether v is a nil interface, pointer, map, slice, channel
// or func. Empty but non-nil collections are real results and get cached.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	}
	return false
}

// KeyFamily returns the first segment of key, used as a low-cardinality
// metric label. KeyFamily("lancamento:42") == "lancamento".
func KeyFamily(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

type nopMetrics struct{}

func (nopMetrics) RecordCache(context.Context, string, string) {}

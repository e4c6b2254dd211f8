package cache

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jonwraymond/ledgerops/observe"
)

// InvalidateError reports the keys that could not be removed.
type InvalidateError struct {
	Failed map[string]error
}

func (e *InvalidateError) Error() string {
	keys := make([]string, 0, len(e.Failed))
	for k := range e.Failed {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return fmt.Sprintf("cache: failed to invalidate %d key(s): %s", len(keys), strings.Join(keys, ", "))
}

// Unwrap exposes the per-key errors to errors.Is and errors.As.
func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}

// Invalidator removes cache entries made stale by a write.
//
// Invalidate must be called only after the write is durable. A read whose
// compute started before the write and finishes after Invalidate can still
// store the pre-write value; that entry lives until its TTL expires.
type Invalidator struct {
	aside  *Aside
	logger observe.Logger
}

// NewInvalidator builds an Invalidator over an engine.
func NewInvalidator(aside *Aside, logger observe.Logger) (*Invalidator, error) {
	if aside == nil {
		return nil, ErrNilCache
	}
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Invalidator{aside: aside, logger: logger}, nil
}

// Invalidate removes every key independently. A failure on one key does not
// stop the others. Duplicate keys are removed once. The returned error, if
// any, is an *InvalidateError.
func (i *Invalidator) Invalidate(ctx context.Context, keys ...string) error {
	seen := make(map[string]struct{}, len(keys))
	var failed map[string]error

	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if err := i.aside.Remove(ctx, key); err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[key] = err
			i.logger.Warn(ctx, "cache invalidation failed",
				observe.Field{Key: "key", Value: key},
				observe.Field{Key: "error", Value: err},
			)
		}
	}

	if len(failed) > 0 {
		return &InvalidateError{Failed: failed}
	}
	return nil
}

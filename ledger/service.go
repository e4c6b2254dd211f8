package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/ledgerops/cache"
	"github.com/jonwraymond/ledgerops/observe"
	"github.com/jonwraymond/ledgerops/resilience"
)

// Operation names, used in spans, metrics and logs.
const (
	OpGetAll     = "get_all"
	OpGetByType  = "get_by_type"
	OpGetByID    = "get_by_id"
	OpBalances   = "balances"
	OpCreate     = "create"
	OpUpdate     = "update"
	OpDeleteMany = "delete_many"
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// TTL applies to entry lists and single entries. Default: 10 minutes
	TTL time.Duration

	// BalancesTTL applies to balance queries, which are not invalidated by
	// writes because their keys cannot be enumerated. Default: 1 minute
	BalancesTTL time.Duration

	// Retry is the read retry policy. Its OnRetry hook is replaced.
	// Default: resilience.DefaultRetryConfig()
	Retry resilience.RetryConfig

	// MaxConcurrentQueries caps concurrent store reads. Zero means no cap.
	MaxConcurrentQueries int
}

// Service answers ledger queries through the cache-aside engine and
// invalidates cached results after writes.
//
// Reads run GetOrSet under the retry policy, so a failing store read is
// retried and a hit never touches the store. Writes go straight to the
// store; once the store reports the write durable, the affected keys are
// invalidated. Invalidation failures are logged and never fail the write.
type Service struct {
	store    Store
	aside    *cache.Aside
	inval    *cache.Invalidator
	mw       *observe.Middleware
	logger   observe.Logger
	bulkhead *resilience.Bulkhead
	retries  map[string]*resilience.Retry
	cfg      ServiceConfig
}

// NewService wires a Service. mw may be nil.
func NewService(store Store, aside *cache.Aside, mw *observe.Middleware, cfg ServiceConfig) (*Service, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if aside == nil {
		return nil, cache.ErrNilCache
	}
	if mw == nil {
		mw = observe.NewMiddleware(nil, nil, nil)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.BalancesTTL <= 0 {
		cfg.BalancesTTL = time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}

	logger := mw.Logger().With(observe.Field{Key: "component", Value: "ledger"})
	inval, err := cache.NewInvalidator(aside, logger)
	if err != nil {
		return nil, err
	}

	s := &Service{
		store:   store,
		aside:   aside,
		inval:   inval,
		mw:      mw,
		logger:  logger,
		retries: make(map[string]*resilience.Retry),
		cfg:     cfg,
	}
	if cfg.MaxConcurrentQueries > 0 {
		s.bulkhead = resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: cfg.MaxConcurrentQueries,
			MaxWait:       time.Second,
		})
	}
	for _, op := range []string{OpGetAll, OpGetByType, OpGetByID, OpBalances} {
		s.retries[op] = s.newRetry(op)
	}
	return s, nil
}

func (s *Service) newRetry(op string) *resilience.Retry {
	rc := s.cfg.Retry
	metrics := s.mw.Metrics()
	opID := observe.OpMeta{Component: "ledger", Name: op}.OpID()
	rc.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Warn(context.Background(), "retrying operation",
			observe.Field{Key: "op", Value: opID},
			observe.Field{Key: "attempt", Value: attempt},
			observe.Field{Key: "delay_ms", Value: delay.Milliseconds()},
			observe.Field{Key: "error", Value: err},
		)
		metrics.RecordRetry(context.Background(), opID, attempt)
	}
	return resilience.NewRetry(rc)
}

// query runs GetOrSet for key under the op's retry policy and middleware.
func query[T any](ctx context.Context, s *Service, op, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var out T
	err := s.mw.Run(ctx, observe.OpMeta{Component: "ledger", Name: op}, func(ctx context.Context) error {
		v, err := resilience.Do(ctx, s.retries[op], func(ctx context.Context) (T, error) {
			return cache.GetOrSet(ctx, s.aside, key, ttl, compute)
		})
		out = v
		return err
	})
	return out, err
}

// All returns every entry.
func (s *Service) All(ctx context.Context) ([]Entry, error) {
	return query(ctx, s, OpGetAll, AllKey(), s.cfg.TTL, func(ctx context.Context) ([]Entry, error) {
		return guarded(ctx, s.bulkhead, s.store.List)
	})
}

// ByType returns the entries of one type.
func (s *Service) ByType(ctx context.Context, t EntryType) ([]Entry, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
	key, err := TypeKey(t)
	if err != nil {
		return nil, err
	}
	return query(ctx, s, OpGetByType, key, s.cfg.TTL, func(ctx context.Context) ([]Entry, error) {
		return guarded(ctx, s.bulkhead, func(ctx context.Context) ([]Entry, error) {
			return s.store.ListByType(ctx, t)
		})
	})
}

// ByID returns one entry, or ErrNotFound. Misses are not cached.
func (s *Service) ByID(ctx context.Context, id uuid.UUID) (Entry, error) {
	e, err := query(ctx, s, OpGetByID, EntryKey(id), s.cfg.TTL, func(ctx context.Context) (*Entry, error) {
		return guarded(ctx, s.bulkhead, func(ctx context.Context) (*Entry, error) {
			return s.store.Get(ctx, id)
		})
	})
	if err != nil {
		return Entry{}, err
	}
	if e == nil {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

// Balances returns daily balances for [from, to].
func (s *Service) Balances(ctx context.Context, from, to time.Time) ([]DailyBalance, error) {
	if from.IsZero() || to.IsZero() || Day(to).Before(Day(from)) {
		return nil, ErrInvalidRange
	}
	key, err := BalancesKey(from, to)
	if err != nil {
		return nil, err
	}
	return query(ctx, s, OpBalances, key, s.cfg.BalancesTTL, func(ctx context.Context) ([]DailyBalance, error) {
		return guarded(ctx, s.bulkhead, func(ctx context.Context) ([]DailyBalance, error) {
			return s.store.Balances(ctx, from, to)
		})
	})
}

// Create stores a new entry and invalidates the lists it appears in.
func (s *Service) Create(ctx context.Context, e Entry) (Entry, error) {
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	e.Date = e.Date.UTC()

	var created Entry
	err := s.mw.Run(ctx, observe.OpMeta{Component: "ledger", Name: OpCreate}, func(ctx context.Context) error {
		var err error
		created, err = s.store.Create(ctx, e)
		if err != nil {
			return err
		}
		typeKey, _ := TypeKey(created.Type)
		s.invalidate(ctx, AllKey(), typeKey)
		return nil
	})
	return created, err
}

// Update replaces an entry and invalidates its key and every list that
// held the old or new version.
func (s *Service) Update(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == uuid.Nil {
		return Entry{}, fmt.Errorf("%w: id is required", ErrInvalidEntry)
	}
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	e.Date = e.Date.UTC()

	err := s.mw.Run(ctx, observe.OpMeta{Component: "ledger", Name: OpUpdate}, func(ctx context.Context) error {
		prev, err := s.store.Update(ctx, e)
		if err != nil {
			return err
		}
		s.invalidate(ctx, writeKeys(prev, e)...)
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// DeleteMany removes entries and returns the ids that existed. The full
// list, each affected type list and each deleted entry are invalidated.
func (s *Service) DeleteMany(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyIDs
	}

	var removed []uuid.UUID
	err := s.mw.Run(ctx, observe.OpMeta{Component: "ledger", Name: OpDeleteMany}, func(ctx context.Context) error {
		deleted, err := s.store.DeleteMany(ctx, ids)
		if err != nil {
			return err
		}
		if len(deleted) == 0 {
			return nil
		}
		removed = make([]uuid.UUID, 0, len(deleted))
		for _, e := range deleted {
			removed = append(removed, e.ID)
		}
		s.invalidate(ctx, writeKeys(deleted...)...)
		return nil
	})
	return removed, err
}

// invalidate runs after the write is durable. The request may already be
// cancelled by then, so removals run detached from its cancellation.
func (s *Service) invalidate(ctx context.Context, keys ...string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.inval.Invalidate(ctx, keys...); err != nil {
		var ie *cache.InvalidateError
		if errors.As(err, &ie) {
			s.logger.Error(ctx, "stale cache entries remain until ttl",
				observe.Field{Key: "failed_keys", Value: len(ie.Failed)},
			)
		}
	}
}

// guarded runs a store read inside the bulkhead when one is configured.
func guarded[T any](ctx context.Context, b *resilience.Bulkhead, read func(context.Context) (T, error)) (T, error) {
	if b == nil {
		return read(ctx)
	}
	var out T
	err := b.Execute(ctx, func(ctx context.Context) error {
		v, err := read(ctx)
		out = v
		return err
	})
	return out, err
}

package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the durable source of truth for entries.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Get returns (nil, nil) when the entry does not exist.
// - A nil error from a mutating method means the write is durable.
type Store interface {
	List(ctx context.Context) ([]Entry, error)
	ListByType(ctx context.Context, t EntryType) ([]Entry, error)
	Get(ctx context.Context, id uuid.UUID) (*Entry, error)
	Create(ctx context.Context, e Entry) (Entry, error)

	// Update replaces an entry and returns the previous version.
	// Returns ErrNotFound if it does not exist.
	Update(ctx context.Context, e Entry) (Entry, error)

	// DeleteMany removes the given entries and returns those that existed.
	DeleteMany(ctx context.Context, ids []uuid.UUID) ([]Entry, error)

	// Balances returns one DailyBalance per day in [from, to] that has
	// entries, ordered by date.
	Balances(ctx context.Context, from, to time.Time) ([]DailyBalance, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]Entry
}

// NewMemoryStore creates an empty store, optionally seeded.
func NewMemoryStore(seed ...Entry) *MemoryStore {
	s := &MemoryStore{entries: make(map[uuid.UUID]Entry, len(seed))}
	for _, e := range seed {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		s.entries[e.ID] = e
	}
	return s
}

func (s *MemoryStore) List(ctx context.Context) ([]Entry, error) {
	return s.filter(ctx, func(Entry) bool { return true })
}

func (s *MemoryStore) ListByType(ctx context.Context, t EntryType) ([]Entry, error) {
	return s.filter(ctx, func(e Entry) bool { return e.Type == t })
}

func (s *MemoryStore) filter(ctx context.Context, keep func(Entry) bool) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()
	sortEntries(out)
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *MemoryStore) Create(ctx context.Context, e Entry) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	s.mu.Lock()
	s.entries[e.ID] = e
	s.mu.Unlock()
	return e, nil
}

func (s *MemoryStore) Update(ctx context.Context, e Entry) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.entries[e.ID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	s.entries[e.ID] = e
	return prev, nil
}

func (s *MemoryStore) DeleteMany(ctx context.Context, ids []uuid.UUID) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted []Entry
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			deleted = append(deleted, e)
			delete(s.entries, id)
		}
	}
	return deleted, nil
}

func (s *MemoryStore) Balances(ctx context.Context, from, to time.Time) ([]DailyBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	from, to = Day(from), Day(to)

	days := make(map[time.Time]*DailyBalance)
	s.mu.RLock()
	for _, e := range s.entries {
		d := Day(e.Date)
		if d.Before(from) || d.After(to) {
			continue
		}
		b, ok := days[d]
		if !ok {
			b = &DailyBalance{Date: d}
			days[d] = b
		}
		if e.Type == Credit {
			b.Credits += e.Amount
		} else {
			b.Debits += e.Amount
		}
		b.Net += e.Signed()
	}
	s.mu.RUnlock()

	out := make([]DailyBalance, 0, len(days))
	for _, b := range days {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool {
		if !es[i].Date.Equal(es[j].Date) {
			return es[i].Date.Before(es[j].Date)
		}
		return es[i].ID.String() < es[j].ID.String()
	})
}

var _ Store = (*MemoryStore)(nil)

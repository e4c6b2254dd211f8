package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errBackendDown = errors.New("backend down")

// flakyCache wraps a MemoryCache and counts calls. Failing operations return
// errBackendDown.
type flakyCache struct {
	inner *MemoryCache

	mu         sync.Mutex
	gets       int
	sets       int
	deletes    int
	failGet    bool
	failSet    bool
	failDelete map[string]bool
}

func newFlakyCache() *flakyCache {
	return &flakyCache{inner: NewMemoryCache(), failDelete: map[string]bool{}}
}

func (f *flakyCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	f.gets++
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return nil, false, errBackendDown
	}
	return f.inner.Get(ctx, key)
}

func (f *flakyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	f.sets++
	fail := f.failSet
	f.mu.Unlock()
	if fail {
		return errBackendDown
	}
	return f.inner.Set(ctx, key, value, ttl)
}

func (f *flakyCache) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	f.deletes++
	fail := f.failDelete[key]
	f.mu.Unlock()
	if fail {
		return errBackendDown
	}
	return f.inner.Delete(ctx, key)
}

func (f *flakyCache) counts() (gets, sets, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets, f.sets, f.deletes
}

type recordingMetrics struct {
	mu      sync.Mutex
	results []string
}

func (m *recordingMetrics) RecordCache(_ context.Context, family, result string) {
	m.mu.Lock()
	m.results = append(m.results, family+"/"+result)
	m.mu.Unlock()
}

func (m *recordingMetrics) all() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.results...)
}

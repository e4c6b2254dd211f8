package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/ledgerops/resilience"
)

type slowCache struct {
	Cache
	delay time.Duration
}

func (s slowCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	select {
	case <-time.After(s.delay):
		return s.Cache.Get(ctx, key)
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func TestGuardedCache_OpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	inner := newFlakyCache()
	inner.failGet = true

	var transitions []string
	g, err := NewGuardedCache(inner, GuardConfig{
		MaxFailures:  3,
		ResetTimeout: time.Hour,
		OnStateChange: func(from, to resilience.State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	for range 3 {
		if _, _, err := g.Get(ctx, "k"); !errors.Is(err, errBackendDown) {
			t.Fatalf("Get() error = %v, want %v", err, errBackendDown)
		}
	}
	if g.State() != resilience.StateOpen {
		t.Fatalf("State() = %v, want open", g.State())
	}

	if _, _, err := g.Get(ctx, "k"); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("Get() error = %v, want %v", err, resilience.ErrCircuitOpen)
	}
	if gets, _, _ := inner.counts(); gets != 3 {
		t.Errorf("inner gets = %d, want 3 (open breaker fails fast)", gets)
	}
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Errorf("transitions = %v, want [closed->open]", transitions)
	}
}

func TestGuardedCache_Timeout(t *testing.T) {
	g, _ := NewGuardedCache(slowCache{Cache: NewMemoryCache(), delay: time.Second}, GuardConfig{
		Timeout: 20 * time.Millisecond,
	})
	start := time.Now()
	_, _, err := g.Get(context.Background(), "k")
	if !errors.Is(err, resilience.ErrTimeout) {
		t.Errorf("Get() error = %v, want %v", err, resilience.ErrTimeout)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Get() did not return at the timeout")
	}
}

func TestGuardedCache_CallerCancelIsNotFailure(t *testing.T) {
	g, _ := NewGuardedCache(slowCache{Cache: NewMemoryCache(), delay: time.Second}, GuardConfig{
		Timeout:     time.Second,
		MaxFailures: 1,
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, _ = g.Get(ctx, "k")
	if g.State() != resilience.StateClosed {
		t.Errorf("State() = %v, want closed after caller cancel", g.State())
	}
}

func TestGuardedCache_PassThrough(t *testing.T) {
	ctx := context.Background()
	g, _ := NewGuardedCache(NewMemoryCache(), GuardConfig{})
	if err := g.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	b, ok, err := g.Get(ctx, "k")
	if err != nil || !ok || string(b) != "v" {
		t.Errorf("Get() = %q, %v, %v", b, ok, err)
	}
	if err := g.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
}

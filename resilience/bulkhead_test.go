package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewBulkhead_Default(t *testing.T) {
	if got := NewBulkhead(BulkheadConfig{}).Metrics().MaxConcurrent; got != 10 {
		t.Errorf("MaxConcurrent = %d, want 10", got)
	}
}

func TestBulkhead_FullWithoutWait(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 2})
	ctx := context.Background()

	for i := range 2 {
		if err := b.Acquire(ctx); err != nil {
			t.Fatalf("Acquire() #%d error = %v", i+1, err)
		}
	}
	if err := b.Acquire(ctx); err != ErrBulkheadFull {
		t.Errorf("Acquire() when full = %v, want ErrBulkheadFull", err)
	}

	b.Release()
	if err := b.Acquire(ctx); err != nil {
		t.Errorf("Acquire() after Release = %v", err)
	}

	m := b.Metrics()
	if m.Active != 2 || m.MaxActive != 2 || m.Available != 0 || m.Rejected != 1 {
		t.Errorf("Metrics() = %+v", m)
	}
}

func TestBulkhead_WaitsForSlot(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: time.Second})
	_ = b.Acquire(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		b.Release()
	}()
	if err := b.Acquire(context.Background()); err != nil {
		t.Errorf("Acquire() error = %v, want slot after release", err)
	}
}

func TestBulkhead_WaitEnds(t *testing.T) {
	tests := []struct {
		name    string
		maxWait time.Duration
		cancel  bool
		want    error
	}{
		{"max wait elapses", 20 * time.Millisecond, false, ErrBulkheadFull},
		{"caller cancels", time.Second, true, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: tt.maxWait})
			_ = b.Acquire(context.Background())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancel {
				go func() {
					time.Sleep(20 * time.Millisecond)
					cancel()
				}()
			}
			if err := b.Acquire(ctx); err != tt.want {
				t.Errorf("Acquire() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBulkhead_Execute(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1})
	errStore := errors.New("store down")

	if err := b.Execute(context.Background(), func(context.Context) error { return errStore }); err != errStore {
		t.Errorf("Execute() error = %v, want %v", err, errStore)
	}
	if got := b.Metrics().Active; got != 0 {
		t.Errorf("Active after Execute = %d, want 0", got)
	}
}

func TestBulkhead_CapsConcurrency(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 4, MaxWait: 5 * time.Second})

	var (
		wg   sync.WaitGroup
		curr atomic.Int32
		peak atomic.Int32
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Execute(context.Background(), func(context.Context) error {
				n := curr.Add(1)
				defer curr.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				return nil
			})
			if err != nil {
				t.Errorf("Execute() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if p := peak.Load(); p > 4 {
		t.Errorf("peak concurrency = %d, want <= 4", p)
	}
	if m := b.Metrics(); m.MaxActive > 4 || m.Rejected != 0 {
		t.Errorf("Metrics() = %+v", m)
	}
}

package cache

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Add(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newFakeNow() *fakeNow {
	return &fakeNow{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestMemoryCache_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	if _, ok, err := c.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("Get() on empty = ok %v err %v, want miss", ok, err)
	}
	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("Get() = %q, %v, %v; want v, true, nil", got, ok, err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("Get() after Delete() hit")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := newFakeNow()
	c := NewMemoryCache(WithNow(now.Now))

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	now.Add(59 * time.Second)
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatal("entry expired early")
	}
	now.Add(time.Second)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("entry served at its expiry")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want expired entry removed", c.Len())
	}
}

func TestMemoryCache_SlidingTTL(t *testing.T) {
	ctx := context.Background()
	now := newFakeNow()
	c := NewMemoryCache(WithNow(now.Now), WithSlidingTTL())

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	for range 3 {
		now.Add(45 * time.Second)
		if _, ok, _ := c.Get(ctx, "k"); !ok {
			t.Fatal("sliding entry expired while being read")
		}
	}
	now.Add(time.Minute)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("sliding entry survived an idle TTL")
	}
}

func TestMemoryCache_ZeroTTLStoresNothing(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	_ = c.Set(ctx, "k", []byte("v"), 0)
	_ = c.Set(ctx, "n", []byte("v"), -time.Second)
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestMemoryCache_SetCopiesValue(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	buf := []byte("original")
	_ = c.Set(ctx, "k", buf, time.Minute)
	copy(buf, "MUTATED!")

	got, _, _ := c.Get(ctx, "k")
	if !bytes.Equal(got, []byte("original")) {
		t.Errorf("Get() = %q, want original", got)
	}
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			_ = c.Set(ctx, key, []byte(key), time.Minute)
			_, _, _ = c.Get(ctx, key)
			if i%7 == 0 {
				_ = c.Delete(ctx, key)
			}
		}(i)
	}
	wg.Wait()
}

func TestMemoryCache_GetWithTTL(t *testing.T) {
	ctx := context.Background()
	now := newFakeNow()
	c := NewMemoryCache(WithNow(now.Now))

	if _, _, ok, _ := c.GetWithTTL(ctx, "k"); ok {
		t.Fatal("GetWithTTL() on empty cache = hit")
	}
	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	now.Add(20 * time.Second)
	_, remaining, ok, err := c.GetWithTTL(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("GetWithTTL() = %v, %v; want hit", ok, err)
	}
	if remaining != 40*time.Second {
		t.Errorf("remaining = %v, want %v", remaining, 40*time.Second)
	}
}

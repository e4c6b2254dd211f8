package cache

import (
	"context"
	"testing"
	"time"
)

func TestRistrettoCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewRistrettoCache(DefaultRistrettoConfig())
	if err != nil {
		t.Fatalf("NewRistrettoCache() error = %v", err)
	}
	defer c.Close()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	c.Wait()

	b, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || string(b) != "v" {
		t.Fatalf("Get() = %q, %v, %v; want v, true, nil", b, ok, err)
	}

	_ = c.Delete(ctx, "k")
	c.Wait()
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("Get() after Delete() hit")
	}

	_ = c.Set(ctx, "zero", []byte("v"), 0)
	c.Wait()
	if _, ok, _ := c.Get(ctx, "zero"); ok {
		t.Error("zero ttl entry stored")
	}
}

func TestNewRistrettoCache_InvalidConfig(t *testing.T) {
	if _, err := NewRistrettoCache(RistrettoConfig{}); err == nil {
		t.Error("NewRistrettoCache(zero config) error = nil")
	}
}

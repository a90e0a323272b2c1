package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vigil/internal/cache"
	"vigil/internal/logging"
	"vigil/internal/testsupport"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T) (*cache.Cache, *fakeClock) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	clock := &fakeClock{now: time.Now()}
	c := cache.New(cfg.Cache, store, logging.NewNop()).WithClock(clock.Now)
	return c, clock
}

func countingLoader(value []byte) (cache.Loader, *int) {
	calls := new(int)
	return func(context.Context) ([]byte, error) {
		*calls++
		return value, nil
	}, calls
}

func TestFetchLoadsOnceWithinTTL(t *testing.T) {
	c, _ := newTestCache(t)
	loader, calls := countingLoader([]byte("schedule"))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		value, err := c.Fetch(ctx, "schedule/today", loader)
		if err != nil {
			t.Fatalf("Fetch %d failed: %v", i, err)
		}
		if string(value) != "schedule" {
			t.Fatalf("unexpected value %q", value)
		}
	}
	if *calls != 1 {
		t.Fatalf("expected 1 load, got %d", *calls)
	}
}

func TestFetchReloadsAfterExpiry(t *testing.T) {
	c, clock := newTestCache(t)
	loader, calls := countingLoader([]byte("manifest"))

	ctx := context.Background()
	if _, err := c.FetchTTL(ctx, "manifest", time.Minute, loader); err != nil {
		t.Fatalf("first Fetch failed: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if _, err := c.FetchTTL(ctx, "manifest", time.Minute, loader); err != nil {
		t.Fatalf("second Fetch failed: %v", err)
	}
	if *calls != 2 {
		t.Fatalf("expected reload after expiry, got %d loads", *calls)
	}
}

func TestFetchSurfacesLoaderError(t *testing.T) {
	c, clock := newTestCache(t)
	boom := errors.New("remote unavailable")

	ctx := context.Background()
	loader, _ := countingLoader([]byte("v1"))
	if _, err := c.FetchTTL(ctx, "policy", time.Minute, loader); err != nil {
		t.Fatalf("seed Fetch failed: %v", err)
	}

	clock.Advance(2 * time.Minute)
	_, err := c.FetchTTL(ctx, "policy", time.Minute, func(context.Context) ([]byte, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	c, _ := newTestCache(t)
	loader, calls := countingLoader([]byte("rules"))

	ctx := context.Background()
	if _, err := c.Fetch(ctx, "rules", loader); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if err := c.Invalidate(ctx, "rules"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := c.Fetch(ctx, "rules", loader); err != nil {
		t.Fatalf("Fetch after invalidate failed: %v", err)
	}
	if *calls != 2 {
		t.Fatalf("expected reload after invalidate, got %d loads", *calls)
	}
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	c, clock := newTestCache(t)

	ctx := context.Background()
	shortLoader, _ := countingLoader([]byte("short"))
	longLoader, _ := countingLoader([]byte("long"))
	if _, err := c.FetchTTL(ctx, "short", time.Minute, shortLoader); err != nil {
		t.Fatalf("seed short failed: %v", err)
	}
	if _, err := c.FetchTTL(ctx, "long", time.Hour, longLoader); err != nil {
		t.Fatalf("seed long failed: %v", err)
	}

	clock.Advance(5 * time.Minute)
	swept, err := c.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept entry, got %d", swept)
	}

	value, err := c.Fetch(ctx, "long", func(context.Context) ([]byte, error) {
		t.Fatal("unexpired entry must not reload")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Fetch long failed: %v", err)
	}
	if string(value) != "long" {
		t.Fatalf("unexpected value %q", value)
	}
}

// Package cache provides a read-through cache for remote content the exam
// client needs while offline-prone: schedules, question manifests, policy
// blobs. Entries live in the same SQLite database as the queue, so a cached
// value survives restarts just like queued artifacts do.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vigil/internal/config"
	"vigil/internal/logging"
	"vigil/internal/queue"
)

// Loader fetches the authoritative value for a key on a cache miss.
type Loader func(ctx context.Context) ([]byte, error)

// Cache is a TTL cache backed by the queue store. Expired entries are
// evicted lazily on read and reaped by a periodic sweep.
type Cache struct {
	store      *queue.Store
	defaultTTL time.Duration
	sweepEvery time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New builds a cache from the cache configuration.
func New(cfg config.Cache, store *queue.Store, logger *slog.Logger) *Cache {
	return &Cache{
		store:      store,
		defaultTTL: time.Duration(cfg.DefaultTTLSeconds) * time.Second,
		sweepEvery: time.Duration(cfg.SweepInterval) * time.Second,
		logger:     logging.NewComponentLogger(logger, "cache"),
		now:        time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Fetch returns the cached value for key, consulting the loader only on a
// miss or an expired entry. A loader failure with a stale entry on hand
// returns the loader's error; serving silently stale exam content is worse
// than surfacing the problem.
func (c *Cache) Fetch(ctx context.Context, key string, loader Loader) ([]byte, error) {
	return c.FetchTTL(ctx, key, c.defaultTTL, loader)
}

// FetchTTL is Fetch with an explicit TTL for the loaded value.
func (c *Cache) FetchTTL(ctx context.Context, key string, ttl time.Duration, loader Loader) ([]byte, error) {
	now := c.now()

	entry, err := c.store.CacheGet(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		if !entry.Expired(now) {
			return entry.Payload, nil
		}
		// Lazy eviction: the expired row goes away whether or not the
		// reload below succeeds.
		if err := c.store.CacheDelete(ctx, key); err != nil {
			return nil, err
		}
	}

	if loader == nil {
		return nil, nil
	}
	value, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.store.CachePut(ctx, key, value, ttl, now); err != nil {
		return nil, err
	}
	return value, nil
}

// Invalidate drops a key regardless of expiry.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.store.CacheDelete(ctx, key)
}

// Sweep removes every expired entry immediately.
func (c *Cache) Sweep(ctx context.Context) (int64, error) {
	return c.store.CacheSweep(ctx, c.now())
}

// Start launches the periodic sweep.
func (c *Cache) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running || c.sweepEvery <= 0 {
		c.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	c.mu.Unlock()

	go c.sweepLoop(loopCtx)
}

// Stop halts the periodic sweep.
func (c *Cache) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.running = false
	c.mu.Unlock()

	cancel()
	<-done
}

func (c *Cache) sweepLoop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := c.Sweep(ctx)
			if err != nil {
				c.logger.Warn("cache sweep failed", logging.Error(err))
				continue
			}
			if swept > 0 {
				c.logger.Debug("swept expired cache entries", logging.Int64("count", swept))
			}
		}
	}
}

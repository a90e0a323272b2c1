package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"vigil/internal/cache"
	"vigil/internal/config"
	"vigil/internal/connectivity"
	"vigil/internal/delivery"
	"vigil/internal/logging"
	"vigil/internal/notifications"
	"vigil/internal/progress"
	"vigil/internal/queue"
	"vigil/internal/syncer"
	"vigil/internal/uploader"
)

// Daemon coordinates the background sync services and enforces
// single-instance execution per data directory.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	monitor  *connectivity.Monitor
	orch     *uploader.Orchestrator
	coord    *syncer.Coordinator
	cache    *cache.Cache
	notifier notifications.Service
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Online       bool
	QueueDBPath  string
	LockFilePath string
	QueueStats   queue.Stats
}

// New constructs a daemon with initialized dependencies. The store must
// already be open; the daemon owns it from here and closes it on Close.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	notifier := notifications.NewService(cfg)
	monitor := connectivity.NewMonitor(cfg.Connectivity, logger)
	deliverer := delivery.NewClient(cfg.Remote)
	orch := uploader.New(cfg, store, deliverer, notifier, logger, monitor.IsOnline)
	coord := syncer.New(cfg, store, orch, monitor.IsOnline, notifier, logger)
	coord.ObserveResults(orch)

	lockPath := filepath.Join(cfg.Paths.DataDir, "vigil.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		monitor:  monitor,
		orch:     orch,
		coord:    coord,
		cache:    cache.New(cfg.Cache, store, logger),
		notifier: notifier,
		logPath:  filepath.Join(cfg.Paths.LogDir, "vigil.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches every background service.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vigil instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.orch.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		d.cancel = nil
		return fmt.Errorf("start uploader: %w", err)
	}
	d.monitor.Start(runCtx)
	var offlineSince atomic.Pointer[time.Time]
	d.monitor.Subscribe(func(online bool) {
		if !online {
			now := time.Now()
			offlineSince.Store(&now)
			return
		}
		if since := offlineSince.Swap(nil); since != nil {
			if stats, err := d.store.Stats(runCtx, "", d.cfg.Uploader.MaxRetries); err == nil && stats.Pending > 0 {
				_ = d.notifier.NotifyOfflineBacklog(runCtx, stats.Pending, time.Since(*since))
			}
		}
		d.orch.Kick()
	})
	d.cache.Start(runCtx)

	d.running.Store(true)
	d.logger.Info("vigil daemon started",
		logging.String("lock", d.lockPath),
		logging.String("db", d.store.Path()),
	)
	return nil
}

// Stop halts background services and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.cache.Stop()
	d.monitor.Stop()
	d.orch.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("vigil daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon services are up.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the daemon's primary log file location.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Coordinator exposes the sync surface for embedding callers.
func (d *Daemon) Coordinator() *syncer.Coordinator {
	return d.coord
}

// Status reports runtime and queue information.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	stats, err := d.store.Stats(ctx, "", d.cfg.Uploader.MaxRetries)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Online:       d.monitor.IsOnline(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		QueueStats:   stats,
	}, nil
}

// SyncNow forces an immediate upload pass, failing fast when offline.
func (d *Daemon) SyncNow(ctx context.Context) error {
	return d.coord.SyncNow(ctx)
}

// Progress reports delivery progress, optionally scoped to a session.
func (d *Daemon) Progress(ctx context.Context, sessionID string) (progress.Snapshot, error) {
	return d.coord.Status(ctx, sessionID)
}

// ListQueue returns queue items filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Item, error) {
	if len(statuses) == 0 {
		return d.store.List(ctx)
	}
	return d.store.ByStatus(ctx, statuses...)
}

// RetryItems requeues failed items. Empty ids retries every failed item.
func (d *Daemon) RetryItems(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		failed, err := d.store.ByStatus(ctx, queue.StatusFailed)
		if err != nil {
			return 0, err
		}
		for _, item := range failed {
			ids = append(ids, item.ID)
		}
	}
	var updated int64
	for _, id := range ids {
		ok, err := d.store.RetryFailed(ctx, id)
		if err != nil {
			return updated, err
		}
		if ok {
			updated++
		}
	}
	if updated > 0 {
		d.orch.Kick()
	}
	return updated, nil
}

// RemoveItems deletes specific items by id.
func (d *Daemon) RemoveItems(ctx context.Context, ids []string) (int64, error) {
	var removed int64
	for _, id := range ids {
		ok, err := d.store.Remove(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// ClearSession removes every item for a session.
func (d *Daemon) ClearSession(ctx context.Context, sessionID string) (int64, error) {
	return d.coord.ClearSession(ctx, sessionID)
}

// ClearQueue removes every item in the queue.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.ClearAll(ctx)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) queue.DatabaseHealth {
	return d.store.CheckHealth(ctx)
}

// CacheSweep evicts expired cache entries immediately.
func (d *Daemon) CacheSweep(ctx context.Context) (int64, error) {
	return d.cache.Sweep(ctx)
}

// TestNotification triggers a test notification using the current
// configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, err.Error(), err
	}
	return true, "notification sent", nil
}

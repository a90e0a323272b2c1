package uploader

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vigil/internal/config"
	"vigil/internal/delivery"
	"vigil/internal/logging"
	"vigil/internal/notifications"
	"vigil/internal/queue"
	"vigil/internal/services"
)

// Result describes the outcome of one finished item.
type Result struct {
	Item     *queue.Item
	Err      error
	Terminal bool
}

// ResultListener observes delivery outcomes. Invoked from worker
// goroutines; keep it quick.
type ResultListener func(Result)

// Orchestrator owns the upload lifecycle: it scans the queue, claims due
// items, runs deliveries on a bounded worker pool, and applies the retry
// taxonomy to failures.
type Orchestrator struct {
	store      *queue.Store
	deliverer  delivery.Deliverer
	notifier   notifications.Service
	logger     *slog.Logger
	maxRetries int
	baseDelay  time.Duration
	maxWorkers int
	poll       time.Duration
	errorRetry time.Duration
	retention  time.Duration

	online func() bool
	kickC  chan struct{}
	forceC chan struct{}

	mu        sync.Mutex
	inflight  map[string]struct{}
	listeners []ResultListener
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	sem       chan struct{}
}

// New builds an orchestrator from the uploader configuration. The online
// func gates scheduling; pass nil to always schedule.
func New(cfg *config.Config, store *queue.Store, deliverer delivery.Deliverer, notifier notifications.Service, logger *slog.Logger, online func() bool) *Orchestrator {
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	maxWorkers := cfg.Uploader.MaxConcurrent
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Orchestrator{
		store:      store,
		deliverer:  deliverer,
		notifier:   notifier,
		logger:     logging.NewComponentLogger(logger, "uploader"),
		maxRetries: cfg.Uploader.MaxRetries,
		baseDelay:  time.Duration(cfg.Uploader.BaseDelaySeconds) * time.Second,
		maxWorkers: maxWorkers,
		poll:       time.Duration(cfg.Uploader.PollInterval) * time.Second,
		errorRetry: time.Duration(cfg.Uploader.ErrorRetryInterval) * time.Second,
		retention:  time.Duration(cfg.Uploader.RetentionHours) * time.Hour,
		online:     online,
		kickC:      make(chan struct{}, 1),
		forceC:     make(chan struct{}, 1),
		inflight:   make(map[string]struct{}),
		sem:        make(chan struct{}, maxWorkers),
	}
}

// Subscribe registers a listener for delivery outcomes.
func (o *Orchestrator) Subscribe(listener ResultListener) {
	if listener == nil {
		return
	}
	o.mu.Lock()
	o.listeners = append(o.listeners, listener)
	o.mu.Unlock()
}

// Start recovers interrupted work and launches the scheduler.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.mu.Unlock()

	reset, err := o.store.ResetInterrupted(loopCtx)
	if err != nil {
		cancel()
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		return err
	}
	if reset > 0 {
		o.logger.Info("recovered interrupted uploads",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "uploads_recovered"),
		)
	}

	o.wg.Add(1)
	go o.schedulerLoop(loopCtx)
	o.Kick()
	return nil
}

// Stop halts scheduling and waits for inflight workers to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	o.running = false
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
}

// Kick asks the scheduler for an immediate pass. Coalesces when one is
// already queued; used by connectivity edges and manual sync.
func (o *Orchestrator) Kick() {
	select {
	case o.kickC <- struct{}{}:
	default:
	}
}

// ForceKick asks for an immediate pass that ignores the backoff timers of
// pending items. Used by manual sync; coalesces like Kick.
func (o *Orchestrator) ForceKick() {
	select {
	case o.forceC <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) schedulerLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.dispatch(ctx, false)
			o.sweepCompleted(ctx)
		case <-o.kickC:
			o.dispatch(ctx, false)
		case <-o.forceC:
			o.dispatch(ctx, true)
		}
	}
}

// dispatch claims every due pending item and hands it to a worker, up to
// the concurrency limit. force skips the backoff window check.
func (o *Orchestrator) dispatch(ctx context.Context, force bool) {
	if o.online != nil && !o.online() {
		return
	}

	items, err := o.store.ByStatus(ctx, queue.StatusPending)
	if err != nil {
		o.logger.Error("queue scan failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_scan_failed"),
			logging.String(logging.FieldImpact, "uploads stall until the store recovers"),
		)
		_ = o.notifier.NotifyStorageError(ctx, err)
		// Retry the scan sooner than the next poll tick.
		time.AfterFunc(o.errorRetry, o.Kick)
		return
	}

	now := time.Now()
	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		if !force && !eligible(item, o.baseDelay, now) {
			continue
		}
		if !o.tryReserve(item.ID) {
			continue
		}

		select {
		case o.sem <- struct{}{}:
		case <-ctx.Done():
			o.release(item.ID)
			return
		}

		claimed, err := o.store.MarkUploading(ctx, item.ID, now)
		if err != nil || !claimed {
			<-o.sem
			o.release(item.ID)
			if err != nil {
				o.logger.Error("claim failed", logging.Error(err), logging.String(logging.FieldItemID, item.ID))
			}
			continue
		}

		o.wg.Add(1)
		go o.work(ctx, item)
	}
}

func (o *Orchestrator) tryReserve(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[id]; busy {
		return false
	}
	o.inflight[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.inflight, id)
	o.mu.Unlock()
}

func (o *Orchestrator) work(ctx context.Context, item *queue.Item) {
	defer o.wg.Done()
	defer func() { <-o.sem }()
	defer o.release(item.ID)

	itemCtx := services.WithItemID(ctx, item.ID)
	itemCtx = services.WithSessionID(itemCtx, item.SessionID)
	logger := logging.WithContext(itemCtx, o.logger)

	receipt, err := o.deliverer.Deliver(itemCtx, item)
	if err == nil {
		if markErr := o.store.MarkCompleted(ctx, item.ID, receipt.Locator); markErr != nil {
			logger.Error("failed to record completion", logging.Error(markErr))
			return
		}
		logger.Info("artifact delivered",
			logging.String("locator", receipt.Locator),
			logging.String(logging.FieldEventType, "artifact_delivered"),
		)
		done, fetchErr := o.store.GetByID(ctx, item.ID)
		if fetchErr != nil || done == nil {
			done = item
		}
		o.publish(Result{Item: done})
		return
	}

	if ctx.Err() != nil {
		// Shutdown raced the attempt. The item stays in uploading and the
		// next start resets it to pending.
		return
	}

	if services.IsTerminal(err) {
		o.parkPermanently(ctx, item, err, logger)
		return
	}

	updated, markErr := o.store.MarkAttemptFailed(ctx, item.ID, err.Error(), o.maxRetries)
	if markErr != nil {
		logger.Error("failed to record attempt", logging.Error(markErr))
		return
	}

	if updated.Status == queue.StatusFailed {
		logger.Warn("artifact exhausted retries",
			logging.Error(err),
			logging.Int("attempts", updated.RetryCount),
			logging.String(logging.FieldEventType, "artifact_failed"),
			logging.String(logging.FieldErrorHint, "run 'vigil queue retry' after fixing the cause"),
			logging.String(logging.FieldImpact, "artifact held locally until retried"),
		)
		_ = o.notifier.NotifyPermanentFailure(ctx, item.ID, item.SessionID, err.Error())
		o.publish(Result{Item: updated, Err: err, Terminal: true})
		return
	}

	logger.Warn("delivery attempt failed",
		logging.Error(err),
		logging.Int("attempt", updated.RetryCount),
		logging.Int("max_retries", o.maxRetries),
		logging.String(logging.FieldEventType, "delivery_attempt_failed"),
	)
	o.publish(Result{Item: updated, Err: err})
}

// parkPermanently handles remote rejections that retrying cannot fix.
func (o *Orchestrator) parkPermanently(ctx context.Context, item *queue.Item, cause error, logger *slog.Logger) {
	if err := o.store.MarkPermanentlyFailed(ctx, item.ID, cause.Error(), o.maxRetries); err != nil {
		logger.Error("failed to park rejected artifact", logging.Error(err))
		return
	}
	logger.Warn("remote rejected artifact",
		logging.Error(cause),
		logging.String(logging.FieldEventType, "artifact_rejected"),
		logging.String(logging.FieldErrorHint, "inspect the payload before retrying"),
		logging.String(logging.FieldImpact, "artifact held locally until retried"),
	)
	_ = o.notifier.NotifyPermanentFailure(ctx, item.ID, item.SessionID, cause.Error())

	parked, err := o.store.GetByID(ctx, item.ID)
	if err != nil || parked == nil {
		parked = item
	}
	o.publish(Result{Item: parked, Err: cause, Terminal: true})
}

func (o *Orchestrator) sweepCompleted(ctx context.Context) {
	if o.retention <= 0 {
		return
	}
	pruned, err := o.store.PruneCompleted(ctx, time.Now().Add(-o.retention))
	if err != nil {
		o.logger.Error("retention sweep failed", logging.Error(err))
		return
	}
	if pruned > 0 {
		o.logger.Debug("pruned delivered artifacts", logging.Int64("count", pruned))
	}
}

func (o *Orchestrator) publish(result Result) {
	o.mu.Lock()
	listeners := make([]ResultListener, len(o.listeners))
	copy(listeners, o.listeners)
	o.mu.Unlock()

	for _, listener := range listeners {
		listener(result)
	}
}

// Package syncer exposes the client-facing sync surface: recording
// artifacts, forcing a sync pass, and reading progress. It is a thin
// coordinator over the queue, uploader, and connectivity monitor; all
// durable state lives in the store.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vigil/internal/config"
	"vigil/internal/logging"
	"vigil/internal/notifications"
	"vigil/internal/progress"
	"vigil/internal/queue"
	"vigil/internal/services"
	"vigil/internal/uploader"
)

// Kicker requests upload passes. Kick schedules a normal pass; ForceKick
// schedules one that ignores pending items' backoff timers.
type Kicker interface {
	Kick()
	ForceKick()
}

// Coordinator ties artifact producers to the delivery machinery.
type Coordinator struct {
	store    *queue.Store
	kicker   Kicker
	online   func() bool
	agg      *progress.Aggregator
	notifier notifications.Service
	logger   *slog.Logger

	mu                 sync.Mutex
	orch               *uploader.Orchestrator
	syncedSessions     map[string]bool
	completedListeners []func(*queue.Item)
	errorListeners     []func(error, *queue.Item)
	progressListeners  []func(progress.Snapshot)
}

// New builds a coordinator. online reports current connectivity; kicker is
// typically the upload orchestrator.
func New(cfg *config.Config, store *queue.Store, kicker Kicker, online func() bool, notifier notifications.Service, logger *slog.Logger) *Coordinator {
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Coordinator{
		store:          store,
		kicker:         kicker,
		online:         online,
		agg:            progress.NewAggregator(store, cfg.Uploader.MaxRetries),
		notifier:       notifier,
		logger:         logging.NewComponentLogger(logger, "syncer"),
		syncedSessions: make(map[string]bool),
	}
}

// ObserveResults wires the coordinator to delivery outcomes so it can
// announce when a session finishes syncing. Call once at startup.
func (c *Coordinator) ObserveResults(orch *uploader.Orchestrator) {
	c.mu.Lock()
	c.orch = orch
	c.mu.Unlock()
	orch.Subscribe(c.handleResult)
}

// handleResult fans one delivery outcome out to the registered producer
// callbacks and the session-synced announcement.
func (c *Coordinator) handleResult(result uploader.Result) {
	item := result.Item
	if item == nil {
		return
	}

	c.mu.Lock()
	completed := append(([]func(*queue.Item))(nil), c.completedListeners...)
	errored := append(([]func(error, *queue.Item))(nil), c.errorListeners...)
	progressed := append(([]func(progress.Snapshot))(nil), c.progressListeners...)
	c.mu.Unlock()

	if result.Err == nil {
		for _, fn := range completed {
			fn(item)
		}
	} else {
		for _, fn := range errored {
			fn(result.Err, item)
		}
	}

	if len(progressed) > 0 {
		if snap, err := c.agg.Snapshot(context.Background(), item.SessionID); err == nil {
			for _, fn := range progressed {
				fn(snap)
			}
		}
	}

	if result.Err == nil {
		c.maybeAnnounceSessionSynced(item.SessionID)
	}
}

// OnItemCompleted registers a callback invoked after each successful
// delivery. Invoked from worker goroutines; keep it quick.
func (c *Coordinator) OnItemCompleted(fn func(*queue.Item)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.completedListeners = append(c.completedListeners, fn)
	c.mu.Unlock()
}

// OnError registers a callback invoked after each failed attempt,
// transient or terminal, with the affected item.
func (c *Coordinator) OnError(fn func(error, *queue.Item)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.errorListeners = append(c.errorListeners, fn)
	c.mu.Unlock()
}

// OnProgress registers a callback fed a fresh per-session snapshot after
// every delivery outcome.
func (c *Coordinator) OnProgress(fn func(progress.Snapshot)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.progressListeners = append(c.progressListeners, fn)
	c.mu.Unlock()
}

// OnResult registers a raw listener for delivery outcomes. Requires
// ObserveResults to have run; otherwise it is a no-op.
func (c *Coordinator) OnResult(listener uploader.ResultListener) {
	c.mu.Lock()
	orch := c.orch
	c.mu.Unlock()
	if orch != nil {
		orch.Subscribe(listener)
	}
}

// RecordSegment stores one recorded segment for delivery. The id derives
// from the session, sequence, and capture time, so recording the same
// segment twice is harmless.
func (c *Coordinator) RecordSegment(ctx context.Context, ownerID, sessionID string, sequence int64, capturedAt time.Time, payload []byte, metadataJSON string) (*queue.Item, error) {
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	item, err := c.store.Enqueue(ctx, queue.NewItemParams{
		ID:           queue.SegmentID(sessionID, sequence, capturedAt),
		OwnerID:      ownerID,
		SessionID:    sessionID,
		Sequence:     sequence,
		Kind:         queue.KindSegment,
		Payload:      payload,
		MetadataJSON: metadataJSON,
		CreatedAt:    capturedAt,
	})
	if err != nil {
		return nil, err
	}
	c.markSessionDirty(sessionID)
	c.kick()
	return item, nil
}

// SaveDraft stores the latest draft snapshot for a key. Repeated saves
// overwrite in place; only the newest draft is ever delivered.
func (c *Coordinator) SaveDraft(ctx context.Context, ownerID, sessionID, key string, payload []byte) (*queue.Item, error) {
	item, err := c.store.PutDraft(ctx, queue.NewItemParams{
		ID:        queue.DraftID(sessionID + "/" + key),
		OwnerID:   ownerID,
		SessionID: sessionID,
		Kind:      queue.KindDraft,
		Payload:   payload,
	})
	if err != nil {
		return nil, err
	}
	c.markSessionDirty(sessionID)
	c.kick()
	return item, nil
}

// SaveFinal stores the final submission for a key and retires any draft
// still queued under the same key. The final is what counts; a stale draft
// delivered after it would only confuse the remote.
func (c *Coordinator) SaveFinal(ctx context.Context, ownerID, sessionID, key string, payload []byte) (*queue.Item, error) {
	item, err := c.store.Enqueue(ctx, queue.NewItemParams{
		ID:        queue.FinalID(sessionID + "/" + key),
		OwnerID:   ownerID,
		SessionID: sessionID,
		Kind:      queue.KindFinal,
		Payload:   payload,
	})
	if err != nil {
		return nil, err
	}

	if _, err := c.store.Remove(ctx, queue.DraftID(sessionID+"/"+key)); err != nil {
		// The final is safely stored; a lingering draft is an annoyance,
		// not data loss.
		c.logger.Warn("failed to retire superseded draft",
			logging.Error(err),
			logging.String(logging.FieldSessionID, sessionID),
			logging.String("key", key),
		)
		_ = c.notifier.NotifyError(ctx, err, "retire superseded draft")
	}

	c.markSessionDirty(sessionID)
	c.kick()
	return item, nil
}

// SyncNow forces an immediate upload pass covering every pending item,
// backoff timers included. It fails fast when offline so the caller can
// tell the user instead of silently queueing a no-op; no item state is
// touched on that path.
func (c *Coordinator) SyncNow(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.online != nil && !c.online() {
		return services.Wrap(services.ErrOffline, "syncer", "sync now", "remote service unreachable", nil)
	}
	if c.kicker != nil {
		c.kicker.ForceKick()
	}
	return nil
}

// Status reports delivery progress for a session, or the whole queue when
// sessionID is empty.
func (c *Coordinator) Status(ctx context.Context, sessionID string) (progress.Snapshot, error) {
	return c.agg.Snapshot(ctx, sessionID)
}

// ClearSession removes every queued artifact for a session, delivered or
// not. Meant for after a session is confirmed complete on the remote.
func (c *Coordinator) ClearSession(ctx context.Context, sessionID string) (int64, error) {
	removed, err := c.store.ClearSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	delete(c.syncedSessions, sessionID)
	c.mu.Unlock()
	if removed > 0 {
		c.logger.Info("session cleared",
			logging.String(logging.FieldSessionID, sessionID),
			logging.Int64("removed", removed),
		)
	}
	return removed, nil
}

// Items lists the queue, optionally scoped to one session.
func (c *Coordinator) Items(ctx context.Context, sessionID string) ([]*queue.Item, error) {
	if sessionID == "" {
		return c.store.List(ctx)
	}
	return c.store.BySession(ctx, sessionID)
}

// IsOffline reports whether an error came from the offline fast path.
func IsOffline(err error) bool {
	return errors.Is(err, services.ErrOffline)
}

func (c *Coordinator) kick() {
	if c.kicker != nil {
		c.kicker.Kick()
	}
}

func (c *Coordinator) markSessionDirty(sessionID string) {
	c.mu.Lock()
	delete(c.syncedSessions, sessionID)
	c.mu.Unlock()
}

// maybeAnnounceSessionSynced notifies once per transition into the fully
// synced state. New artifacts for the session re-arm the announcement.
func (c *Coordinator) maybeAnnounceSessionSynced(sessionID string) {
	if sessionID == "" {
		return
	}
	snap, err := c.agg.Snapshot(context.Background(), sessionID)
	if err != nil || !snap.FullySynced || snap.Total == 0 {
		return
	}

	c.mu.Lock()
	already := c.syncedSessions[sessionID]
	c.syncedSessions[sessionID] = true
	c.mu.Unlock()
	if already {
		return
	}

	c.logger.Info("session fully synced",
		logging.String(logging.FieldSessionID, sessionID),
		logging.Int("delivered", snap.Completed),
		logging.String(logging.FieldEventType, "session_synced"),
	)
	_ = c.notifier.NotifySessionSynced(context.Background(), sessionID, snap.Completed)
}

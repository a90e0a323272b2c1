// Package progress derives sync progress from the queue without holding
// state of its own. Every snapshot is recomputed from the store, so it can
// never drift from what is actually persisted.
package progress

import (
	"context"
	"time"

	"vigil/internal/queue"
)

// Snapshot is a point-in-time view of delivery progress.
type Snapshot struct {
	SessionID       string     `json:"session_id,omitempty"`
	Total           int        `json:"total"`
	Pending         int        `json:"pending"`
	Uploading       int        `json:"uploading"`
	Completed       int        `json:"completed"`
	Failed          int        `json:"failed"`
	TerminalFailed  int        `json:"terminal_failed"`
	PercentComplete float64    `json:"percent_complete"`
	FullySynced     bool       `json:"fully_synced"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
}

// Aggregator computes snapshots against a queue store.
type Aggregator struct {
	store      *queue.Store
	maxRetries int
}

// NewAggregator builds an aggregator. maxRetries determines which failed
// items count as terminal.
func NewAggregator(store *queue.Store, maxRetries int) *Aggregator {
	return &Aggregator{store: store, maxRetries: maxRetries}
}

// Snapshot computes current progress. An empty sessionID covers the whole
// queue. An empty queue reports as fully synced with zero percent.
func (a *Aggregator) Snapshot(ctx context.Context, sessionID string) (Snapshot, error) {
	stats, err := a.store.Stats(ctx, sessionID, a.maxRetries)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		SessionID:      sessionID,
		Total:          stats.Total,
		Pending:        stats.Pending,
		Uploading:      stats.Uploading,
		Completed:      stats.Completed,
		Failed:         stats.Failed,
		TerminalFailed: stats.TerminalFailed,
	}
	if stats.Total > 0 {
		snap.PercentComplete = float64(stats.Completed) / float64(stats.Total) * 100
	}
	snap.FullySynced = stats.Total == stats.Completed

	last, err := a.store.LastCompletedAt(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	snap.LastCompletedAt = last
	return snap, nil
}

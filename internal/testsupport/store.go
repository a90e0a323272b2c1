package testsupport

import (
	"context"
	"testing"
	"time"

	"vigil/internal/config"
	"vigil/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewSegment enqueues a segment item for tests using the provided store.
func NewSegment(t testing.TB, store *queue.Store, sessionID string, sequence int64) *queue.Item {
	t.Helper()

	createdAt := time.Now()
	item, err := store.Enqueue(context.Background(), queue.NewItemParams{
		ID:        queue.SegmentID(sessionID, sequence, createdAt),
		OwnerID:   "candidate-1",
		SessionID: sessionID,
		Sequence:  sequence,
		Kind:      queue.KindSegment,
		Payload:   []byte("segment payload"),
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return item
}

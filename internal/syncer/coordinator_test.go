package syncer_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"vigil/internal/delivery"
	"vigil/internal/logging"
	"vigil/internal/progress"
	"vigil/internal/queue"
	"vigil/internal/services"
	"vigil/internal/syncer"
	"vigil/internal/testsupport"
	"vigil/internal/uploader"
)

type countingKicker struct {
	kicks      atomic.Int64
	forceKicks atomic.Int64
}

func (k *countingKicker) Kick()      { k.kicks.Add(1) }
func (k *countingKicker) ForceKick() { k.forceKicks.Add(1) }

func TestRecordSegmentEnqueuesAndKicks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	kicker := &countingKicker{}

	coord := syncer.New(cfg, store, kicker, nil, nil, logging.NewNop())
	item, err := coord.RecordSegment(context.Background(), "candidate-1", "session-1", 1, time.Now(), []byte("frames"), "")
	if err != nil {
		t.Fatalf("RecordSegment failed: %v", err)
	}
	if item.Kind != queue.KindSegment || item.Status != queue.StatusPending {
		t.Fatalf("unexpected item: %#v", item)
	}
	if kicker.kicks.Load() == 0 {
		t.Fatal("recording must kick the uploader")
	}
}

func TestRecordSegmentTwiceKeepsOneItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	coord := syncer.New(cfg, store, nil, nil, nil, logging.NewNop())

	ctx := context.Background()
	capturedAt := time.Now()
	if _, err := coord.RecordSegment(ctx, "candidate-1", "session-1", 1, capturedAt, []byte("frames"), ""); err != nil {
		t.Fatalf("first RecordSegment failed: %v", err)
	}
	if _, err := coord.RecordSegment(ctx, "candidate-1", "session-1", 1, capturedAt, []byte("frames"), ""); err != nil {
		t.Fatalf("second RecordSegment failed: %v", err)
	}

	items, err := coord.Items(ctx, "session-1")
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestSaveDraftOverwrites(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	coord := syncer.New(cfg, store, nil, nil, nil, logging.NewNop())

	ctx := context.Background()
	if _, err := coord.SaveDraft(ctx, "candidate-1", "session-1", "answers", []byte("v1")); err != nil {
		t.Fatalf("first SaveDraft failed: %v", err)
	}
	item, err := coord.SaveDraft(ctx, "candidate-1", "session-1", "answers", []byte("v2"))
	if err != nil {
		t.Fatalf("second SaveDraft failed: %v", err)
	}
	if string(item.Payload) != "v2" {
		t.Fatalf("expected latest draft, got %q", item.Payload)
	}

	items, err := coord.Items(ctx, "session-1")
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected a single draft row, got %d", len(items))
	}
}

func TestSaveFinalRetiresDraft(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	coord := syncer.New(cfg, store, nil, nil, nil, logging.NewNop())

	ctx := context.Background()
	if _, err := coord.SaveDraft(ctx, "candidate-1", "session-1", "answers", []byte("draft")); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}
	final, err := coord.SaveFinal(ctx, "candidate-1", "session-1", "answers", []byte("final"))
	if err != nil {
		t.Fatalf("SaveFinal failed: %v", err)
	}
	if final.Kind != queue.KindFinal {
		t.Fatalf("expected final kind, got %s", final.Kind)
	}

	items, err := coord.Items(ctx, "session-1")
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if len(items) != 1 || items[0].Kind != queue.KindFinal {
		t.Fatalf("expected only the final to remain, got %#v", items)
	}
}

func TestSyncNowFailsFastOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	kicker := &countingKicker{}

	coord := syncer.New(cfg, store, kicker, func() bool { return false }, nil, logging.NewNop())
	err := coord.SyncNow(context.Background())
	if err == nil {
		t.Fatal("expected offline error")
	}
	if !syncer.IsOffline(err) {
		t.Fatalf("expected offline marker, got %v", err)
	}
	if kicker.kicks.Load() != 0 || kicker.forceKicks.Load() != 0 {
		t.Fatal("offline sync must not kick the uploader")
	}
}

func TestSyncNowForceKicksWhenOnline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	kicker := &countingKicker{}

	coord := syncer.New(cfg, store, kicker, func() bool { return true }, nil, logging.NewNop())
	if err := coord.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}
	if kicker.forceKicks.Load() != 1 {
		t.Fatalf("expected exactly one forced kick, got %d", kicker.forceKicks.Load())
	}
	if kicker.kicks.Load() != 0 {
		t.Fatal("manual sync must take the forced path, not the debounced one")
	}
}

func TestClearSessionScopes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	coord := syncer.New(cfg, store, nil, nil, nil, logging.NewNop())

	ctx := context.Background()
	testsupport.NewSegment(t, store, "session-1", 1)
	testsupport.NewSegment(t, store, "session-2", 1)

	removed, err := coord.ClearSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("ClearSession failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	snap, err := coord.Status(ctx, "session-2")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if snap.Total != 1 {
		t.Fatalf("other session must survive, got %#v", snap)
	}
}

func TestStatusReflectsQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	coord := syncer.New(cfg, store, nil, nil, nil, logging.NewNop())

	ctx := context.Background()
	item := testsupport.NewSegment(t, store, "session-1", 1)
	testsupport.NewSegment(t, store, "session-1", 2)

	if _, err := store.MarkUploading(ctx, item.ID, time.Now()); err != nil {
		t.Fatalf("MarkUploading failed: %v", err)
	}
	if err := store.MarkCompleted(ctx, item.ID, "remote://a"); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	snap, err := coord.Status(ctx, "session-1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if snap.Total != 2 || snap.Completed != 1 || snap.Pending != 1 {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
	if snap.FullySynced {
		t.Fatal("session with pending work is not fully synced")
	}
}

type stubDeliverer struct {
	err error
}

func (s stubDeliverer) Deliver(_ context.Context, item *queue.Item) (delivery.Receipt, error) {
	if s.err != nil {
		return delivery.Receipt{}, s.err
	}
	return delivery.Receipt{Locator: "remote://artifacts/" + item.ID, ConfirmedAt: time.Now()}, nil
}

func TestCompletionAndProgressCallbacksFire(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	orch := uploader.New(cfg, store, stubDeliverer{}, nil, logging.NewNop(), nil)
	coord := syncer.New(cfg, store, orch, nil, nil, logging.NewNop())
	coord.ObserveResults(orch)

	completedC := make(chan *queue.Item, 1)
	progressC := make(chan progress.Snapshot, 4)
	coord.OnItemCompleted(func(item *queue.Item) {
		select {
		case completedC <- item:
		default:
		}
	})
	coord.OnProgress(func(snap progress.Snapshot) {
		select {
		case progressC <- snap:
		default:
		}
	})

	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(orch.Stop)

	item, err := coord.RecordSegment(context.Background(), "candidate-1", "session-1", 1, time.Now(), []byte("frames"), "")
	if err != nil {
		t.Fatalf("RecordSegment failed: %v", err)
	}

	select {
	case delivered := <-completedC:
		if delivered.ID != item.ID {
			t.Fatalf("unexpected delivered item %s", delivered.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion callback")
	}

	select {
	case snap := <-progressC:
		if snap.Completed != 1 || !snap.FullySynced {
			t.Fatalf("unexpected progress snapshot: %#v", snap)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for progress callback")
	}
}

func TestErrorCallbackFires(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cause := services.Wrap(services.ErrDeliveryFailed, "delivery", "transfer", "connection reset", nil)
	orch := uploader.New(cfg, store, stubDeliverer{err: cause}, nil, logging.NewNop(), nil)
	coord := syncer.New(cfg, store, orch, nil, nil, logging.NewNop())
	coord.ObserveResults(orch)

	errC := make(chan error, 1)
	coord.OnError(func(err error, item *queue.Item) {
		if item != nil {
			select {
			case errC <- err:
			default:
			}
		}
	})

	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(orch.Stop)

	if _, err := coord.RecordSegment(context.Background(), "candidate-1", "session-1", 1, time.Now(), []byte("frames"), ""); err != nil {
		t.Fatalf("RecordSegment failed: %v", err)
	}

	select {
	case err := <-errC:
		if !errors.Is(err, services.ErrDeliveryFailed) {
			t.Fatalf("expected transient delivery error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for error callback")
	}
}

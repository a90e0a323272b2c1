package ipc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vigil/internal/daemon"
	"vigil/internal/ipc"
	"vigil/internal/logging"
	"vigil/internal/testsupport"
)

func startServer(t *testing.T) (*ipc.Client, *daemon.Daemon) {
	t.Helper()

	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/ping" {
			w.WriteHeader(http.StatusOK)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	t.Cleanup(remote.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithRemoteBaseURL(remote.URL))
	cfg.Connectivity.NetlinkEvents = false
	store := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start failed: %v", err)
	}
	t.Cleanup(d.Stop)

	server, err := ipc.NewServer(context.Background(), cfg.Paths.SocketPath, d, logging.NewNop())
	if err != nil {
		t.Fatalf("ipc.NewServer failed: %v", err)
	}
	server.Serve()
	t.Cleanup(server.Close)

	client, err := ipc.Dial(cfg.Paths.SocketPath)
	if err != nil {
		t.Fatalf("ipc.Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return client, d
}

func TestStatusRoundTrip(t *testing.T) {
	client, _ := startServer(t)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !status.Running {
		t.Fatal("daemon must report running")
	}
	if status.QueueDBPath == "" {
		t.Fatal("expected queue db path")
	}
}

func TestQueueListAndProgress(t *testing.T) {
	client, d := startServer(t)

	ctx := context.Background()
	if _, err := d.Coordinator().RecordSegment(ctx, "candidate-1", "session-1", 1, time.Now(), []byte("frames"), ""); err != nil {
		t.Fatalf("RecordSegment failed: %v", err)
	}

	list, err := client.QueueList(nil)
	if err != nil {
		t.Fatalf("QueueList failed: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(list.Items))
	}
	if list.Items[0].SessionID != "session-1" || list.Items[0].PayloadBytes != len("frames") {
		t.Fatalf("unexpected wire item: %#v", list.Items[0])
	}

	progress, err := client.Progress("session-1")
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if progress.Total != 1 {
		t.Fatalf("unexpected progress: %#v", progress)
	}
}

func TestQueueClearValidation(t *testing.T) {
	client, _ := startServer(t)

	if _, err := client.QueueClear("", false); err == nil {
		t.Fatal("expected error for clear without scope")
	}
}

func TestQueueClearSession(t *testing.T) {
	client, d := startServer(t)

	ctx := context.Background()
	if _, err := d.Coordinator().RecordSegment(ctx, "candidate-1", "session-1", 1, time.Now(), []byte("a"), ""); err != nil {
		t.Fatalf("RecordSegment failed: %v", err)
	}
	if _, err := d.Coordinator().RecordSegment(ctx, "candidate-1", "session-2", 1, time.Now(), []byte("b"), ""); err != nil {
		t.Fatalf("RecordSegment failed: %v", err)
	}

	cleared, err := client.QueueClear("session-1", false)
	if err != nil {
		t.Fatalf("QueueClear failed: %v", err)
	}
	if cleared.Removed != 1 {
		t.Fatalf("expected 1 removed, got %d", cleared.Removed)
	}

	list, err := client.QueueList(nil)
	if err != nil {
		t.Fatalf("QueueList failed: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].SessionID != "session-2" {
		t.Fatalf("unexpected remaining items: %#v", list.Items)
	}
}

func TestSyncNowReportsOutcome(t *testing.T) {
	client, _ := startServer(t)

	resp, err := client.SyncNow()
	if err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}
	// Whether the probe has completed yet decides the outcome; either way
	// the call must not error.
	if resp.Started && resp.Message == "" {
		t.Fatal("started sync must carry a message")
	}
	if !resp.Started && resp.Message == "" {
		t.Fatal("offline sync must explain itself")
	}
}

func TestDatabaseHealthRoundTrip(t *testing.T) {
	client, _ := startServer(t)

	health, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.TableExists {
		t.Fatalf("unexpected health: %#v", health)
	}
}

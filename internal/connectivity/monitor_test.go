package connectivity_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"vigil/internal/config"
	"vigil/internal/connectivity"
	"vigil/internal/logging"
)

func newTestMonitor(probeURL string) *connectivity.Monitor {
	cfg := config.Connectivity{
		ProbeURL:      probeURL,
		NetlinkEvents: false,
	}
	return connectivity.NewMonitor(cfg, logging.NewNop()).
		WithTiming(20*time.Millisecond, time.Second, 0)
}

type flakyBackend struct {
	mu      sync.Mutex
	healthy bool
}

func (b *flakyBackend) set(healthy bool) {
	b.mu.Lock()
	b.healthy = healthy
	b.mu.Unlock()
}

func (b *flakyBackend) handler(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	healthy := b.healthy
	b.mu.Unlock()
	if !healthy {
		http.Error(w, "down", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestMonitorDetectsOnline(t *testing.T) {
	backend := &flakyBackend{healthy: true}
	server := httptest.NewServer(http.HandlerFunc(backend.handler))
	defer server.Close()

	monitor := newTestMonitor(server.URL)
	monitor.Start(context.Background())
	defer monitor.Stop()

	waitFor(t, time.Second, monitor.IsOnline)
}

func TestMonitorPublishesEdges(t *testing.T) {
	backend := &flakyBackend{healthy: true}
	server := httptest.NewServer(http.HandlerFunc(backend.handler))
	defer server.Close()

	monitor := newTestMonitor(server.URL)

	var mu sync.Mutex
	var edges []bool
	monitor.Subscribe(func(online bool) {
		mu.Lock()
		edges = append(edges, online)
		mu.Unlock()
	})

	monitor.Start(context.Background())
	defer monitor.Stop()

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(edges) >= 1 && edges[0]
	})

	backend.set(false)
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(edges) >= 2 && !edges[1]
	})

	backend.set(true)
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(edges) >= 3 && edges[2]
	})

	// Steady state must not produce repeated notifications for the same edge.
	mu.Lock()
	for i := 1; i < len(edges); i++ {
		if edges[i] == edges[i-1] {
			t.Fatalf("duplicate edge at %d: %v", i, edges)
		}
	}
	mu.Unlock()
}

func TestMonitorAssumesOfflineBeforeFirstProbe(t *testing.T) {
	monitor := newTestMonitor("http://127.0.0.1:1")
	if monitor.IsOnline() {
		t.Fatal("monitor must start offline")
	}
}

func TestMonitorTreatsServerErrorAsOffline(t *testing.T) {
	backend := &flakyBackend{healthy: false}
	server := httptest.NewServer(http.HandlerFunc(backend.handler))
	defer server.Close()

	monitor := newTestMonitor(server.URL)
	monitor.Start(context.Background())
	defer monitor.Stop()

	waitFor(t, time.Second, func() bool {
		state := monitor.CurrentState()
		return !state.Online
	})
	if monitor.IsOnline() {
		t.Fatal("5xx probe must count as offline")
	}
}

func TestSubscribeAfterStartSeesCurrentState(t *testing.T) {
	backend := &flakyBackend{healthy: true}
	server := httptest.NewServer(http.HandlerFunc(backend.handler))
	defer server.Close()

	monitor := newTestMonitor(server.URL)
	monitor.Start(context.Background())
	defer monitor.Stop()

	waitFor(t, time.Second, monitor.IsOnline)

	notified := make(chan bool, 1)
	monitor.Subscribe(func(online bool) {
		select {
		case notified <- online:
		default:
		}
	})

	select {
	case online := <-notified:
		if !online {
			t.Fatal("late subscriber must hear the current online state")
		}
	case <-time.After(time.Second):
		t.Fatal("late subscriber never notified")
	}
}

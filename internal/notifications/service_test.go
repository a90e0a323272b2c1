package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vigil/internal/config"
	"vigil/internal/notifications"
)

type captured struct {
	title    string
	priority string
	tags     string
	body     string
}

func newCapturingServer(t *testing.T, sink *[]captured) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*sink = append(*sink, captured{
			title:    r.Header.Get("Title"),
			priority: r.Header.Get("Priority"),
			tags:     r.Header.Get("Tags"),
			body:     string(body),
		})
		w.WriteHeader(http.StatusOK)
	}))
}

func serviceFor(topic string, errors, sessions bool) notifications.Service {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	cfg.Notifications.Errors = errors
	cfg.Notifications.Sessions = sessions
	return notifications.NewService(&cfg)
}

func TestNoTopicReturnsNoop(t *testing.T) {
	svc := serviceFor("", true, true)
	if err := svc.NotifyPermanentFailure(context.Background(), "item", "session", "rejected"); err != nil {
		t.Fatalf("noop service returned error: %v", err)
	}
}

func TestPermanentFailureSendsHighPriority(t *testing.T) {
	var sink []captured
	server := newCapturingServer(t, &sink)
	defer server.Close()

	svc := serviceFor(server.URL, true, true)
	err := svc.NotifyPermanentFailure(context.Background(), "seg:s1:000001:1", "s1", "remote rejected payload")
	if err != nil {
		t.Fatalf("NotifyPermanentFailure failed: %v", err)
	}
	if len(sink) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(sink))
	}
	got := sink[0]
	if got.priority != "high" {
		t.Fatalf("expected high priority, got %q", got.priority)
	}
	if !strings.Contains(got.body, "seg:s1:000001:1") || !strings.Contains(got.body, "remote rejected payload") {
		t.Fatalf("unexpected body: %q", got.body)
	}
}

func TestSessionSyncedRespectsToggle(t *testing.T) {
	var sink []captured
	server := newCapturingServer(t, &sink)
	defer server.Close()

	svc := serviceFor(server.URL, true, false)
	if err := svc.NotifySessionSynced(context.Background(), "s1", 12); err != nil {
		t.Fatalf("NotifySessionSynced failed: %v", err)
	}
	if len(sink) != 0 {
		t.Fatalf("sessions disabled, expected no sends, got %d", len(sink))
	}

	svc = serviceFor(server.URL, true, true)
	if err := svc.NotifySessionSynced(context.Background(), "s1", 12); err != nil {
		t.Fatalf("NotifySessionSynced failed: %v", err)
	}
	if len(sink) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sink))
	}
	if !strings.Contains(sink[0].body, "12 artifacts") {
		t.Fatalf("unexpected body: %q", sink[0].body)
	}
}

func TestServerRejectionSurfacesError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad topic", http.StatusForbidden)
	}))
	defer server.Close()

	svc := serviceFor(server.URL, true, true)
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error from rejected notification")
	}
}

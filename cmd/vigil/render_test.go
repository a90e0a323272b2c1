package main

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"vigil/internal/ipc"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestStatusLabel(t *testing.T) {
	if got := statusLabel("pending"); got != "Pending" {
		t.Fatalf("statusLabel(pending) = %q", got)
	}
	if got := statusLabel("video_segment"); got != "Video Segment" {
		t.Fatalf("statusLabel(video_segment) = %q", got)
	}
}

func TestFormatPayloadSize(t *testing.T) {
	if got := formatPayloadSize(512); got != "512 B" {
		t.Fatalf("formatPayloadSize(512) = %q", got)
	}
	if got := formatPayloadSize(4 << 10); got != "4.0 KiB" {
		t.Fatalf("formatPayloadSize(4Ki) = %q", got)
	}
	if got := formatPayloadSize(3 << 20); got != "3.0 MiB" {
		t.Fatalf("formatPayloadSize(3Mi) = %q", got)
	}
}

func TestRenderStatusSummarizesQueue(t *testing.T) {
	status := &ipc.StatusResponse{
		Running:        true,
		PID:            4242,
		Online:         false,
		QueueDBPath:    "/tmp/queue.db",
		Total:          5,
		Pending:        2,
		Completed:      2,
		Failed:         0,
		TerminalFailed: 1,
	}
	out := renderStatus(status, false)
	if !strings.Contains(out, "pid 4242") {
		t.Fatalf("expected pid in output, got:\n%s", out)
	}
	if !strings.Contains(out, "[WARN] offline") {
		t.Fatalf("expected offline warning, got:\n%s", out)
	}
	if !strings.Contains(out, "Terminal failures") {
		t.Fatalf("expected terminal failures line, got:\n%s", out)
	}
}

func TestRenderQueueTable(t *testing.T) {
	now := time.Now().UTC()
	items := []ipc.QueueItem{
		{
			ID:           "seg:exam-7:000001:12345",
			SessionID:    "exam-7",
			Kind:         "video_segment",
			Status:       "pending",
			RetryCount:   2,
			PayloadBytes: 2048,
			LastError:    "negotiate upload: remote returned status 503",
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
	out := renderQueueTable(items)
	if !strings.Contains(out, "seg:exam-7:000001:12345") {
		t.Fatalf("expected item id in table, got:\n%s", out)
	}
	if !strings.Contains(out, "Video Segment") {
		t.Fatalf("expected title-cased kind, got:\n%s", out)
	}
	if !strings.Contains(out, "2.0 KiB") {
		t.Fatalf("expected formatted size, got:\n%s", out)
	}
	if !strings.Contains(out, "Last Error") {
		t.Fatalf("expected headers rendered as written, got:\n%s", out)
	}
}

func TestRenderProgressFullySynced(t *testing.T) {
	snap := &ipc.ProgressResponse{
		SessionID:       "exam-7",
		Total:           4,
		Completed:       4,
		PercentComplete: 100,
		FullySynced:     true,
	}
	out := renderProgress(snap, false)
	if !strings.Contains(out, "exam-7") {
		t.Fatalf("expected session id in header, got:\n%s", out)
	}
	if !strings.Contains(out, "[OK] yes") {
		t.Fatalf("expected synced OK line, got:\n%s", out)
	}
	if !strings.Contains(out, "100.0% (4 of 4)") {
		t.Fatalf("expected completion line, got:\n%s", out)
	}
}

func TestTruncateError(t *testing.T) {
	long := strings.Repeat("x", 80)
	got := truncateError(long)
	if len(got) != 48 {
		t.Fatalf("expected truncated length 48, got %d (%q)", len(got), got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis suffix, got %q", got)
	}
}

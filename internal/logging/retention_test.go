package logging_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"vigil/internal/logging"
)

func TestCleanupOldLogsPrunesExpired(t *testing.T) {
	dir := t.TempDir()

	oldLog := filepath.Join(dir, "vigil-2020.log")
	activeLog := filepath.Join(dir, "vigil.log")
	recentLog := filepath.Join(dir, "vigil-recent.log")
	notLog := filepath.Join(dir, "notes.txt")
	for _, path := range []string{oldLog, activeLog, recentLog, notLog} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	stale := time.Now().AddDate(0, 0, -60)
	for _, path := range []string{oldLog, activeLog, notLog} {
		if err := os.Chtimes(path, stale, stale); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}

	logging.CleanupOldLogs(logging.NewNop(), dir, 30, activeLog)

	if _, err := os.Stat(oldLog); !os.IsNotExist(err) {
		t.Fatal("expected stale log to be removed")
	}
	if _, err := os.Stat(activeLog); err != nil {
		t.Fatalf("active log should survive: %v", err)
	}
	if _, err := os.Stat(recentLog); err != nil {
		t.Fatalf("recent log should survive: %v", err)
	}
	if _, err := os.Stat(notLog); err != nil {
		t.Fatalf("non-log file should survive: %v", err)
	}
}

func TestCleanupOldLogsDisabled(t *testing.T) {
	dir := t.TempDir()
	oldLog := filepath.Join(dir, "vigil-2020.log")
	if err := os.WriteFile(oldLog, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	stale := time.Now().AddDate(0, 0, -60)
	if err := os.Chtimes(oldLog, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	logging.CleanupOldLogs(logging.NewNop(), dir, 0, "")

	if _, err := os.Stat(oldLog); err != nil {
		t.Fatalf("expected file kept when retention disabled: %v", err)
	}
}

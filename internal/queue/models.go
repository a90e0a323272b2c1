package queue

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the delivery lifecycle of a queue item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusUploading,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Kind distinguishes the artifact families the queue carries.
type Kind string

const (
	KindSegment Kind = "segment"
	KindDraft   Kind = "draft"
	KindFinal   Kind = "final"
)

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindSegment:
		return KindSegment, true
	case KindDraft:
		return KindDraft, true
	case KindFinal:
		return KindFinal, true
	default:
		return "", false
	}
}

// Item represents one artifact plus its delivery state persisted in SQLite.
// The payload is immutable once created; only status and delivery metadata
// mutate afterwards.
type Item struct {
	ID               string
	OwnerID          string
	SessionID        string
	Sequence         int64
	Kind             Kind
	Payload          []byte
	MetadataJSON     string
	Status           Status
	RetryCount       int
	LastError        string
	DeliveredLocator string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastAttemptAt    *time.Time
}

// SegmentID derives the stable identifier for a recorded segment. The same
// artifact always maps to the same id, so re-enqueueing never duplicates.
func SegmentID(sessionID string, sequence int64, createdAt time.Time) string {
	return fmt.Sprintf("seg:%s:%06d:%d", sessionID, sequence, createdAt.UTC().Unix())
}

// DraftID derives the stable identifier for a draft snapshot key.
func DraftID(key string) string {
	return "draft:" + strings.TrimSpace(key)
}

// FinalID derives the stable identifier for a final submission key.
func FinalID(key string) string {
	return "final:" + strings.TrimSpace(key)
}

// IsTerminalFailure reports whether the item exhausted its automatic retries.
func (i Item) IsTerminalFailure(maxRetries int) bool {
	return i.Status == StatusFailed && i.RetryCount >= maxRetries
}

// Stats aggregates item counts per lifecycle state.
type Stats struct {
	Total          int
	Pending        int
	Uploading      int
	Completed      int
	Failed         int
	TerminalFailed int
}

// HealthSummary describes aggregated queue counts for diagnostics.
type HealthSummary struct {
	Total     int
	Pending   int
	Uploading int
	Failed    int
	Completed int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// CacheEntry is one read-through cache record.
type CacheEntry struct {
	Key       string
	Payload   []byte
	CachedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry's deadline has passed at the given time.
func (e CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

package ipc

import (
	"time"

	"vigil/internal/queue"
)

// QueueItem is the wire representation of a stored artifact. Payload bytes
// never cross the socket; only delivery metadata does.
type QueueItem struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"owner_id,omitempty"`
	SessionID        string     `json:"session_id"`
	Sequence         int64      `json:"sequence"`
	Kind             string     `json:"kind"`
	Status           string     `json:"status"`
	RetryCount       int        `json:"retry_count"`
	LastError        string     `json:"last_error,omitempty"`
	DeliveredLocator string     `json:"delivered_locator,omitempty"`
	PayloadBytes     int        `json:"payload_bytes"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastAttemptAt    *time.Time `json:"last_attempt_at,omitempty"`
}

// FromQueueItem converts a stored item into its wire form.
func FromQueueItem(item *queue.Item) QueueItem {
	return QueueItem{
		ID:               item.ID,
		OwnerID:          item.OwnerID,
		SessionID:        item.SessionID,
		Sequence:         item.Sequence,
		Kind:             string(item.Kind),
		Status:           string(item.Status),
		RetryCount:       item.RetryCount,
		LastError:        item.LastError,
		DeliveredLocator: item.DeliveredLocator,
		PayloadBytes:     len(item.Payload),
		CreatedAt:        item.CreatedAt,
		UpdatedAt:        item.UpdatedAt,
		LastAttemptAt:    item.LastAttemptAt,
	}
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/queue status information.
type StatusResponse struct {
	Running        bool   `json:"running"`
	PID            int    `json:"pid"`
	Online         bool   `json:"online"`
	QueueDBPath    string `json:"queue_db_path"`
	LockPath       string `json:"lock_path"`
	Total          int    `json:"total"`
	Pending        int    `json:"pending"`
	Uploading      int    `json:"uploading"`
	Completed      int    `json:"completed"`
	Failed         int    `json:"failed"`
	TerminalFailed int    `json:"terminal_failed"`
}

// SyncNowRequest forces an immediate upload pass.
type SyncNowRequest struct{}

// SyncNowResponse reports whether the pass was started.
type SyncNowResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// ProgressRequest fetches delivery progress, optionally for one session.
type ProgressRequest struct {
	SessionID string `json:"session_id"`
}

// ProgressResponse mirrors a progress snapshot.
type ProgressResponse struct {
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

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueRetryRequest retries failed items. Empty list means all failed items.
type QueueRetryRequest struct {
	IDs []string `json:"ids"`
}

// QueueRetryResponse reports number of retried items.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// QueueRemoveRequest removes specific items by id.
type QueueRemoveRequest struct {
	IDs []string `json:"ids"`
}

// QueueRemoveResponse reports number of removed entries.
type QueueRemoveResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearRequest removes items: one session's, or everything.
type QueueClearRequest struct {
	SessionID string `json:"session_id"`
	All       bool   `json:"all"`
}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Uploading int `json:"uploading"`
	Failed    int `json:"failed"`
	Completed int `json:"completed"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	TableExists      bool   `json:"table_exists"`
	IntegrityCheck   bool   `json:"integrity_check"`
	TotalItems       int    `json:"total_items"`
	Error            string `json:"error"`
}

// CacheSweepRequest evicts expired cache entries.
type CacheSweepRequest struct{}

// CacheSweepResponse reports number of evicted entries.
type CacheSweepResponse struct {
	Swept int64 `json:"swept"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

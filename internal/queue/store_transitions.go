package queue

import (
	"context"
	"fmt"
	"time"
)

// MarkUploading claims a pending or failed item for an upload attempt. The
// claim is a conditional update so two workers can never both win: the
// second caller sees zero rows affected and backs off.
func (s *Store) MarkUploading(ctx context.Context, id string, attemptAt time.Time) (bool, error) {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx, `
		UPDATE queue_items
		SET status = ?, last_attempt_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(StatusUploading),
		attemptAt.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		string(StatusPending),
		string(StatusFailed),
	)
	if err != nil {
		return false, storageErr("mark uploading", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("mark uploading", err)
	}
	return affected > 0, nil
}

// MarkCompleted records a successful delivery together with the locator the
// remote confirmed.
func (s *Store) MarkCompleted(ctx context.Context, id, locator string) error {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx, `
		UPDATE queue_items
		SET status = ?, delivered_locator = ?, last_error = NULL, updated_at = ?
		WHERE id = ?`,
		string(StatusCompleted),
		nullableString(locator),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return storageErr("mark completed", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr("mark completed", err)
	}
	if affected == 0 {
		return storageErr("mark completed", fmt.Errorf("item %s not found", id))
	}
	return nil
}

// MarkAttemptFailed records a failed attempt: the retry counter advances and
// the item either returns to pending for another try or parks in failed once
// the counter reaches maxRetries.
func (s *Store) MarkAttemptFailed(ctx context.Context, id, lastError string, maxRetries int) (*Item, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(ctx, `
		UPDATE queue_items
		SET retry_count = retry_count + 1,
		    last_error = ?,
		    status = CASE WHEN retry_count + 1 >= ? THEN ? ELSE ? END,
		    updated_at = ?
		WHERE id = ?`,
		nullableString(lastError),
		maxRetries,
		string(StatusFailed),
		string(StatusPending),
		now,
		id,
	)
	if err != nil {
		return nil, storageErr("mark attempt failed", err)
	}
	item, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, storageErr("mark attempt failed", fmt.Errorf("item %s not found", id))
	}
	return item, nil
}

// MarkPermanentlyFailed parks an item the remote has rejected outright.
// The retry counter jumps straight to the ceiling so the item never
// reenters the automatic ladder; only an operator retry revives it.
func (s *Store) MarkPermanentlyFailed(ctx context.Context, id, lastError string, maxRetries int) error {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx, `
		UPDATE queue_items
		SET status = ?, retry_count = ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		string(StatusFailed),
		maxRetries,
		nullableString(lastError),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return storageErr("mark permanently failed", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr("mark permanently failed", err)
	}
	if affected == 0 {
		return storageErr("mark permanently failed", fmt.Errorf("item %s not found", id))
	}
	return nil
}

// RetryFailed requeues a terminally failed item on operator request. The
// retry counter resets to zero so the backoff ladder starts over.
func (s *Store) RetryFailed(ctx context.Context, id string) (bool, error) {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx, `
		UPDATE queue_items
		SET status = ?, retry_count = 0, last_error = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusPending),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		string(StatusFailed),
	)
	if err != nil {
		return false, storageErr("retry failed", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("retry failed", err)
	}
	return affected > 0, nil
}

// ResetInterrupted returns items stranded in uploading back to pending.
// Runs once at startup: anything still marked uploading belonged to a
// previous process and its attempt can never finish.
func (s *Store) ResetInterrupted(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx, `
		UPDATE queue_items
		SET status = ?, updated_at = ?
		WHERE status = ?`,
		string(StatusPending),
		time.Now().UTC().Format(time.RFC3339Nano),
		string(StatusUploading),
	)
	if err != nil {
		return 0, storageErr("reset interrupted", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("reset interrupted", err)
	}
	return affected, nil
}

// PruneCompleted deletes completed items older than the cutoff and returns
// how many were removed.
func (s *Store) PruneCompleted(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx, `
		DELETE FROM queue_items
		WHERE status = ? AND updated_at < ?`,
		string(StatusCompleted),
		olderThan.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, storageErr("prune completed", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("prune completed", err)
	}
	return affected, nil
}

// Stats counts items per lifecycle state, optionally scoped to one session.
// Terminal failures are the subset of failed rows whose retry counter hit
// maxRetries.
func (s *Store) Stats(ctx context.Context, sessionID string, maxRetries int) (Stats, error) {
	ctx = ensureContext(ctx)
	query := `
		SELECT status, retry_count, COUNT(*)
		FROM queue_items`
	var args []any
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " GROUP BY status, retry_count"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Stats{}, storageErr("stats", err)
	}
	defer func() { _ = rows.Close() }()

	var stats Stats
	for rows.Next() {
		var (
			statusStr  string
			retryCount int
			count      int
		)
		if err := rows.Scan(&statusStr, &retryCount, &count); err != nil {
			return Stats{}, storageErr("stats", err)
		}
		stats.Total += count
		switch Status(statusStr) {
		case StatusPending:
			stats.Pending += count
		case StatusUploading:
			stats.Uploading += count
		case StatusCompleted:
			stats.Completed += count
		case StatusFailed:
			stats.Failed += count
			if retryCount >= maxRetries {
				stats.TerminalFailed += count
			}
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, storageErr("stats", err)
	}
	return stats, nil
}

// LastCompletedAt returns the most recent completion time for a session, or
// nil when nothing has completed yet.
func (s *Store) LastCompletedAt(ctx context.Context, sessionID string) (*time.Time, error) {
	ctx = ensureContext(ctx)
	query := "SELECT MAX(updated_at) FROM queue_items WHERE status = ?"
	args := []any{string(StatusCompleted)}
	if sessionID != "" {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}

	var raw *string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		return nil, storageErr("last completed", err)
	}
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := parseTimeString(*raw)
	if err != nil {
		return nil, storageErr("last completed", err)
	}
	return &t, nil
}

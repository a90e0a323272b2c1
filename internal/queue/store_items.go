package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NewItemParams carries everything needed to persist a fresh artifact.
type NewItemParams struct {
	ID           string
	OwnerID      string
	SessionID    string
	Sequence     int64
	Kind         Kind
	Payload      []byte
	MetadataJSON string
	CreatedAt    time.Time
}

func (p NewItemParams) validate() error {
	if p.ID == "" {
		return errors.New("item id is required")
	}
	if p.SessionID == "" {
		return errors.New("session id is required")
	}
	if _, ok := ParseKind(string(p.Kind)); !ok {
		return fmt.Errorf("unknown item kind %q", p.Kind)
	}
	if len(p.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

// Enqueue persists a new pending item. Inserting the same id twice is a
// no-op; the already-stored item is returned so callers stay idempotent.
func (s *Store) Enqueue(ctx context.Context, params NewItemParams) (*Item, error) {
	ctx = ensureContext(ctx)
	if err := params.validate(); err != nil {
		return nil, storageErr("enqueue", err)
	}

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.execWithRetry(ctx, `
		INSERT INTO queue_items (id, owner_id, session_id, sequence, kind, payload, metadata_json, status, retry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		params.ID,
		params.OwnerID,
		params.SessionID,
		params.Sequence,
		string(params.Kind),
		params.Payload,
		nullableString(params.MetadataJSON),
		string(StatusPending),
		createdAt.UTC().Format(time.RFC3339Nano),
		now,
	)
	if err != nil {
		return nil, storageErr("enqueue", err)
	}

	item, err := s.GetByID(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, storageErr("enqueue", fmt.Errorf("item %s missing after insert", params.ID))
	}
	return item, nil
}

// PutDraft stores or replaces a draft snapshot. Latest write wins: the
// payload is overwritten in place and the item returns to pending so the
// newest draft is what gets delivered, whatever state the old one was in.
func (s *Store) PutDraft(ctx context.Context, params NewItemParams) (*Item, error) {
	ctx = ensureContext(ctx)
	if err := params.validate(); err != nil {
		return nil, storageErr("put draft", err)
	}

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.execWithRetry(ctx, `
		INSERT INTO queue_items (id, owner_id, session_id, sequence, kind, payload, metadata_json, status, retry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			metadata_json = excluded.metadata_json,
			status = excluded.status,
			retry_count = 0,
			last_error = NULL,
			delivered_locator = NULL,
			updated_at = excluded.updated_at`,
		params.ID,
		params.OwnerID,
		params.SessionID,
		params.Sequence,
		string(params.Kind),
		params.Payload,
		nullableString(params.MetadataJSON),
		string(StatusPending),
		createdAt.UTC().Format(time.RFC3339Nano),
		now,
	)
	if err != nil {
		return nil, storageErr("put draft", err)
	}

	item, err := s.GetByID(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, storageErr("put draft", fmt.Errorf("item %s missing after upsert", params.ID))
	}
	return item, nil
}

// GetByID returns a single item, or nil when it does not exist.
func (s *Store) GetByID(ctx context.Context, id string) (*Item, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM queue_items WHERE id = ?", id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get item", err)
	}
	return item, nil
}

// ByStatus lists items in the given states ordered oldest first.
func (s *Store) ByStatus(ctx context.Context, statuses ...Status) ([]*Item, error) {
	ctx = ensureContext(ctx)
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	query := "SELECT " + itemColumns + " FROM queue_items WHERE status IN (" +
		makePlaceholders(len(statuses)) + ") ORDER BY created_at ASC, id ASC"
	return s.queryItems(ctx, "list by status", query, args...)
}

// BySession lists every item belonging to a session, oldest first.
func (s *Store) BySession(ctx context.Context, sessionID string) ([]*Item, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + itemColumns + " FROM queue_items WHERE session_id = ? ORDER BY created_at ASC, id ASC"
	return s.queryItems(ctx, "list by session", query, sessionID)
}

// ByOwner lists every item produced by a local owner, oldest first.
func (s *Store) ByOwner(ctx context.Context, ownerID string) ([]*Item, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + itemColumns + " FROM queue_items WHERE owner_id = ? ORDER BY created_at ASC, id ASC"
	return s.queryItems(ctx, "list by owner", query, ownerID)
}

// List returns every item in the queue, oldest first.
func (s *Store) List(ctx context.Context) ([]*Item, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + itemColumns + " FROM queue_items ORDER BY created_at ASC, id ASC"
	return s.queryItems(ctx, "list", query)
}

func (s *Store) queryItems(ctx context.Context, operation, query string, args ...any) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(operation, err)
	}
	defer func() { _ = rows.Close() }()

	var items []*Item
	for rows.Next() {
		item, scanErr := scanItem(rows)
		if scanErr != nil {
			return nil, storageErr(operation, scanErr)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(operation, err)
	}
	return items, nil
}

// Remove deletes a single item. Removing an unknown id is not an error.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx, "DELETE FROM queue_items WHERE id = ?", id)
	if err != nil {
		return false, storageErr("remove", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("remove", err)
	}
	return affected > 0, nil
}

// ClearSession deletes every item for one session and returns how many
// rows went away.
func (s *Store) ClearSession(ctx context.Context, sessionID string) (int64, error) {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx, "DELETE FROM queue_items WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, storageErr("clear session", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("clear session", err)
	}
	return affected, nil
}

// ClearAll empties the queue entirely.
func (s *Store) ClearAll(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx, "DELETE FROM queue_items")
	if err != nil {
		return 0, storageErr("clear all", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("clear all", err)
	}
	return affected, nil
}

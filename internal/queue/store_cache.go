package queue

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// CachePut stores or replaces a cache entry with the given TTL.
func (s *Store) CachePut(ctx context.Context, key string, payload []byte, ttl time.Duration, now time.Time) error {
	ctx = ensureContext(ctx)
	if key == "" {
		return storageErr("cache put", errors.New("cache key is required"))
	}
	cachedAt := now.UTC()
	expiresAt := cachedAt.Add(ttl)
	err := s.execWithoutResultRetry(ctx, `
		INSERT INTO cache_entries (key, payload, cached_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at`,
		key,
		payload,
		cachedAt.Format(time.RFC3339Nano),
		expiresAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return storageErr("cache put", err)
	}
	return nil
}

// CacheGet returns the entry for key, or nil when absent. Expiry is the
// caller's concern; the row is returned as stored.
func (s *Store) CacheGet(ctx context.Context, key string) (*CacheEntry, error) {
	ctx = ensureContext(ctx)
	var (
		payload    []byte
		cachedRaw  string
		expiresRaw string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT payload, cached_at, expires_at FROM cache_entries WHERE key = ?", key).
		Scan(&payload, &cachedRaw, &expiresRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("cache get", err)
	}

	entry := &CacheEntry{Key: key, Payload: payload}
	if t, parseErr := parseTimeString(cachedRaw); parseErr == nil {
		entry.CachedAt = t
	}
	if t, parseErr := parseTimeString(expiresRaw); parseErr == nil {
		entry.ExpiresAt = t
	}
	return entry, nil
}

// CacheDelete removes a single cache entry.
func (s *Store) CacheDelete(ctx context.Context, key string) error {
	ctx = ensureContext(ctx)
	if err := s.execWithoutResultRetry(ctx, "DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		return storageErr("cache delete", err)
	}
	return nil
}

// CacheSweep deletes every entry whose deadline has passed and returns the
// number removed.
func (s *Store) CacheSweep(ctx context.Context, now time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx,
		"DELETE FROM cache_entries WHERE expires_at <= ?",
		now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, storageErr("cache sweep", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("cache sweep", err)
	}
	return affected, nil
}

// CacheCount returns the number of stored cache entries.
func (s *Store) CacheCount(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache_entries").Scan(&count); err != nil {
		return 0, storageErr("cache count", err)
	}
	return count, nil
}

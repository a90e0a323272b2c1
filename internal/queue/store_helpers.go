package queue

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, owner_id, session_id, sequence, kind, payload, metadata_json, status, retry_count, last_error, delivered_locator, created_at, updated_at, last_attempt_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id             string
		ownerID        string
		sessionID      string
		sequence       int64
		kindStr        string
		payload        []byte
		metadata       sql.NullString
		statusStr      string
		retryCount     int
		lastError      sql.NullString
		locator        sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
		lastAttemptRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&sessionID,
		&sequence,
		&kindStr,
		&payload,
		&metadata,
		&statusStr,
		&retryCount,
		&lastError,
		&locator,
		&createdRaw,
		&updatedRaw,
		&lastAttemptRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:               id,
		OwnerID:          ownerID,
		SessionID:        sessionID,
		Sequence:         sequence,
		Kind:             Kind(kindStr),
		Payload:          payload,
		MetadataJSON:     metadata.String,
		Status:           Status(statusStr),
		RetryCount:       retryCount,
		LastError:        lastError.String,
		DeliveredLocator: locator.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if lastAttemptRaw.Valid {
		if attempt, err := parseTimeString(lastAttemptRaw.String); err == nil {
			item.LastAttemptAt = &attempt
		}
	}
	return item, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Sync state keys
const (
	SyncKeyStravaLastFetch = "strava_last_fetch"
)

// GetSyncState retrieves a user's sync state value by key.
// Returns empty string if key doesn't exist
func (db *DB) GetSyncState(ctx context.Context, userID int64, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `
		SELECT value FROM sync_state WHERE user_id = ? AND key = ?
	`, userID, key).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetSyncState sets a user's sync state value
func (db *DB) SetSyncState(ctx context.Context, userID int64, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_state (user_id, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, userID, key, value)
	return err
}

// LastSync returns the time stored under key, zero when never synced
func (db *DB) LastSync(ctx context.Context, userID int64, key string) (time.Time, error) {
	v, err := db.GetSyncState(ctx, userID, key)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// MarkSynced stores t under key
func (db *DB) MarkSynced(ctx context.Context, userID int64, key string, t time.Time) error {
	return db.SetSyncState(ctx, userID, key, t.UTC().Format(time.RFC3339))
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetUser returns a user's stored preferences
func (db *DB) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	var createdAt string
	err := db.QueryRowContext(ctx, `
		SELECT id, name, distance_unit, pace_unit, created_at
		FROM users
		WHERE id = ?
	`, id).Scan(&u.ID, &u.Name, &u.DistanceUnit, &u.PaceUnit, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = parseTimestamp(createdAt)
	return &u, nil
}

// UpsertUser creates or updates a user's preferences
func (db *DB) UpsertUser(ctx context.Context, u *User) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, name, distance_unit, pace_unit)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			distance_unit = excluded.distance_unit,
			pace_unit = excluded.pace_unit
	`, u.ID, u.Name, u.DistanceUnit, u.PaceUnit)
	return err
}

// parseTimestamp accepts RFC3339 and SQLite's CURRENT_TIMESTAMP format
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const activityColumns = `id, user_id, name, type, start_date, start_date_local,
	distance, moving_time, elapsed_time, total_elevation_gain,
	average_speed, max_speed, average_heartrate, max_heartrate,
	average_cadence, average_power, perceived_effort`

// UpsertActivity inserts or updates an activity
func (db *DB) UpsertActivity(ctx context.Context, a *Activity) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO activities (`+activityColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			start_date = excluded.start_date,
			start_date_local = excluded.start_date_local,
			distance = excluded.distance,
			moving_time = excluded.moving_time,
			elapsed_time = excluded.elapsed_time,
			total_elevation_gain = excluded.total_elevation_gain,
			average_speed = excluded.average_speed,
			max_speed = excluded.max_speed,
			average_heartrate = excluded.average_heartrate,
			max_heartrate = excluded.max_heartrate,
			average_cadence = excluded.average_cadence,
			average_power = excluded.average_power,
			perceived_effort = excluded.perceived_effort,
			updated_at = CURRENT_TIMESTAMP
	`,
		a.ID, a.UserID, a.Name, a.Type,
		a.StartDate.UTC().Format(time.RFC3339), formatLocal(a.StartDateLocal, a.StartDate),
		a.Distance, a.MovingTime, a.ElapsedTime, a.TotalElevationGain,
		a.AverageSpeed, a.MaxSpeed, a.AverageHeartrate, a.MaxHeartrate,
		a.AverageCadence, a.AveragePower, a.PerceivedEffort,
	)
	return err
}

// UpsertActivities writes a batch of activities in one transaction
func (db *DB) UpsertActivities(ctx context.Context, acts []Activity) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO activities (`+activityColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			distance = excluded.distance,
			moving_time = excluded.moving_time,
			elapsed_time = excluded.elapsed_time,
			total_elevation_gain = excluded.total_elevation_gain,
			average_speed = excluded.average_speed,
			max_speed = excluded.max_speed,
			average_heartrate = excluded.average_heartrate,
			max_heartrate = excluded.max_heartrate,
			average_cadence = excluded.average_cadence,
			average_power = excluded.average_power,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range acts {
		a := &acts[i]
		if _, err := stmt.ExecContext(ctx,
			a.ID, a.UserID, a.Name, a.Type,
			a.StartDate.UTC().Format(time.RFC3339), formatLocal(a.StartDateLocal, a.StartDate),
			a.Distance, a.MovingTime, a.ElapsedTime, a.TotalElevationGain,
			a.AverageSpeed, a.MaxSpeed, a.AverageHeartrate, a.MaxHeartrate,
			a.AverageCadence, a.AveragePower, a.PerceivedEffort,
		); err != nil {
			return fmt.Errorf("upserting activity %d: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// GetActivity retrieves one of a user's activities by ID
func (db *DB) GetActivity(ctx context.Context, userID, id int64) (*Activity, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE user_id = ? AND id = ?
	`, userID, id)

	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrActivityNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListActivities returns a user's activities ordered by start date descending.
// A zero since disables the date filter; a non-positive limit disables the count cap.
func (db *DB) ListActivities(ctx context.Context, userID int64, since time.Time, limit int) ([]Activity, error) {
	sinceStr := ""
	if !since.IsZero() {
		sinceStr = since.UTC().Format(time.RFC3339)
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE user_id = ? AND start_date >= ?
		ORDER BY start_date DESC
		LIMIT ?
	`, userID, sinceStr, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *a)
	}
	return activities, rows.Err()
}

// CountActivities returns the number of activities stored for a user
func (db *DB) CountActivities(ctx context.Context, userID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activities WHERE user_id = ?", userID).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanActivity scans a single activity from a row
func scanActivity(row rowScanner) (*Activity, error) {
	var a Activity
	var startDate, startDateLocal string
	var elevation, avgSpeed, maxSpeed sql.NullFloat64

	err := row.Scan(
		&a.ID, &a.UserID, &a.Name, &a.Type, &startDate, &startDateLocal,
		&a.Distance, &a.MovingTime, &a.ElapsedTime, &elevation,
		&avgSpeed, &maxSpeed, &a.AverageHeartrate, &a.MaxHeartrate,
		&a.AverageCadence, &a.AveragePower, &a.PerceivedEffort,
	)
	if err != nil {
		return nil, err
	}

	a.TotalElevationGain = elevation.Float64
	a.AverageSpeed = avgSpeed.Float64
	a.MaxSpeed = maxSpeed.Float64

	var parseErr error
	a.StartDate, parseErr = time.Parse(time.RFC3339, startDate)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing start_date %q: %w", startDate, parseErr)
	}
	a.StartDateLocal, parseErr = time.Parse(time.RFC3339, startDateLocal)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing start_date_local %q: %w", startDateLocal, parseErr)
	}

	return &a, nil
}

// formatLocal stores local wall-clock time with a Z suffix, matching how
// Strava reports start_date_local.
func formatLocal(local, utc time.Time) string {
	if local.IsZero() {
		local = utc
	}
	return time.Date(local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), local.Second(), 0, time.UTC).Format(time.RFC3339)
}

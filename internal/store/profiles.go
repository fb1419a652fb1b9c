package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetProfile returns the cached athlete profile for a user
func (db *DB) GetProfile(ctx context.Context, userID int64) (*AthleteProfile, error) {
	row := db.QueryRowContext(ctx, `
		SELECT user_id, weekly_km, runs_per_week, longest_run_km, aerobic_capacity,
			avg_pace, fastest_pace, easy_pace_low, easy_pace_high,
			activity_count, used_defaults, computed_at
		FROM athlete_profiles
		WHERE user_id = ?
	`, userID)

	var p AthleteProfile
	var usedDefaults int
	var computedAt string
	err := row.Scan(
		&p.UserID, &p.WeeklyKm, &p.RunsPerWeek, &p.LongestRunKm, &p.AerobicCapacity,
		&p.AvgPaceMinPerKm, &p.FastestPaceMinPerKm, &p.EasyPaceLow, &p.EasyPaceHigh,
		&p.ActivityCount, &usedDefaults, &computedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}

	p.UsedDefaults = usedDefaults == 1
	p.ComputedAt, err = time.Parse(time.RFC3339, computedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing computed_at %q: %w", computedAt, err)
	}
	return &p, nil
}

// SaveProfile overwrites the user's profile
func (db *DB) SaveProfile(ctx context.Context, p *AthleteProfile) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO athlete_profiles (
			user_id, weekly_km, runs_per_week, longest_run_km, aerobic_capacity,
			avg_pace, fastest_pace, easy_pace_low, easy_pace_high,
			activity_count, used_defaults, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			weekly_km = excluded.weekly_km,
			runs_per_week = excluded.runs_per_week,
			longest_run_km = excluded.longest_run_km,
			aerobic_capacity = excluded.aerobic_capacity,
			avg_pace = excluded.avg_pace,
			fastest_pace = excluded.fastest_pace,
			easy_pace_low = excluded.easy_pace_low,
			easy_pace_high = excluded.easy_pace_high,
			activity_count = excluded.activity_count,
			used_defaults = excluded.used_defaults,
			computed_at = excluded.computed_at
	`,
		p.UserID, p.WeeklyKm, p.RunsPerWeek, p.LongestRunKm, p.AerobicCapacity,
		p.AvgPaceMinPerKm, p.FastestPaceMinPerKm, p.EasyPaceLow, p.EasyPaceHigh,
		p.ActivityCount, boolToInt(p.UsedDefaults), p.ComputedAt.UTC().Format(time.RFC3339),
	)
	return err
}

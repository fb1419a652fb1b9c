package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

const planColumns = `id, user_id, name, goal_type, target_time_seconds, race_date, experience,
	terrain, mode, start_date, total_weeks, current_week, status, coach_notes,
	enrichment_status, enriched_weeks, fastest_pace, created_at, updated_at`

// SavePlan persists a new plan with its weeks and days in one transaction.
// Any other active plan of the same user is archived. IDs are written back
// into the plan, week and day values.
func (db *DB) SavePlan(ctx context.Context, p *TrainingPlan) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	if _, err := tx.ExecContext(ctx, `
		UPDATE training_plans SET status = ?, updated_at = ?
		WHERE user_id = ? AND status = ? AND id != ?
	`, PlanArchived, now.Format(time.RFC3339), p.UserID, PlanActive, p.ID); err != nil {
		return fmt.Errorf("archiving previous plans: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO training_plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.UserID, p.Name, p.GoalType, p.TargetTimeSeconds, formatDatePtr(p.RaceDate), p.Experience,
		p.Terrain, p.Mode, p.StartDate.Format(dateLayout), p.TotalWeeks, p.CurrentWeek, p.Status, p.CoachNotes,
		p.EnrichmentStatus, p.EnrichedWeeks, p.FastestPace,
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting plan: %w", err)
	}

	for i := range p.Weeks {
		w := &p.Weeks[i]
		w.PlanID = p.ID
		res, err := tx.ExecContext(ctx, `
			INSERT INTO plan_weeks (plan_id, number, phase, start_date, total_km, is_recovery, enrichment_status, summary)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, w.PlanID, w.Number, w.Phase, w.StartDate.Format(dateLayout), w.TotalKm, boolToInt(w.IsRecovery), w.EnrichmentStatus, w.Summary)
		if err != nil {
			return fmt.Errorf("inserting week %d: %w", w.Number, err)
		}
		if w.ID, err = res.LastInsertId(); err != nil {
			return err
		}

		for j := range w.Days {
			d := &w.Days[j]
			d.WeekID = w.ID
			res, err := tx.ExecContext(ctx, `
				INSERT INTO plan_days (week_id, date, type, distance_km, pace, description, status, activity_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, d.WeekID, d.Date.Format(dateLayout), d.Type, d.DistanceKm, d.PaceMinPerKm, d.Description, d.Status, d.ActivityID)
			if err != nil {
				return fmt.Errorf("inserting day %s: %w", d.Date.Format(dateLayout), err)
			}
			if d.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// GetPlan returns a user's plan with weeks and days
func (db *DB) GetPlan(ctx context.Context, userID int64, id string) (*TrainingPlan, error) {
	row := db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM training_plans WHERE id = ? AND user_id = ?`, id, userID)
	return db.loadPlan(ctx, row)
}

// GetPlanByID returns a plan regardless of owner; used by background workers
func (db *DB) GetPlanByID(ctx context.Context, id string) (*TrainingPlan, error) {
	row := db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM training_plans WHERE id = ?`, id)
	return db.loadPlan(ctx, row)
}

// ActivePlan returns the user's active plan
func (db *DB) ActivePlan(ctx context.Context, userID int64) (*TrainingPlan, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+planColumns+`
		FROM training_plans
		WHERE user_id = ? AND status = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, PlanActive)
	return db.loadPlan(ctx, row)
}

func (db *DB) loadPlan(ctx context.Context, row *sql.Row) (*TrainingPlan, error) {
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}

	weeks, err := db.planWeeks(ctx, p.ID, false)
	if err != nil {
		return nil, err
	}
	p.Weeks = weeks
	return p, nil
}

// WeeksNeedingEnrichment returns the plan's weeks, with days, that are not yet enriched
func (db *DB) WeeksNeedingEnrichment(ctx context.Context, planID string) ([]PlanWeek, error) {
	return db.planWeeks(ctx, planID, true)
}

func (db *DB) planWeeks(ctx context.Context, planID string, pendingOnly bool) ([]PlanWeek, error) {
	query := `
		SELECT id, plan_id, number, phase, start_date, total_km, is_recovery, enrichment_status, summary
		FROM plan_weeks
		WHERE plan_id = ?`
	args := []any{planID}
	if pendingOnly {
		query += ` AND enrichment_status != ?`
		args = append(args, EnrichComplete)
	}
	query += ` ORDER BY number`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var weeks []PlanWeek
	index := make(map[int64]int)
	for rows.Next() {
		var w PlanWeek
		var start string
		var recovery int
		if err := rows.Scan(&w.ID, &w.PlanID, &w.Number, &w.Phase, &start, &w.TotalKm, &recovery, &w.EnrichmentStatus, &w.Summary); err != nil {
			rows.Close()
			return nil, err
		}
		w.IsRecovery = recovery == 1
		if w.StartDate, err = time.Parse(dateLayout, start); err != nil {
			rows.Close()
			return nil, fmt.Errorf("parsing week start %q: %w", start, err)
		}
		index[w.ID] = len(weeks)
		weeks = append(weeks, w)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(weeks) == 0 {
		return weeks, nil
	}

	dayRows, err := db.QueryContext(ctx, `
		SELECT d.id, d.week_id, d.date, d.type, d.distance_km, d.pace, d.description, d.status, d.activity_id
		FROM plan_days d
		JOIN plan_weeks w ON w.id = d.week_id
		WHERE w.plan_id = ?
		ORDER BY d.date, d.id
	`, planID)
	if err != nil {
		return nil, err
	}
	defer dayRows.Close()

	for dayRows.Next() {
		d, err := scanDay(dayRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[d.WeekID]; ok {
			weeks[i].Days = append(weeks[i].Days, *d)
		}
	}
	return weeks, dayRows.Err()
}

// UpdatePlanProgress stores the current week pointer and lifecycle status
func (db *DB) UpdatePlanProgress(ctx context.Context, id string, currentWeek int, status string) error {
	return db.updatePlan(ctx, `UPDATE training_plans SET current_week = ?, status = ?, updated_at = ? WHERE id = ?`,
		currentWeek, status, time.Now().UTC().Format(time.RFC3339), id)
}

// SetPlanStatus changes a user's plan lifecycle status
func (db *DB) SetPlanStatus(ctx context.Context, userID int64, id, status string) error {
	return db.updatePlan(ctx, `UPDATE training_plans SET status = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		status, time.Now().UTC().Format(time.RFC3339), id, userID)
}

// UpdatePlanEnrichment stores the plan-level enrichment outcome
func (db *DB) UpdatePlanEnrichment(ctx context.Context, id, status string, enrichedWeeks int) error {
	return db.updatePlan(ctx, `UPDATE training_plans SET enrichment_status = ?, enriched_weeks = ?, updated_at = ? WHERE id = ?`,
		status, enrichedWeeks, time.Now().UTC().Format(time.RFC3339), id)
}

func (db *DB) updatePlan(ctx context.Context, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// SetWeekEnrichmentStatus updates one week's enrichment status
func (db *DB) SetWeekEnrichmentStatus(ctx context.Context, weekID int64, status string) error {
	_, err := db.ExecContext(ctx, `UPDATE plan_weeks SET enrichment_status = ? WHERE id = ?`, status, weekID)
	return err
}

// SaveEnrichedWeek stores generated descriptions and paces and marks the week complete.
// Workout type and distance are never touched.
func (db *DB) SaveEnrichedWeek(ctx context.Context, weekID int64, summary string, days []PlanDay) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, d := range days {
		if _, err := tx.ExecContext(ctx, `
			UPDATE plan_days SET description = ?, pace = ? WHERE id = ? AND week_id = ?
		`, d.Description, d.PaceMinPerKm, d.ID, weekID); err != nil {
			return fmt.Errorf("updating day %d: %w", d.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE plan_weeks SET summary = ?, enrichment_status = ? WHERE id = ?
	`, summary, EnrichComplete, weekID); err != nil {
		return err
	}

	return tx.Commit()
}

// ReplaceWeekWorkouts rewrites a week's workouts after an adjustment and resets its enrichment
func (db *DB) ReplaceWeekWorkouts(ctx context.Context, w PlanWeek) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE plan_weeks SET total_km = ?, summary = ?, enrichment_status = ? WHERE id = ?
	`, w.TotalKm, w.Summary, EnrichPending, w.ID); err != nil {
		return err
	}

	for _, d := range w.Days {
		if _, err := tx.ExecContext(ctx, `
			UPDATE plan_days SET type = ?, distance_km = ?, pace = ?, description = ? WHERE id = ? AND week_id = ?
		`, d.Type, d.DistanceKm, d.PaceMinPerKm, d.Description, d.ID, w.ID); err != nil {
			return fmt.Errorf("updating day %d: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

// UpdateDayStatus sets a day's status and matched activity, scoped to the owning user and plan
func (db *DB) UpdateDayStatus(ctx context.Context, userID int64, planID string, dayID int64, status string, activityID *int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE plan_days SET status = ?, activity_id = ?
		WHERE id = ? AND week_id IN (
			SELECT w.id FROM plan_weeks w
			JOIN training_plans p ON p.id = w.plan_id
			WHERE p.id = ? AND p.user_id = ?
		)
	`, status, activityID, dayID, planID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDayNotFound
	}
	return nil
}

// PlansNeedingEnrichment returns IDs of active plans whose enrichment is unfinished.
// Plans stuck in "enriching" count only once their last update is older than staleBefore.
func (db *DB) PlansNeedingEnrichment(ctx context.Context, staleBefore time.Time) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id FROM training_plans
		WHERE status = ?
		  AND (enrichment_status IN (?, ?, ?)
		       OR (enrichment_status = ? AND updated_at < ?))
		ORDER BY created_at
	`, PlanActive, EnrichPending, EnrichPartial, EnrichFailed, EnrichRunning, staleBefore.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanPlan(row rowScanner) (*TrainingPlan, error) {
	var p TrainingPlan
	var raceDate sql.NullString
	var start, createdAt, updatedAt string

	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.GoalType, &p.TargetTimeSeconds, &raceDate, &p.Experience,
		&p.Terrain, &p.Mode, &start, &p.TotalWeeks, &p.CurrentWeek, &p.Status, &p.CoachNotes,
		&p.EnrichmentStatus, &p.EnrichedWeeks, &p.FastestPace, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if raceDate.Valid {
		t, err := time.Parse(dateLayout, raceDate.String)
		if err != nil {
			return nil, fmt.Errorf("parsing race_date %q: %w", raceDate.String, err)
		}
		p.RaceDate = &t
	}
	if p.StartDate, err = time.Parse(dateLayout, start); err != nil {
		return nil, fmt.Errorf("parsing start_date %q: %w", start, err)
	}
	p.CreatedAt = parseTimestamp(createdAt)
	p.UpdatedAt = parseTimestamp(updatedAt)
	return &p, nil
}

func scanDay(row rowScanner) (*PlanDay, error) {
	var d PlanDay
	var date string
	if err := row.Scan(&d.ID, &d.WeekID, &date, &d.Type, &d.DistanceKm, &d.PaceMinPerKm, &d.Description, &d.Status, &d.ActivityID); err != nil {
		return nil, err
	}
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("parsing day date %q: %w", date, err)
	}
	d.Date = t
	return &d, nil
}

func formatDatePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

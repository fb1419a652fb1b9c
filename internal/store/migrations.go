package store

import "database/sql"

// migrate runs all database migrations
func migrate(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			distance_unit TEXT NOT NULL DEFAULT 'km',
			pace_unit TEXT NOT NULL DEFAULT 'min/km',
			created_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,

		// Strava tokens, one row per linked user
		`CREATE TABLE IF NOT EXISTS auth (
			user_id INTEGER PRIMARY KEY,
			athlete_id INTEGER NOT NULL,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS activities (
			id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			start_date TEXT NOT NULL,
			start_date_local TEXT NOT NULL,
			distance REAL NOT NULL CHECK (distance >= 0),
			moving_time INTEGER NOT NULL CHECK (moving_time >= 0),
			elapsed_time INTEGER NOT NULL,
			total_elevation_gain REAL,
			average_speed REAL,
			max_speed REAL,
			average_heartrate REAL,
			max_heartrate REAL,
			average_cadence REAL,
			average_power REAL,
			perceived_effort INTEGER,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_activities_user_start ON activities(user_id, start_date)`,

		// Per-user provider bookkeeping, e.g. the last Strava fetch
		`CREATE TABLE IF NOT EXISTS sync_state (
			user_id INTEGER NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, key)
		)`,

		`CREATE TABLE IF NOT EXISTS athlete_profiles (
			user_id INTEGER PRIMARY KEY,
			weekly_km REAL NOT NULL,
			runs_per_week REAL NOT NULL,
			longest_run_km REAL NOT NULL,
			aerobic_capacity REAL,
			avg_pace REAL NOT NULL,
			fastest_pace REAL NOT NULL,
			easy_pace_low REAL NOT NULL,
			easy_pace_high REAL NOT NULL,
			activity_count INTEGER NOT NULL,
			used_defaults INTEGER NOT NULL DEFAULT 0,
			computed_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS training_plans (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			goal_type TEXT NOT NULL,
			target_time_seconds INTEGER,
			race_date TEXT,
			experience TEXT NOT NULL,
			terrain TEXT NOT NULL DEFAULT 'road',
			mode TEXT NOT NULL DEFAULT 'single',
			start_date TEXT NOT NULL,
			total_weeks INTEGER NOT NULL,
			current_week INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL,
			coach_notes TEXT NOT NULL DEFAULT '',
			enrichment_status TEXT NOT NULL,
			enriched_weeks INTEGER NOT NULL DEFAULT 0,
			fastest_pace REAL NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_training_plans_user_status ON training_plans(user_id, status)`,

		`CREATE TABLE IF NOT EXISTS plan_weeks (
			id INTEGER PRIMARY KEY,
			plan_id TEXT NOT NULL,
			number INTEGER NOT NULL,
			phase TEXT NOT NULL,
			start_date TEXT NOT NULL,
			total_km REAL NOT NULL,
			is_recovery INTEGER NOT NULL DEFAULT 0,
			enrichment_status TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			UNIQUE (plan_id, number),
			FOREIGN KEY (plan_id) REFERENCES training_plans(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS plan_days (
			id INTEGER PRIMARY KEY,
			week_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			type TEXT NOT NULL,
			distance_km REAL NOT NULL,
			pace REAL NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'planned',
			activity_id INTEGER,
			FOREIGN KEY (week_id) REFERENCES plan_weeks(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_plan_days_week ON plan_days(week_id)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}

	return nil
}

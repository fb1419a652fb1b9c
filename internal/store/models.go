package store

import "time"

// User holds per-user display preferences
type User struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	DistanceUnit string    `db:"distance_unit" json:"distance_unit"`
	PaceUnit     string    `db:"pace_unit" json:"pace_unit"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Auth represents a user's OAuth tokens for Strava API access
type Auth struct {
	UserID       int64     `db:"user_id"`
	AthleteID    int64     `db:"athlete_id"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	ExpiresAt    time.Time `db:"expires_at"`
}

// Activity represents a logged activity summary
type Activity struct {
	ID                 int64     `db:"id" json:"id"`
	UserID             int64     `db:"user_id" json:"user_id"`
	Name               string    `db:"name" json:"name"`
	Type               string    `db:"type" json:"type"`
	StartDate          time.Time `db:"start_date" json:"start_date"`
	StartDateLocal     time.Time `db:"start_date_local" json:"start_date_local"`
	Distance           float64   `db:"distance" json:"distance"`       // meters
	MovingTime         int       `db:"moving_time" json:"moving_time"` // seconds
	ElapsedTime        int       `db:"elapsed_time" json:"elapsed_time"`
	TotalElevationGain float64   `db:"total_elevation_gain" json:"total_elevation_gain"`
	AverageSpeed       float64   `db:"average_speed" json:"average_speed"` // m/s
	MaxSpeed           float64   `db:"max_speed" json:"max_speed"`
	AverageHeartrate   *float64  `db:"average_heartrate" json:"average_heartrate,omitempty"`
	MaxHeartrate       *float64  `db:"max_heartrate" json:"max_heartrate,omitempty"`
	AverageCadence     *float64  `db:"average_cadence" json:"average_cadence,omitempty"`
	AveragePower       *float64  `db:"average_power" json:"average_power,omitempty"`
	PerceivedEffort    *int      `db:"perceived_effort" json:"perceived_effort,omitempty"`
}

// LocalDate returns the activity's local calendar date, falling back to the UTC start
func (a Activity) LocalDate() time.Time {
	t := a.StartDateLocal
	if t.IsZero() {
		t = a.StartDate
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AthleteProfile is the cached training baseline for a user
type AthleteProfile struct {
	UserID              int64     `db:"user_id" json:"user_id"`
	WeeklyKm            float64   `db:"weekly_km" json:"weekly_km"`
	RunsPerWeek         float64   `db:"runs_per_week" json:"runs_per_week"`
	LongestRunKm        float64   `db:"longest_run_km" json:"longest_run_km"`
	AerobicCapacity     *float64  `db:"aerobic_capacity" json:"aerobic_capacity,omitempty"`
	AvgPaceMinPerKm     float64   `db:"avg_pace" json:"avg_pace_min_per_km"`
	FastestPaceMinPerKm float64   `db:"fastest_pace" json:"fastest_pace_min_per_km"`
	EasyPaceLow         float64   `db:"easy_pace_low" json:"easy_pace_low"`
	EasyPaceHigh        float64   `db:"easy_pace_high" json:"easy_pace_high"`
	ActivityCount       int       `db:"activity_count" json:"activity_count"`
	UsedDefaults        bool      `db:"used_defaults" json:"used_defaults"`
	ComputedAt          time.Time `db:"computed_at" json:"computed_at"`
}

// Plan lifecycle statuses
const (
	PlanActive    = "active"
	PlanCompleted = "completed"
	PlanArchived  = "archived"
)

// Enrichment statuses, shared by plans and weeks
const (
	EnrichPending  = "pending"
	EnrichRunning  = "enriching"
	EnrichComplete = "complete"
	EnrichPartial  = "partial"
	EnrichFailed   = "failed"
)

// Day statuses
const (
	DayPlanned   = "planned"
	DayCompleted = "completed"
	DaySkipped   = "skipped"
)

// TrainingPlan is a persisted multi-week plan
type TrainingPlan struct {
	ID                string     `db:"id" json:"id"`
	UserID            int64      `db:"user_id" json:"user_id"`
	Name              string     `db:"name" json:"name"`
	GoalType          string     `db:"goal_type" json:"goal_type"`
	TargetTimeSeconds *int       `db:"target_time_seconds" json:"target_time_seconds,omitempty"`
	RaceDate          *time.Time `db:"race_date" json:"race_date,omitempty"`
	Experience        string     `db:"experience" json:"experience"`
	Terrain           string     `db:"terrain" json:"terrain"`
	Mode              string     `db:"mode" json:"mode"`
	StartDate         time.Time  `db:"start_date" json:"start_date"`
	TotalWeeks        int        `db:"total_weeks" json:"total_weeks"`
	CurrentWeek       int        `db:"current_week" json:"current_week"`
	Status            string     `db:"status" json:"status"`
	CoachNotes        string     `db:"coach_notes" json:"coach_notes"`
	EnrichmentStatus  string     `db:"enrichment_status" json:"enrichment_status"`
	EnrichedWeeks     int        `db:"enriched_weeks" json:"enriched_weeks"`
	FastestPace       float64    `db:"fastest_pace" json:"fastest_pace_min_per_km"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
	Weeks             []PlanWeek `json:"weeks,omitempty"`
}

// PlanWeek is one week of a plan
type PlanWeek struct {
	ID               int64     `db:"id" json:"id"`
	PlanID           string    `db:"plan_id" json:"plan_id"`
	Number           int       `db:"number" json:"number"` // 1-based
	Phase            string    `db:"phase" json:"phase"`
	StartDate        time.Time `db:"start_date" json:"start_date"`
	TotalKm          float64   `db:"total_km" json:"total_km"`
	IsRecovery       bool      `db:"is_recovery" json:"is_recovery"`
	EnrichmentStatus string    `db:"enrichment_status" json:"enrichment_status"`
	Summary          string    `db:"summary" json:"summary"`
	Days             []PlanDay `json:"days,omitempty"`
}

// PlanDay is one scheduled day of a week
type PlanDay struct {
	ID           int64     `db:"id" json:"id"`
	WeekID       int64     `db:"week_id" json:"week_id"`
	Date         time.Time `db:"date" json:"date"`
	Type         string    `db:"type" json:"type"`
	DistanceKm   float64   `db:"distance_km" json:"distance_km"`
	PaceMinPerKm float64   `db:"pace" json:"pace_min_per_km"`
	Description  string    `db:"description" json:"description"`
	Status       string    `db:"status" json:"status"`
	ActivityID   *int64    `db:"activity_id" json:"activity_id,omitempty"`
}

// Conversation is a chat transcript owner
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one append-only chat message
type Message struct {
	ID             int64     `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Role           string    `db:"role" json:"role"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

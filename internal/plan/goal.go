// Package plan builds periodized training plan skeletons and tracks adherence against them.
package plan

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidGoal is returned for malformed generation parameters
var ErrInvalidGoal = errors.New("invalid goal")

// GoalType is a target race distance
type GoalType string

const (
	Goal5K        GoalType = "5k"
	Goal10K       GoalType = "10k"
	GoalHalf      GoalType = "half_marathon"
	GoalMarathon  GoalType = "marathon"
	GoalUltra50K  GoalType = "ultra_50k"
	GoalUltra100K GoalType = "ultra_100k"
)

// goalPolicy holds the per-distance plan constants
type goalPolicy struct {
	label        string
	distanceKm   float64
	defaultWeeks int
	peakKm       float64 // intermediate peak weekly volume
	longRunCapKm float64
	taper        []float64 // fractions of the last loading week, race week last
}

var goalPolicies = map[GoalType]goalPolicy{
	Goal5K:        {"5K", 5, 8, 30, 12, []float64{0.6}},
	Goal10K:       {"10K", 10, 10, 40, 16, []float64{0.6}},
	GoalHalf:      {"Half Marathon", 21.0975, 12, 50, 22, []float64{0.7, 0.5}},
	GoalMarathon:  {"Marathon", 42.195, 16, 65, 32, []float64{0.75, 0.6, 0.4}},
	GoalUltra50K:  {"50K", 50, 18, 75, 36, []float64{0.75, 0.6, 0.4}},
	GoalUltra100K: {"100K", 100, 20, 90, 40, []float64{0.8, 0.7, 0.55, 0.4}},
}

// Valid reports whether the goal type is known
func (g GoalType) Valid() bool {
	_, ok := goalPolicies[g]
	return ok
}

// DistanceKm returns the race distance
func (g GoalType) DistanceKm() float64 {
	return goalPolicies[g].distanceKm
}

// Label returns a display name for the distance
func (g GoalType) Label() string {
	if p, ok := goalPolicies[g]; ok {
		return p.label
	}
	return string(g)
}

// IsUltra reports whether the goal is longer than a marathon
func (g GoalType) IsUltra() bool {
	return g == GoalUltra50K || g == GoalUltra100K
}

// Experience is the runner's self-reported level
type Experience string

const (
	Beginner     Experience = "beginner"
	Intermediate Experience = "intermediate"
	Advanced     Experience = "advanced"
)

type experiencePolicy struct {
	peakMultiplier float64
	volumeFloorKm  float64
	recoveryEvery  int
	defaultDays    []time.Weekday
}

var experiencePolicies = map[Experience]experiencePolicy{
	Beginner:     {0.75, 10, 3, []time.Weekday{time.Monday, time.Wednesday, time.Friday, time.Sunday}},
	Intermediate: {1.0, 15, 4, []time.Weekday{time.Tuesday, time.Wednesday, time.Friday, time.Sunday}},
	Advanced:     {1.25, 25, 4, []time.Weekday{time.Monday, time.Tuesday, time.Thursday, time.Friday, time.Sunday}},
}

// Terrain is the race surface
type Terrain string

const (
	Road  Terrain = "road"
	Trail Terrain = "trail"
	Track Terrain = "track"
	Mixed Terrain = "mixed"
)

func (t Terrain) valid() bool {
	switch t {
	case Road, Trail, Track, Mixed:
		return true
	}
	return false
}

// Goal is a race the plan targets
type Goal struct {
	Type       GoalType      `json:"type"`
	Name       string        `json:"name,omitempty"`
	TargetTime time.Duration `json:"target_time,omitempty"`
	RaceDate   *time.Time    `json:"race_date,omitempty"`
	Terrain    Terrain       `json:"terrain,omitempty"`
}

// PaceMinPerKm is the pace the target time implies, or 0 without a target
func (g Goal) PaceMinPerKm() float64 {
	if g.TargetTime <= 0 || !g.Type.Valid() {
		return 0
	}
	return g.TargetTime.Minutes() / g.Type.DistanceKm()
}

// terrain returns the goal terrain, defaulting to road
func (g Goal) terrain() Terrain {
	if g.Terrain == "" {
		return Road
	}
	return g.Terrain
}

// Plausible goal paces in min/km
const (
	minGoalPace = 2.5
	maxGoalPace = 15.0
)

// Validate checks the goal against today's date
func (g Goal) Validate(now time.Time) error {
	if !g.Type.Valid() {
		return fmt.Errorf("%w: unknown goal type %q", ErrInvalidGoal, g.Type)
	}
	if g.Terrain != "" && !g.Terrain.valid() {
		return fmt.Errorf("%w: unknown terrain %q", ErrInvalidGoal, g.Terrain)
	}
	if g.TargetTime < 0 {
		return fmt.Errorf("%w: target time must be positive", ErrInvalidGoal)
	}
	if pace := g.PaceMinPerKm(); pace > 0 && (pace < minGoalPace || pace > maxGoalPace) {
		return fmt.Errorf("%w: target time %s implies an implausible pace of %.2f min/km", ErrInvalidGoal, g.TargetTime, pace)
	}
	if g.RaceDate != nil && dateOf(*g.RaceDate).Before(dateOf(now)) {
		return fmt.Errorf("%w: race date %s is in the past", ErrInvalidGoal, g.RaceDate.Format(dateLayout))
	}
	return nil
}

// Request holds everything needed to generate a plan
type Request struct {
	Goal             Goal           `json:"goal"`
	Secondary        *Goal          `json:"secondary,omitempty"`
	Experience       Experience     `json:"experience"`
	TrainingDays     []time.Weekday `json:"training_days,omitempty"`
	IncludeSpeedwork bool           `json:"include_speedwork"`
	IncludeLongRun   bool           `json:"include_long_run"`
	StartDate        time.Time      `json:"start_date,omitempty"`
}

// WithDefaults fills the experience level and training days when omitted
func (r Request) WithDefaults() Request {
	if r.Experience == "" {
		r.Experience = Intermediate
	}
	if len(r.TrainingDays) == 0 {
		if p, ok := experiencePolicies[r.Experience]; ok {
			r.TrainingDays = append([]time.Weekday(nil), p.defaultDays...)
		}
	}
	return r
}

// Validate checks the request after defaults are applied
func (r Request) Validate(now time.Time) error {
	if err := r.Goal.Validate(now); err != nil {
		return err
	}
	if r.Secondary != nil {
		if err := r.Secondary.Validate(now); err != nil {
			return fmt.Errorf("secondary goal: %w", err)
		}
	}
	if _, ok := experiencePolicies[r.Experience]; !ok {
		return fmt.Errorf("%w: unknown experience level %q", ErrInvalidGoal, r.Experience)
	}
	if len(r.TrainingDays) < 2 || len(r.TrainingDays) > 7 {
		return fmt.Errorf("%w: choose between 2 and 7 training days, got %d", ErrInvalidGoal, len(r.TrainingDays))
	}
	seen := make(map[time.Weekday]bool)
	for _, d := range r.TrainingDays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: invalid weekday %d", ErrInvalidGoal, d)
		}
		if seen[d] {
			return fmt.Errorf("%w: duplicate training day %s", ErrInvalidGoal, d)
		}
		seen[d] = true
	}
	return nil
}

const dateLayout = "2006-01-02"

// dateOf truncates to a UTC calendar date
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// mondayOf returns the Monday of the week containing t
func mondayOf(t time.Time) time.Time {
	d := dateOf(t)
	return d.AddDate(0, 0, -weekdayOffset(d.Weekday()))
}

// weekdayOffset is the day index within a Monday-first week
func weekdayOffset(d time.Weekday) int {
	return (int(d) + 6) % 7
}

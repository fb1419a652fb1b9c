package plan

import (
	"math"

	"runcoach/internal/store"
)

// Workout types
const (
	TypeEasy      = "easy"
	TypeRecovery  = "recovery"
	TypeLong      = "long"
	TypeTempo     = "tempo"
	TypeIntervals = "intervals"
	TypeRace      = "race"
	TypeRest      = "rest"
)

// IsQuality reports whether a workout type is a hard session
func IsQuality(workoutType string) bool {
	return workoutType == TypeTempo || workoutType == TypeIntervals
}

// IsTraining reports whether a day type counts toward adherence
func IsTraining(workoutType string) bool {
	return workoutType != TypeRest && workoutType != TypeRace
}

// Paces are per-workout pace targets in min/km. Larger is slower.
type Paces struct {
	Fastest   float64 `json:"fastest"`
	Easy      float64 `json:"easy"`
	Recovery  float64 `json:"recovery"`
	Long      float64 `json:"long"`
	Tempo     float64 `json:"tempo"`
	Intervals float64 `json:"intervals"`
	Race      float64 `json:"race"`
}

// DerivePaces sets pace targets from the athlete's demonstrated range.
// No target is faster than the fastest demonstrated pace.
func DerivePaces(profile store.AthleteProfile, goal Goal) Paces {
	avg := profile.AvgPaceMinPerKm
	if avg <= 0 {
		avg = defaultAvgPace
	}
	fastest := profile.FastestPaceMinPerKm
	if fastest <= 0 || fastest > avg {
		fastest = avg
	}

	race := avg
	if goalPace := goal.PaceMinPerKm(); goalPace > 0 {
		race = goalPace
	}

	return Paces{
		Fastest:   fastest,
		Easy:      ceil2(avg + 0.75),
		Recovery:  ceil2(avg + 1.25),
		Long:      ceil2(avg + 0.5),
		Tempo:     ceil2(math.Max(fastest, avg-0.15)),
		Intervals: ceil2(fastest + 0.1),
		Race:      ceil2(math.Max(fastest, race)),
	}
}

// For returns the target pace for a workout type, 0 for rest
func (p Paces) For(workoutType string) float64 {
	switch workoutType {
	case TypeEasy:
		return p.Easy
	case TypeRecovery:
		return p.Recovery
	case TypeLong:
		return p.Long
	case TypeTempo:
		return p.Tempo
	case TypeIntervals:
		return p.Intervals
	case TypeRace:
		return p.Race
	}
	return 0
}

// ceil2 rounds up to 0.01 min/km so rounding never produces a faster target
func ceil2(v float64) float64 {
	return math.Ceil(v*100-1e-9) / 100
}

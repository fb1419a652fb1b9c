package analysis

import (
	"fmt"
	"math"
	"time"

	"runcoach/internal/store"
	"runcoach/internal/units"
)

const (
	minPredictionRuns   = 5
	referencePaceWeeks  = 4
	baseConfidence      = 30
	confidencePerRun    = 3
	insufficientTarget  = "insufficient_data"
	predictionMinRunMsg = "Log at least 5 runs to unlock race predictions."
	predictionStaleMsg  = "Log a run to refresh race predictions from your recent training."
)

// PredictionTarget is a race distance with its pace policy.
// Race pace is the reference pace plus Offset, never faster than Floor.
type PredictionTarget struct {
	Name           string
	DistanceMeters float64
	Offset         float64 // min/km, negative is faster
	Floor          float64 // min/km, 0 for none
	ConfidenceCap  int
	Recommendation string
}

// PredictionTargets defines the standard prediction distances
var PredictionTargets = []PredictionTarget{
	{"5K", Distance5K, -0.3, 3.5, 85, "Add one interval session a week: 5-6 x 800m at goal pace with equal recovery."},
	{"10K", Distance10K, -0.2, 3.8, 90, "Build tempo endurance: 20-30 minutes at comfortably hard effort each week."},
	{"Half Marathon", DistanceHalfMara, 0.1, 0, 80, "Extend your long run toward 16-18 km and practice goal pace in the final third."},
	{"Marathon", DistanceMarathon, 0.35, 0, 75, "Prioritize weekly volume and long runs of 28-32 km with fueling practice."},
}

// RacePrediction represents a predicted race time
type RacePrediction struct {
	Distance         string  `json:"distance"`
	DistanceMeters   float64 `json:"distance_meters"`
	PredictedSeconds int     `json:"predicted_seconds"`
	PredictedTime    string  `json:"predicted_time"`
	PaceMinPerKm     float64 `json:"pace_min_per_km"`
	Confidence       int     `json:"confidence"` // 0-100
	Recommendation   string  `json:"recommendation"`
}

// RacePace applies the target's offset and floor to a reference training pace
func (t PredictionTarget) RacePace(reference float64) float64 {
	pace := reference + t.Offset
	if t.Offset < 0 {
		// Shorter races run faster than training pace, but never past the floor
		// and never slower than the reference itself
		pace = math.Min(reference, math.Max(pace, t.Floor))
	}
	return pace
}

func insufficientPrediction(reason, advice string) Result[[]RacePrediction] {
	r := Insufficient[[]RacePrediction](reason)
	placeholder := []RacePrediction{{
		Distance:       insufficientTarget,
		Confidence:     0,
		Recommendation: advice,
	}}
	r.Value = &placeholder
	return r
}

// PredictionConfidence grows linearly with run count up to the target's cap
func PredictionConfidence(runCount, limit int) int {
	return min(limit, baseConfidence+confidencePerRun*runCount)
}

// PredictRaceTimes extrapolates the weekly training pace of the last 4 calendar
// weeks (the current one included) to race times. With fewer than 5 runs, or no
// runs in that window, the result is insufficient data carrying a single
// zero-confidence placeholder.
func PredictRaceTimes(activities []store.Activity, now time.Time) Result[[]RacePrediction] {
	runs := RunningActivities(activities)
	if len(runs) < minPredictionRuns {
		return insufficientPrediction(fmt.Sprintf("need at least %d runs, have %d", minPredictionRuns, len(runs)), predictionMinRunMsg)
	}
	from := mondayOf(now).AddDate(0, 0, -7*(referencePaceWeeks-1))
	reference := mean(AggregateWeekly(runs).PacesSince(from))
	if reference <= 0 {
		return insufficientPrediction(fmt.Sprintf("no runs in the last %d weeks", referencePaceWeeks), predictionStaleMsg)
	}

	predictions := make([]RacePrediction, 0, len(PredictionTargets))
	for _, target := range PredictionTargets {
		pace := target.RacePace(reference)
		seconds := int(math.Round(pace * units.MetersToKm(target.DistanceMeters) * 60))
		predictions = append(predictions, RacePrediction{
			Distance:         target.Name,
			DistanceMeters:   target.DistanceMeters,
			PredictedSeconds: seconds,
			PredictedTime:    units.FormatClock(seconds),
			PaceMinPerKm:     units.Round2(pace),
			Confidence:       PredictionConfidence(len(runs), target.ConfidenceCap),
			Recommendation:   target.Recommendation,
		})
	}
	return Available(predictions)
}

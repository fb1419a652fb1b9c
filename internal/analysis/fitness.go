package analysis

import (
	"fmt"
	"math"

	"runcoach/internal/store"
	"runcoach/internal/units"
)

const (
	fitnessWindow       = 50
	minFitnessRuns      = 3
	trendThreshold      = 0.02
	CapacityCeiling     = 70.0
	CapacityFloor       = 20.0
	targetRangeLowStep  = 1.0
	targetRangeHighStep = 4.0
)

// Fitness trend classifications
const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendDeclining = "declining"
)

// capacityPoint anchors the pace to capacity curve. Capacity is linear between
// consecutive points so the curve is continuous at every tier boundary.
type capacityPoint struct {
	pace     float64 // min/mile
	capacity float64
	tier     string // tier ending at this pace
}

var capacityCurve = []capacityPoint{
	{pace: 5.0, capacity: CapacityCeiling, tier: "elite"},
	{pace: 6.5, capacity: 55, tier: "elite"},
	{pace: 7.5, capacity: 48, tier: "advanced-competitive"},
	{pace: 8.5, capacity: 42, tier: "competitive"},
	{pace: 10.0, capacity: 35, tier: "trained-recreational"},
	{pace: 17.5, capacity: CapacityFloor, tier: "recreational"},
}

// CapacityFromPace maps a best-effort pace in min/mile to an aerobic capacity estimate
func CapacityFromPace(minPerMile float64) float64 {
	if minPerMile <= 0 {
		return 0
	}
	first := capacityCurve[0]
	if minPerMile <= first.pace {
		return first.capacity
	}
	for i := 1; i < len(capacityCurve); i++ {
		lo, hi := capacityCurve[i-1], capacityCurve[i]
		if minPerMile <= hi.pace {
			frac := (minPerMile - lo.pace) / (hi.pace - lo.pace)
			return lo.capacity + frac*(hi.capacity-lo.capacity)
		}
	}
	return CapacityFloor
}

// CapacityTier names the pace tier a min/mile pace falls in
func CapacityTier(minPerMile float64) string {
	for i := 1; i < len(capacityCurve); i++ {
		if minPerMile < capacityCurve[i].pace {
			return capacityCurve[i].tier
		}
	}
	return capacityCurve[len(capacityCurve)-1].tier
}

type percentileStep struct {
	min        float64
	percentile int
}

var capacityPercentiles = []percentileStep{
	{60, 95}, {52, 85}, {45, 70}, {40, 55}, {35, 40}, {30, 25},
}

// CapacityPercentile approximates where a capacity estimate sits among runners.
// The table is a fixed lookup, not a population statistic.
func CapacityPercentile(capacity float64) int {
	for _, step := range capacityPercentiles {
		if capacity >= step.min {
			return step.percentile
		}
	}
	return 10
}

// FitnessSnapshot is a point-in-time aerobic capacity estimate
type FitnessSnapshot struct {
	AerobicCapacity float64      `json:"aerobic_capacity"`
	Tier            string       `json:"tier"`
	Trend           string       `json:"trend"`
	TrendChangePct  float64      `json:"trend_change_pct"` // negative is faster
	Percentile      int          `json:"percentile"`
	Comparison      string       `json:"comparison"`
	TargetLow       float64      `json:"target_low"`
	TargetHigh      float64      `json:"target_high"`
	BestEfforts     []BestEffort `json:"best_efforts"`
	ActivityCount   int          `json:"activity_count"`
}

// EstimateFitness estimates aerobic capacity from the most recent qualifying runs.
// The estimate is the maximum over per-band best efforts.
func EstimateFitness(activities []store.Activity) Result[FitnessSnapshot] {
	runs := lastN(Qualifying(activities), fitnessWindow)
	if len(runs) < minFitnessRuns {
		return Insufficient[FitnessSnapshot](fmt.Sprintf("need at least %d runs over 1 km, have %d", minFitnessRuns, len(runs)))
	}

	efforts := FindBestEfforts(runs)
	if len(efforts) == 0 {
		// No run at a standard distance; fall back to the fastest run overall
		fastest := runs[0]
		for _, a := range runs[1:] {
			if paceMinPerKm(a) < paceMinPerKm(fastest) {
				fastest = a
			}
		}
		efforts = []BestEffort{newBestEffort("other", fastest)}
	}

	var best BestEffort
	for i, e := range efforts {
		if i == 0 || e.Capacity > best.Capacity {
			best = e
		}
	}
	capacity := best.Capacity

	trend, change := paceTrend(runs)
	percentile := CapacityPercentile(capacity)

	return Available(FitnessSnapshot{
		AerobicCapacity: capacity,
		Tier:            CapacityTier(best.PaceMinPerMile),
		Trend:           trend,
		TrendChangePct:  units.Round1(change * 100),
		Percentile:      percentile,
		Comparison:      comparisonText(capacity, percentile),
		TargetLow:       units.Round1(math.Min(capacity+targetRangeLowStep, CapacityCeiling)),
		TargetHigh:      units.Round1(math.Min(capacity+targetRangeHighStep, CapacityCeiling)),
		BestEfforts:     efforts,
		ActivityCount:   len(runs),
	})
}

// paceTrend compares the mean pace of the recent half of runs against the older half
func paceTrend(runs []store.Activity) (string, float64) {
	half := len(runs) / 2
	if half == 0 {
		return TrendStable, 0
	}
	older := make([]float64, 0, half)
	recent := make([]float64, 0, len(runs)-half)
	for i, a := range runs {
		if i < half {
			older = append(older, paceMinPerKm(a))
		} else {
			recent = append(recent, paceMinPerKm(a))
		}
	}
	olderPace := mean(older)
	if olderPace == 0 {
		return TrendStable, 0
	}
	change := (mean(recent) - olderPace) / olderPace

	switch {
	case change < -trendThreshold:
		return TrendImproving, change
	case change > trendThreshold:
		return TrendDeclining, change
	default:
		return TrendStable, change
	}
}

func comparisonText(capacity float64, percentile int) string {
	switch {
	case percentile >= 85:
		return fmt.Sprintf("An aerobic capacity of %.1f puts you ahead of about %d%% of runners, competitive club level.", capacity, percentile)
	case percentile >= 55:
		return fmt.Sprintf("An aerobic capacity of %.1f is better than about %d%% of runners.", capacity, percentile)
	default:
		return fmt.Sprintf("An aerobic capacity of %.1f is ahead of about %d%% of runners. Consistent easy mileage will move it fastest.", capacity, percentile)
	}
}

package analysis

import (
	"sort"
	"time"

	"runcoach/internal/store"
	"runcoach/internal/units"
)

// DailyLoad represents training load for a single day
type DailyLoad struct {
	Date time.Time
	Load float64
}

// FitnessMetrics represents CTL/ATL/TSB for a day
type FitnessMetrics struct {
	Date time.Time `json:"date"`
	CTL  float64   `json:"ctl"` // Chronic Training Load (42-day EMA) - "Fitness"
	ATL  float64   `json:"atl"` // Acute Training Load (7-day EMA) - "Fatigue"
	TSB  float64   `json:"tsb"` // Training Stress Balance (CTL - ATL) - "Form"
}

// ActivityLoad applies the weekly load index to a single run
func ActivityLoad(a store.Activity) float64 {
	return TrainingLoad(units.MetersToKm(a.Distance), paceMinPerKm(a))
}

// DailyLoads converts running activities into per-activity loads on their local date
func DailyLoads(activities []store.Activity) []DailyLoad {
	runs := RunningActivities(activities)
	loads := make([]DailyLoad, 0, len(runs))
	for _, a := range runs {
		loads = append(loads, DailyLoad{Date: a.LocalDate(), Load: ActivityLoad(a)})
	}
	return loads
}

// CalculateFitnessTrend computes CTL/ATL/TSB from daily loads, filling rest days up to end.
// A zero end stops at the last load.
func CalculateFitnessTrend(dailyLoads []DailyLoad, end time.Time) []FitnessMetrics {
	if len(dailyLoads) == 0 {
		return nil
	}

	sorted := make([]DailyLoad, len(dailyLoads))
	copy(sorted, dailyLoads)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	// EMA decay constants
	ctlDecay := 2.0 / (42.0 + 1.0)
	atlDecay := 2.0 / (7.0 + 1.0)

	loadMap := make(map[string]float64)
	for _, dl := range sorted {
		loadMap[dl.Date.Format("2006-01-02")] += dl.Load
	}

	startDate := truncateDay(sorted[0].Date)
	endDate := truncateDay(sorted[len(sorted)-1].Date)
	if !end.IsZero() && truncateDay(end).After(endDate) {
		endDate = truncateDay(end)
	}

	var metrics []FitnessMetrics
	var ctl, atl float64
	for d := startDate; !d.After(endDate); d = d.AddDate(0, 0, 1) {
		load := loadMap[d.Format("2006-01-02")]
		ctl = ctl + ctlDecay*(load-ctl)
		atl = atl + atlDecay*(load-atl)
		metrics = append(metrics, FitnessMetrics{Date: d, CTL: ctl, ATL: atl, TSB: ctl - atl})
	}

	return metrics
}

// CurrentForm returns the CTL/ATL/TSB values as of end
func CurrentForm(activities []store.Activity, end time.Time) (FitnessMetrics, bool) {
	metrics := CalculateFitnessTrend(DailyLoads(activities), end)
	if len(metrics) == 0 {
		return FitnessMetrics{}, false
	}
	return metrics[len(metrics)-1], true
}

// FormDescription returns a human-readable description of TSB
func FormDescription(tsb float64) string {
	switch {
	case tsb > 25:
		return "Very fresh (possibly detrained)"
	case tsb > 10:
		return "Fresh and ready to race"
	case tsb > 0:
		return "Neutral - good for training"
	case tsb > -10:
		return "Slightly fatigued"
	case tsb > -25:
		return "Tired but building fitness"
	default:
		return "Very fatigued - rest needed"
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

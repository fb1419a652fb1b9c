package analysis

import (
	"sort"

	"runcoach/internal/store"
	"runcoach/internal/units"
)

// RunningTypes are the sport types that count toward running metrics
var RunningTypes = map[string]bool{
	"Run":        true,
	"TrailRun":   true,
	"VirtualRun": true,
}

// IsRun reports whether an activity is a running variant with usable data
func IsRun(a store.Activity) bool {
	return RunningTypes[a.Type] && a.Distance >= 0 && a.MovingTime >= 0
}

// RunningActivities returns the running activities sorted oldest first.
// The input slice is not modified.
func RunningActivities(activities []store.Activity) []store.Activity {
	runs := make([]store.Activity, 0, len(activities))
	for _, a := range activities {
		if IsRun(a) {
			runs = append(runs, a)
		}
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].StartDate.Equal(runs[j].StartDate) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].StartDate.Before(runs[j].StartDate)
	})
	return runs
}

// Qualifying returns runs longer than 1 km with a positive moving time, oldest first
func Qualifying(activities []store.Activity) []store.Activity {
	var out []store.Activity
	for _, a := range RunningActivities(activities) {
		if a.Distance > 1000 && a.MovingTime > 0 {
			out = append(out, a)
		}
	}
	return out
}

// lastN returns the final n elements
func lastN(acts []store.Activity, n int) []store.Activity {
	if len(acts) <= n {
		return acts
	}
	return acts[len(acts)-n:]
}

// paceMinPerKm returns an activity's pace, or 0 when undefined
func paceMinPerKm(a store.Activity) float64 {
	return units.PaceMinPerKm(a.Distance, a.MovingTime)
}

// speed returns average speed in m/s, derived from distance and time when not reported
func speed(a store.Activity) float64 {
	if a.AverageSpeed > 0 {
		return a.AverageSpeed
	}
	if a.MovingTime <= 0 {
		return 0
	}
	return a.Distance / float64(a.MovingTime)
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

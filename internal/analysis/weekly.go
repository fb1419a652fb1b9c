package analysis

import (
	"math"
	"time"

	"runcoach/internal/store"
	"runcoach/internal/units"
)

// WeeklyMetrics is the aggregate of one ISO week of running
type WeeklyMetrics struct {
	Year            int       `json:"year"`
	Week            int       `json:"week"`
	Start           time.Time `json:"start"` // Monday
	DistanceKm      float64   `json:"distance_km"`
	MovingSeconds   int       `json:"moving_seconds"`
	AvgPaceMinPerKm float64   `json:"avg_pace_min_per_km"` // 0 for an empty week
	TrainingLoad    float64   `json:"training_load"`
	ElevationM      float64   `json:"elevation_m"`
	Count           int       `json:"count"`
}

// Aggregate holds contiguous weekly buckets, oldest first, plus flat series
type Aggregate struct {
	Weeks     []WeeklyMetrics `json:"weeks"`
	Mileage   []float64       `json:"mileage_km"`
	Paces     []float64       `json:"paces_min_per_km"`
	Loads     []float64       `json:"loads"`
	Elevation []float64       `json:"elevation_m"`
	HRZones   []int           `json:"hr_zones"`
}

// HR zone upper bounds in bpm; anything at or above the last bound is zone 5
var hrZoneBounds = []float64{114, 133, 152, 171}

// HRZone classifies an average heart rate into zones 1-5
func HRZone(bpm float64) int {
	for i, bound := range hrZoneBounds {
		if bpm < bound {
			return i + 1
		}
	}
	return len(hrZoneBounds) + 1
}

// IntensityFactor weights a kilometer by how fast it was run.
// Undefined paces get the minimum weight.
func IntensityFactor(paceMinPerKm float64) float64 {
	if paceMinPerKm <= 0 {
		return 0.5
	}
	return math.Max(0.5, 6-paceMinPerKm)
}

// TrainingLoad is distance weighted by pace intensity
func TrainingLoad(distanceKm, paceMinPerKm float64) float64 {
	if distanceKm <= 0 {
		return 0
	}
	return distanceKm * IntensityFactor(paceMinPerKm)
}

// AggregateWeekly groups running activities into ISO weeks of the local start date.
// Weeks without activity between the first and last run are present as empty buckets.
func AggregateWeekly(activities []store.Activity) Aggregate {
	runs := RunningActivities(activities)
	agg := Aggregate{
		Weeks:     []WeeklyMetrics{},
		Mileage:   []float64{},
		Paces:     []float64{},
		Loads:     []float64{},
		Elevation: []float64{},
		HRZones:   []int{},
	}
	if len(runs) == 0 {
		return agg
	}

	type bucket struct {
		meters    float64
		seconds   int
		elevation float64
		count     int
	}
	buckets := make(map[time.Time]*bucket)

	first := mondayOf(runs[0].LocalDate())
	last := first
	for _, a := range runs {
		monday := mondayOf(a.LocalDate())
		if monday.Before(first) {
			first = monday
		}
		if monday.After(last) {
			last = monday
		}
		b := buckets[monday]
		if b == nil {
			b = &bucket{}
			buckets[monday] = b
		}
		b.meters += a.Distance
		b.seconds += a.MovingTime
		b.elevation += a.TotalElevationGain
		b.count++

		if a.AverageHeartrate != nil && *a.AverageHeartrate > 0 {
			agg.HRZones = append(agg.HRZones, HRZone(*a.AverageHeartrate))
		}
	}

	for monday := first; !monday.After(last); monday = monday.AddDate(0, 0, 7) {
		year, week := monday.ISOWeek()
		wm := WeeklyMetrics{Year: year, Week: week, Start: monday}
		if b := buckets[monday]; b != nil {
			wm.DistanceKm = units.MetersToKm(b.meters)
			wm.MovingSeconds = b.seconds
			wm.AvgPaceMinPerKm = units.PaceMinPerKm(b.meters, b.seconds)
			wm.TrainingLoad = TrainingLoad(wm.DistanceKm, wm.AvgPaceMinPerKm)
			wm.ElevationM = b.elevation
			wm.Count = b.count
		}

		agg.Weeks = append(agg.Weeks, wm)
		agg.Mileage = append(agg.Mileage, wm.DistanceKm)
		agg.Paces = append(agg.Paces, wm.AvgPaceMinPerKm)
		agg.Loads = append(agg.Loads, wm.TrainingLoad)
		agg.Elevation = append(agg.Elevation, wm.ElevationM)
	}

	return agg
}

// RecentPaces returns up to n of the most recent non-zero weekly paces, oldest first
func (a Aggregate) RecentPaces(n int) []float64 {
	var out []float64
	for i := len(a.Paces) - 1; i >= 0 && len(out) < n; i-- {
		if a.Paces[i] > 0 {
			out = append(out, a.Paces[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// PacesSince returns the non-zero weekly paces of weeks starting on or after from, oldest first
func (a Aggregate) PacesSince(from time.Time) []float64 {
	var out []float64
	for i, w := range a.Weeks {
		if !w.Start.Before(from) && a.Paces[i] > 0 {
			out = append(out, a.Paces[i])
		}
	}
	return out
}

// AveragePace is the mean of all non-zero weekly paces
func (a Aggregate) AveragePace() float64 {
	return mean(a.RecentPaces(len(a.Paces)))
}

// mondayOf returns the Monday starting the ISO week containing d
func mondayOf(d time.Time) time.Time {
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
	return d.AddDate(0, 0, -offset)
}

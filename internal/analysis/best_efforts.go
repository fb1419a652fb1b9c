package analysis

import (
	"time"

	"runcoach/internal/store"
	"runcoach/internal/units"
)

// Standard race distances in meters
const (
	Distance5K       = 5000
	Distance10K      = 10000
	DistanceHalfMara = 21097.5
	DistanceMarathon = 42195
)

// EffortBand is a distance window an activity must fall in to count as an effort at that distance
type EffortBand struct {
	Name string
	Min  float64 // meters, inclusive
	Max  float64 // meters, inclusive
}

// Contains reports whether a distance falls within the band
func (b EffortBand) Contains(meters float64) bool {
	return meters >= b.Min && meters <= b.Max
}

func toleranceBand(name string, meters, tolerance float64) EffortBand {
	return EffortBand{Name: name, Min: meters * (1 - tolerance), Max: meters * (1 + tolerance)}
}

// EffortBands are the canonical distance bands used for best-effort selection
var EffortBands = []EffortBand{
	{Name: "3-4k", Min: 3000, Max: 4000},
	toleranceBand("5k", Distance5K, 0.10),
	{Name: "6-8k", Min: 6000, Max: 8000},
	toleranceBand("10k", Distance10K, 0.10),
	toleranceBand("half", DistanceHalfMara, 0.05),
	toleranceBand("marathon", DistanceMarathon, 0.05),
}

// BestEffort is the fastest whole activity within a distance band
type BestEffort struct {
	Band           string    `json:"band"`
	ActivityID     int64     `json:"activity_id"`
	DistanceMeters float64   `json:"distance_meters"`
	MovingTime     int       `json:"moving_time"`
	PaceMinPerMile float64   `json:"pace_min_per_mile"`
	Capacity       float64   `json:"capacity"`
	Date           time.Time `json:"date"`
}

// FindBestEfforts selects the fastest qualifying activity in each band.
// Bands with no matching activity are omitted; ties go to the earlier activity.
func FindBestEfforts(activities []store.Activity) []BestEffort {
	runs := RunningActivities(activities)
	var efforts []BestEffort
	for _, band := range EffortBands {
		var best *store.Activity
		var bestPace float64
		for i := range runs {
			a := &runs[i]
			if a.MovingTime <= 0 || !band.Contains(a.Distance) {
				continue
			}
			pace := paceMinPerKm(*a)
			if best == nil || pace < bestPace {
				best = a
				bestPace = pace
			}
		}
		if best == nil {
			continue
		}

		efforts = append(efforts, newBestEffort(band.Name, *best))
	}
	return efforts
}

func newBestEffort(band string, a store.Activity) BestEffort {
	perMile := units.PaceMinPerMile(a.Distance, a.MovingTime)
	return BestEffort{
		Band:           band,
		ActivityID:     a.ID,
		DistanceMeters: a.Distance,
		MovingTime:     a.MovingTime,
		PaceMinPerMile: units.Round2(perMile),
		Capacity:       units.Round1(CapacityFromPace(perMile)),
		Date:           a.LocalDate(),
	}
}

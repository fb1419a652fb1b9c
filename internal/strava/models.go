package strava

import (
	"time"

	"runcoach/internal/store"
)

// Activity represents a Strava activity from the API
type Activity struct {
	ID                 int64     `json:"id"`
	Athlete            Athlete   `json:"athlete"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	SportType          string    `json:"sport_type"`
	StartDate          time.Time `json:"start_date"`
	StartDateLocal     time.Time `json:"start_date_local"`
	Timezone           string    `json:"timezone"`
	Distance           float64   `json:"distance"`             // meters
	MovingTime         int       `json:"moving_time"`          // seconds
	ElapsedTime        int       `json:"elapsed_time"`         // seconds
	TotalElevationGain float64   `json:"total_elevation_gain"` // meters
	AverageSpeed       float64   `json:"average_speed"`        // m/s
	MaxSpeed           float64   `json:"max_speed"`            // m/s
	AverageHeartrate   float64   `json:"average_heartrate"`    // bpm
	MaxHeartrate       float64   `json:"max_heartrate"`        // bpm
	AverageCadence     float64   `json:"average_cadence"`      // strides per minute for runs
	AverageWatts       float64   `json:"average_watts"`
	PerceivedExertion  float64   `json:"perceived_exertion"` // 1-10, only when the athlete entered it
	HasHeartrate       bool      `json:"has_heartrate"`
}

// Athlete represents a Strava athlete (minimal info in activity response)
type Athlete struct {
	ID int64 `json:"id"`
}

// ToStore converts an API activity to the stored form for userID.
// Strava reports zero for missing optional metrics; those become nil.
func (a Activity) ToStore(userID int64) store.Activity {
	sport := a.SportType
	if sport == "" {
		sport = a.Type
	}
	out := store.Activity{
		ID:                 a.ID,
		UserID:             userID,
		Name:               a.Name,
		Type:               sport,
		StartDate:          a.StartDate.UTC(),
		StartDateLocal:     a.StartDateLocal,
		Distance:           a.Distance,
		MovingTime:         a.MovingTime,
		ElapsedTime:        a.ElapsedTime,
		TotalElevationGain: a.TotalElevationGain,
		AverageSpeed:       a.AverageSpeed,
		MaxSpeed:           a.MaxSpeed,
		AverageHeartrate:   positive(a.AverageHeartrate),
		MaxHeartrate:       positive(a.MaxHeartrate),
		AverageCadence:     positive(a.AverageCadence),
		AveragePower:       positive(a.AverageWatts),
	}
	if !a.HasHeartrate {
		out.AverageHeartrate, out.MaxHeartrate = nil, nil
	}
	if a.PerceivedExertion > 0 {
		rpe := int(a.PerceivedExertion + 0.5)
		out.PerceivedEffort = &rpe
	}
	return out
}

func positive(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}

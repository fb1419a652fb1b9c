package enrich

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"runcoach/internal/llm"
	"runcoach/internal/plan"
	"runcoach/internal/store"
	"runcoach/internal/units"
)

// Validation tolerances
const (
	distanceTolerance = 0.10 // fraction of the skeleton distance
	paceTolerance     = 0.25 // min/km either side of the skeleton pace
)

// ErrInvalidResponse wraps every reason a model response is rejected
var ErrInvalidResponse = errors.New("invalid enrichment response")

const dateLayout = "2006-01-02"

type dayPayload struct {
	Date         string  `json:"date"`
	Type         string  `json:"type"`
	DistanceKm   float64 `json:"distance_km"`
	PaceMinPerKm float64 `json:"pace_min_per_km"`
	Description  string  `json:"description"`
}

type weekResponse struct {
	Summary string       `json:"summary"`
	Days    []dayPayload `json:"days"`
}

// validateWeek checks a raw model response against the skeleton week.
// It returns the scheduled days with descriptions and paces taken from the response.
// Workout type and distance always stay as scheduled.
func validateWeek(raw string, week store.PlanWeek, fastestPace float64) (string, []store.PlanDay, error) {
	var resp weekResponse
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &resp); err != nil {
		return "", nil, fmt.Errorf("%w: decoding: %v", ErrInvalidResponse, err)
	}

	byDate := make(map[string]dayPayload, len(resp.Days))
	var problems []string
	for _, d := range resp.Days {
		if _, dup := byDate[d.Date]; dup {
			problems = append(problems, fmt.Sprintf("%s: listed twice", d.Date))
			continue
		}
		byDate[d.Date] = d
	}

	var out []store.PlanDay
	for _, day := range week.Days {
		if day.Type == plan.TypeRest {
			continue
		}
		date := day.Date.Format(dateLayout)
		got, ok := byDate[date]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: missing", date))
			continue
		}
		if got.Type != day.Type {
			problems = append(problems, fmt.Sprintf("%s: type %q, want %q", date, got.Type, day.Type))
		}
		if day.DistanceKm > 0 && math.Abs(got.DistanceKm-day.DistanceKm) > day.DistanceKm*distanceTolerance+1e-9 {
			problems = append(problems, fmt.Sprintf("%s: distance %.1f km, want %.1f ±10%%", date, got.DistanceKm, day.DistanceKm))
		}
		if fastestPace > 0 && got.PaceMinPerKm < fastestPace {
			problems = append(problems, fmt.Sprintf("%s: pace %.2f faster than fastest %.2f", date, got.PaceMinPerKm, fastestPace))
		}
		if math.Abs(got.PaceMinPerKm-day.PaceMinPerKm) > paceTolerance+1e-9 {
			problems = append(problems, fmt.Sprintf("%s: pace %.2f too far from %.2f", date, got.PaceMinPerKm, day.PaceMinPerKm))
		}
		desc := strings.TrimSpace(got.Description)
		if desc == "" {
			problems = append(problems, fmt.Sprintf("%s: empty description", date))
		}

		day.Description = desc
		day.PaceMinPerKm = units.Round2(got.PaceMinPerKm)
		out = append(out, day)
	}

	if len(problems) > 0 {
		return "", nil, fmt.Errorf("%w: %s", ErrInvalidResponse, strings.Join(problems, "; "))
	}
	return strings.TrimSpace(resp.Summary), out, nil
}

package enrich

import (
	"encoding/json"
	"fmt"
	"strings"

	"runcoach/internal/llm"
	"runcoach/internal/plan"
	"runcoach/internal/store"
	"runcoach/internal/units"
)

// weekMarker precedes the skeleton JSON in the user prompt
const weekMarker = "WEEK JSON:\n"

const systemPrompt = `You are an experienced running coach writing workout notes for a training plan.
You receive one week of an already scheduled plan. Keep every workout's date, type and distance.
You may adjust a pace by at most 0.25 min/km, never faster than the athlete's fastest pace.
Reply with a single JSON object and nothing else.`

type promptWeek struct {
	Number   int          `json:"week"`
	Phase    string       `json:"phase"`
	Recovery bool         `json:"recovery_week"`
	TotalKm  float64      `json:"total_km"`
	Days     []dayPayload `json:"days"`
}

// weekMessages builds the chat messages for enriching one week
func weekMessages(p *store.TrainingPlan, w store.PlanWeek) ([]llm.Message, error) {
	pw := promptWeek{
		Number:   w.Number,
		Phase:    w.Phase,
		Recovery: w.IsRecovery,
		TotalKm:  w.TotalKm,
	}
	for _, d := range w.Days {
		if d.Type == plan.TypeRest {
			continue
		}
		pw.Days = append(pw.Days, dayPayload{
			Date:         d.Date.Format(dateLayout),
			Type:         d.Type,
			DistanceKm:   d.DistanceKm,
			PaceMinPerKm: d.PaceMinPerKm,
			Description:  d.Description,
		})
	}

	weekJSON, err := json.Marshal(pw)
	if err != nil {
		return nil, fmt.Errorf("encoding week: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Athlete goal: %s", plan.GoalType(p.GoalType).Label())
	if p.TargetTimeSeconds != nil {
		fmt.Fprintf(&b, " in %s", units.FormatClock(*p.TargetTimeSeconds))
	}
	if p.RaceDate != nil {
		fmt.Fprintf(&b, " on %s", p.RaceDate.Format(dateLayout))
	}
	fmt.Fprintf(&b, "\nExperience: %s. Terrain: %s.\n", p.Experience, p.Terrain)
	fmt.Fprintf(&b, "Fastest demonstrated pace: %s/km.\n", units.FormatPaceValue(p.FastestPace))
	fmt.Fprintf(&b, "This is week %d of %d.\n", w.Number, p.TotalWeeks)
	if p.CoachNotes != "" {
		fmt.Fprintf(&b, "Coach notes: %s\n", p.CoachNotes)
	}
	b.WriteString(`
Return {"summary": "<one or two sentences about the week>", "days": [{"date", "type", "distance_km", "pace_min_per_km", "description"}]}
with one entry for every workout below. Descriptions should say how the session should feel and how to structure it.

`)
	b.WriteString(weekMarker)
	b.Write(weekJSON)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: b.String()},
	}, nil
}

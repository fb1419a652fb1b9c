package api

import (
	"fmt"
	"strings"
	"time"

	"runcoach/internal/plan"
)

const dateLayout = "2006-01-02"

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// GoalRequest is the wire form of a race goal. Dates are YYYY-MM-DD.
type GoalRequest struct {
	Type              string `json:"type"`
	Name              string `json:"name,omitempty"`
	TargetTimeSeconds int    `json:"target_time_seconds,omitempty"`
	RaceDate          string `json:"race_date,omitempty"`
	Terrain           string `json:"terrain,omitempty"`
}

// Goal converts the request into a plan goal
func (g GoalRequest) Goal() (plan.Goal, error) {
	out := plan.Goal{
		Type:       plan.GoalType(g.Type),
		Name:       g.Name,
		TargetTime: time.Duration(g.TargetTimeSeconds) * time.Second,
		Terrain:    plan.Terrain(g.Terrain),
	}
	if g.RaceDate != "" {
		d, err := time.Parse(dateLayout, g.RaceDate)
		if err != nil {
			return out, fmt.Errorf("%w: race_date must be YYYY-MM-DD", plan.ErrInvalidGoal)
		}
		out.RaceDate = &d
	}
	return out, nil
}

// PlanRequest is the payload for POST /v1/users/{userID}/plans.
type PlanRequest struct {
	Goal             GoalRequest  `json:"goal"`
	Secondary        *GoalRequest `json:"secondary,omitempty"`
	Experience       string       `json:"experience,omitempty"`
	TrainingDays     []string     `json:"training_days,omitempty"` // "mon".."sun"
	IncludeSpeedwork bool         `json:"include_speedwork"`
	IncludeLongRun   bool         `json:"include_long_run"`
	StartDate        string       `json:"start_date,omitempty"`
}

// Request converts the payload into a generation request
func (p PlanRequest) Request() (plan.Request, error) {
	goal, err := p.Goal.Goal()
	if err != nil {
		return plan.Request{}, err
	}
	req := plan.Request{
		Goal:             goal,
		Experience:       plan.Experience(p.Experience),
		IncludeSpeedwork: p.IncludeSpeedwork,
		IncludeLongRun:   p.IncludeLongRun,
	}
	if p.Secondary != nil {
		sec, err := p.Secondary.Goal()
		if err != nil {
			return plan.Request{}, fmt.Errorf("secondary goal: %w", err)
		}
		req.Secondary = &sec
	}
	for _, d := range p.TrainingDays {
		wd, ok := parseWeekday(d)
		if !ok {
			return plan.Request{}, fmt.Errorf("%w: unknown training day %q", plan.ErrInvalidGoal, d)
		}
		req.TrainingDays = append(req.TrainingDays, wd)
	}
	if p.StartDate != "" {
		d, err := time.Parse(dateLayout, p.StartDate)
		if err != nil {
			return plan.Request{}, fmt.Errorf("%w: start_date must be YYYY-MM-DD", plan.ErrInvalidGoal)
		}
		req.StartDate = d
	}
	return req, nil
}

// ConflictsRequest is the payload for POST /v1/plans/conflicts.
type ConflictsRequest struct {
	Primary   GoalRequest  `json:"primary"`
	Secondary *GoalRequest `json:"secondary,omitempty"`
}

// parseWeekday accepts full or three-letter day names in any case
func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return 0, false
	}
	wd, ok := weekdays[s[:3]]
	return wd, ok
}

package plan

import (
	"fmt"
	"math"
)

// Severity grades a conflict between two goals
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Mode is how two goals are trained for
type Mode string

const (
	ModeSingle     Mode = "single"
	ModeDualFocus  Mode = "dual-focus"
	ModeSequential Mode = "sequential"
)

// Conflict thresholds
const (
	sameBlockDays        = 14
	marathonRecoveryDays = 28
	sequentialGapDays    = 56
	distanceRatioLimit   = 4.0
)

// Conflict is one advisory finding about a pair of goals
type Conflict struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// ConflictReport is the advisory result of comparing two goals
type ConflictReport struct {
	Conflicts      []Conflict `json:"conflicts"`
	Mode           Mode       `json:"mode"`
	GapDays        *int       `json:"gap_days,omitempty"`
	Recommendation string     `json:"recommendation"`
}

// HasErrors reports whether any conflict is error severity
func (r ConflictReport) HasErrors() bool {
	for _, c := range r.Conflicts {
		if c.Severity == SeverityError {
			return true
		}
	}
	return false
}

// CheckConflicts compares race dates, distances and terrain of two goals.
// The result is advisory and never blocks generation.
func CheckConflicts(primary Goal, secondary *Goal) ConflictReport {
	report := ConflictReport{Conflicts: []Conflict{}, Mode: ModeSingle}
	if secondary == nil {
		report.Recommendation = "Single goal: the plan focuses entirely on " + primary.Type.Label() + "."
		return report
	}

	add := func(sev Severity, code, format string, args ...any) {
		report.Conflicts = append(report.Conflicts, Conflict{Severity: sev, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	a, b := primary.Type, secondary.Type
	if primary.RaceDate != nil && secondary.RaceDate != nil {
		gap := int(math.Abs(dateOf(*primary.RaceDate).Sub(dateOf(*secondary.RaceDate)).Hours() / 24))
		report.GapDays = &gap

		switch {
		case gap == 0:
			add(SeverityError, "same_date", "Both races are on %s.", primary.RaceDate.Format(dateLayout))
		case gap < sameBlockDays && atLeast(a, GoalHalf) && atLeast(b, GoalHalf):
			add(SeverityError, "insufficient_recovery", "%s and %s are only %d days apart; there is no time to recover between them.", a.Label(), b.Label(), gap)
		case gap < marathonRecoveryDays && (atLeast(a, GoalMarathon) || atLeast(b, GoalMarathon)):
			add(SeverityWarning, "tight_recovery", "Only %d days separate the races; recovery from a marathon or longer usually takes 3-4 weeks.", gap)
		}
	}

	da, db := a.DistanceKm(), b.DistanceKm()
	if math.Max(da, db)/math.Min(da, db) >= distanceRatioLimit {
		add(SeverityInfo, "distance_mismatch", "%s and %s call for very different training; expect compromises in both.", a.Label(), b.Label())
	}

	ta, tb := primary.terrain(), secondary.terrain()
	if ta != tb {
		if (ta == Trail || tb == Trail) && (a.IsUltra() || b.IsUltra()) {
			other := ta
			if ta == Trail {
				other = tb
			}
			add(SeverityWarning, "terrain_mismatch", "Trail ultra preparation needs hill and terrain work that a %s race will not reward.", other)
		} else {
			add(SeverityInfo, "terrain_mismatch", "Races are on %s and %s; include some sessions on each surface.", ta, tb)
		}
	}

	switch {
	case report.HasErrors() || (report.GapDays != nil && *report.GapDays >= sequentialGapDays):
		report.Mode = ModeSequential
		report.Recommendation = fmt.Sprintf("Train sequentially: build for %s first, then start a new block for %s.", primary.Type.Label(), secondary.Type.Label())
	default:
		report.Mode = ModeDualFocus
		report.Recommendation = fmt.Sprintf("Dual focus: the plan targets %s and keeps %s-specific work in the mix.", primary.Type.Label(), secondary.Type.Label())
	}
	return report
}

var goalOrder = map[GoalType]int{
	Goal5K: 1, Goal10K: 2, GoalHalf: 3, GoalMarathon: 4, GoalUltra50K: 5, GoalUltra100K: 6,
}

// atLeast reports whether g is as long as or longer than ref
func atLeast(g, ref GoalType) bool {
	return goalOrder[g] >= goalOrder[ref]
}

// Package coach assembles the bounded athlete snapshot handed to the chat model.
package coach

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"runcoach/internal/analysis"
	"runcoach/internal/plan"
	"runcoach/internal/store"
	"runcoach/internal/units"
)

// Current activity delimiters
const (
	CurrentActivityStart = "=== CURRENT ACTIVITY ==="
	CurrentActivityEnd   = "=== END CURRENT ACTIVITY ==="
)

const (
	sectionSep      = "\n\n"
	recentRunsShown = 5
)

// Input is everything the assembler may draw on. Nil pointers and results
// that are not available are left out of the context.
type Input struct {
	Now         time.Time
	Units       units.Units
	Profile     *store.AthleteProfile
	Recent      []store.Activity
	Plan        *store.TrainingPlan
	Adherence   *plan.AdherenceStats
	Upcoming    []store.PlanDay
	Score       analysis.Result[analysis.RunnerScore]
	Fitness     analysis.Result[analysis.FitnessSnapshot]
	Efficiency  analysis.Result[analysis.Efficiency]
	Predictions analysis.Result[[]analysis.RacePrediction]
	Form        *analysis.FitnessMetrics
	Current     *store.Activity
}

// Assemble renders the context within budget characters. The current activity is
// reserved first and appended last; other sections are added in priority order and
// dropped whole when they do not fit.
func Assemble(in Input, budget int) string {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	current := ""
	if in.Current != nil {
		current = truncate(currentActivitySection(in), budget)
	}
	remaining := budget - runeLen(current)
	if current != "" {
		remaining -= len(sectionSep)
	}

	sections := []string{
		athleteSection(in),
		planSection(in),
		scoreSection(in),
		fitnessSection(in),
		efficiencySection(in),
		predictionsSection(in),
		formSection(in),
	}

	var parts []string
	for _, s := range sections {
		if s == "" {
			continue
		}
		cost := runeLen(s)
		if len(parts) > 0 {
			cost += len(sectionSep)
		}
		if cost > remaining {
			continue
		}
		parts = append(parts, s)
		remaining -= cost
	}

	if current != "" {
		parts = append(parts, current)
	}
	return strings.Join(parts, sectionSep)
}

func athleteSection(in Input) string {
	runs := analysis.RunningActivities(in.Recent)
	if in.Profile == nil && len(runs) == 0 {
		return ""
	}
	u := in.Units

	var b strings.Builder
	b.WriteString("## Athlete")
	if p := in.Profile; p != nil {
		fmt.Fprintf(&b, "\nBaseline: %s/week over %.1f runs/week, longest recent run %s.",
			u.FormatDistanceKm(p.WeeklyKm), p.RunsPerWeek, u.FormatDistanceKm(p.LongestRunKm))
		fmt.Fprintf(&b, "\nTypical pace %s, fastest %s, easy %s to %s.",
			u.FormatPace(p.AvgPaceMinPerKm), u.FormatPace(p.FastestPaceMinPerKm),
			u.FormatPace(p.EasyPaceLow), u.FormatPace(p.EasyPaceHigh))
		if p.UsedDefaults {
			b.WriteString("\nFew recent runs are logged; the baseline uses generic defaults.")
		}
	}

	if len(runs) > 0 {
		b.WriteString("\nRecent runs:")
		shown := 0
		for i := len(runs) - 1; i >= 0 && shown < recentRunsShown; i-- {
			fmt.Fprintf(&b, "\n- %s", activityLine(in, runs[i]))
			shown++
		}
	}
	return b.String()
}

func activityLine(in Input, a store.Activity) string {
	u := in.Units
	line := fmt.Sprintf("%s (%s): %s, %s in %s (%s)",
		a.LocalDate().Format("Mon Jan 2"), humanize.RelTime(a.StartDate, in.Now, "ago", "from now"),
		a.Name, u.FormatDistance(a.Distance), units.FormatClock(a.MovingTime),
		u.FormatPace(units.PaceMinPerKm(a.Distance, a.MovingTime)))
	if a.AverageHeartrate != nil {
		line += fmt.Sprintf(", avg HR %.0f", *a.AverageHeartrate)
	}
	return line
}

func planSection(in Input) string {
	p := in.Plan
	if p == nil {
		return ""
	}
	u := in.Units

	var b strings.Builder
	fmt.Fprintf(&b, "## Training plan: %s", p.Name)
	fmt.Fprintf(&b, "\nGoal: %s", plan.GoalType(p.GoalType).Label())
	if p.TargetTimeSeconds != nil {
		fmt.Fprintf(&b, " in %s", units.FormatClock(*p.TargetTimeSeconds))
	}
	if p.RaceDate != nil {
		fmt.Fprintf(&b, ", race %s (%s)", p.RaceDate.Format("Mon Jan 2 2006"), humanize.RelTime(*p.RaceDate, in.Now, "ago", "from now"))
	}

	fmt.Fprintf(&b, "\nWeek %d of %d", min(p.CurrentWeek, p.TotalWeeks), p.TotalWeeks)
	if i := p.CurrentWeek - 1; i >= 0 && i < len(p.Weeks) {
		w := p.Weeks[i]
		fmt.Fprintf(&b, ", %s phase, %s planned", w.Phase, u.FormatDistanceKm(w.TotalKm))
		if w.IsRecovery {
			b.WriteString(" (recovery week)")
		}
	}
	b.WriteString(".")

	if a := in.Adherence; a != nil && a.Due > 0 {
		fmt.Fprintf(&b, "\nAdherence: %.0f%% (%d of %d due workouts completed, %d skipped, %d missed).",
			a.Rate*100, a.Completed, a.Due, a.Skipped, a.Missed)
	}

	if len(in.Upcoming) > 0 {
		b.WriteString("\nNext workouts:")
		for _, d := range in.Upcoming {
			fmt.Fprintf(&b, "\n- %s: %s %s at %s", d.Date.Format("Mon Jan 2"), d.Type,
				u.FormatDistanceKm(d.DistanceKm), u.FormatPace(d.PaceMinPerKm))
		}
	}
	return b.String()
}

func scoreSection(in Input) string {
	if !in.Score.OK() {
		return ""
	}
	s := in.Score.Value
	c := s.Components
	text := fmt.Sprintf("## Runner score\n%d/100 (%s, about top %d%%). Consistency %d, performance %d, volume %d, improvement %d (each out of 25).",
		s.Total, s.Grade, 100-s.Percentile, c.Consistency, c.Performance, c.Volume, c.Improvement)
	if len(s.Badges) > 0 {
		text += "\nBadges: " + strings.Join(s.Badges, ", ") + "."
	}
	return text
}

func fitnessSection(in Input) string {
	if !in.Fitness.OK() {
		return ""
	}
	f := in.Fitness.Value
	return fmt.Sprintf("## Fitness\nAerobic capacity estimate %.1f (%s), trend %s. %s Target range %.0f-%.0f.",
		f.AerobicCapacity, f.Tier, f.Trend, f.Comparison, f.TargetLow, f.TargetHigh)
}

func efficiencySection(in Input) string {
	if !in.Efficiency.OK() {
		return ""
	}
	e := in.Efficiency.Value
	source := "estimated"
	if e.CadenceMeasured {
		source = "measured"
	}
	text := fmt.Sprintf("## Efficiency\nScore %.0f/100. Cadence %.0f spm (%s), stride %.2f m, pace consistency %.0f.",
		e.Score, e.Cadence, source, e.StrideLengthM, e.Consistency)
	if len(e.Recommendations) > 0 {
		text += "\n" + strings.Join(e.Recommendations, "\n")
	}
	return text
}

func predictionsSection(in Input) string {
	if !in.Predictions.OK() || len(*in.Predictions.Value) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Race predictions")
	for _, p := range *in.Predictions.Value {
		fmt.Fprintf(&b, "\n- %s: %s (%s, %d%% confidence)", p.Distance, p.PredictedTime, in.Units.FormatPace(p.PaceMinPerKm), p.Confidence)
	}
	return b.String()
}

func formSection(in Input) string {
	f := in.Form
	if f == nil {
		return ""
	}
	return fmt.Sprintf("## Training form\nFitness (CTL) %.0f, fatigue (ATL) %.0f, form (TSB) %.0f: %s.",
		f.CTL, f.ATL, f.TSB, analysis.FormDescription(f.TSB))
}

func currentActivitySection(in Input) string {
	a := *in.Current
	u := in.Units

	var b strings.Builder
	b.WriteString(CurrentActivityStart)
	b.WriteString("\nThe athlete is looking at this activity. \"This run\" refers to it.")
	fmt.Fprintf(&b, "\nName: %s (%s)", a.Name, a.Type)
	fmt.Fprintf(&b, "\nDate: %s (%s)", a.LocalDate().Format("Mon Jan 2 2006"), humanize.RelTime(a.StartDate, in.Now, "ago", "from now"))
	fmt.Fprintf(&b, "\nDistance: %s in %s, pace %s", u.FormatDistance(a.Distance), units.FormatClock(a.MovingTime),
		u.FormatPace(units.PaceMinPerKm(a.Distance, a.MovingTime)))
	if a.TotalElevationGain > 0 {
		fmt.Fprintf(&b, "\nElevation gain: %.0f m", a.TotalElevationGain)
	}
	if a.AverageHeartrate != nil {
		fmt.Fprintf(&b, "\nHeart rate: avg %.0f", *a.AverageHeartrate)
		if a.MaxHeartrate != nil {
			fmt.Fprintf(&b, ", max %.0f", *a.MaxHeartrate)
		}
	}
	if a.AverageCadence != nil {
		fmt.Fprintf(&b, "\nCadence: %.0f", *a.AverageCadence)
	}
	if a.PerceivedEffort != nil {
		fmt.Fprintf(&b, "\nPerceived effort: %d/10", *a.PerceivedEffort)
	}
	b.WriteString("\n")
	b.WriteString(CurrentActivityEnd)
	return b.String()
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// truncate keeps the closing delimiter when the current activity alone exceeds the budget
func truncate(s string, budget int) string {
	if runeLen(s) <= budget {
		return s
	}
	tail := "\n" + CurrentActivityEnd
	keep := budget - runeLen(tail)
	if keep <= 0 {
		return ""
	}
	return string([]rune(s)[:keep]) + tail
}

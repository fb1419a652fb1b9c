package analysis

import (
	"fmt"
	"math"
	"time"

	"runcoach/internal/store"
	"runcoach/internal/units"
)

const (
	scoreWindow        = 100
	weeksPerMonth      = 4.3
	minImprovementRuns = 10
	defaultImprovement = 15
	maxComponent       = 25
	newRunnerBadge     = "New Runner"
	scoreLookbackDays  = 30
	scoreWeekDeltaDays = 7
)

// ScoreComponents are the four 0-25 sub-scores
type ScoreComponents struct {
	Consistency int `json:"consistency"`
	Performance int `json:"performance"`
	Volume      int `json:"volume"`
	Improvement int `json:"improvement"`
}

// Sum adds the components without weighting
func (c ScoreComponents) Sum() int {
	return c.Consistency + c.Performance + c.Volume + c.Improvement
}

// RunnerScore is the composite 0-100 score
type RunnerScore struct {
	Total             int             `json:"total"`
	Grade             string          `json:"grade"`
	Percentile        int             `json:"percentile"`
	Components        ScoreComponents `json:"components"`
	WeekDelta         int             `json:"week_delta"`  // runs in last 7 days minus the prior 7
	MonthDelta        int             `json:"month_delta"` // runs in last 30 days minus the prior 30
	Badges            []string        `json:"badges"`
	Summary           string          `json:"summary"`
	TotalRuns         int             `json:"total_runs"`
	TotalMiles        float64         `json:"total_miles"`
	RunsPerWeek       float64         `json:"runs_per_week"`
	MilesPerWeek      float64         `json:"miles_per_week"`
	AvgPaceMinPerMile float64         `json:"avg_pace_min_per_mile"`
}

// step is one row of a threshold table; at is inclusive
type step struct {
	at    float64
	value int
}

// lookupAtLeast returns the value of the first row with v >= at
func lookupAtLeast(table []step, v float64, fallback int) int {
	for _, s := range table {
		if v >= s.at {
			return s.value
		}
	}
	return fallback
}

// lookupAtMost returns the value of the first row with v <= at
func lookupAtMost(table []step, v float64, fallback int) int {
	for _, s := range table {
		if v <= s.at {
			return s.value
		}
	}
	return fallback
}

// Score policy tables
var (
	// runs/week
	consistencySteps = []step{{4, 25}, {3, 20}, {2, 15}, {1, 10}}

	// min/mile
	performanceSteps = []step{{6, 25}, {7, 22}, {8, 19}, {9, 16}, {10, 13}, {12, 10}}

	// miles/week
	volumeSteps = []step{{40, 25}, {30, 22}, {20, 19}, {15, 16}, {10, 14}, {5, 12}}

	// min/mile faster, recent half vs older half
	improvementSteps = []step{{1, 25}, {0.5, 22}, {0.25, 20}, {0, 17}, {-0.5, 13}}

	scorePercentiles = []step{{90, 95}, {80, 85}, {70, 70}, {60, 55}, {50, 40}, {40, 25}}
)

type gradeStep struct {
	at    int
	grade string
}

var grades = []gradeStep{
	{90, "A+"}, {85, "A"}, {80, "A-"}, {75, "B+"}, {70, "B"}, {65, "B-"},
	{60, "C+"}, {55, "C"}, {50, "C-"}, {40, "D"},
}

// ConsistencyScore buckets runs per week
func ConsistencyScore(runsPerWeek float64) int {
	return lookupAtLeast(consistencySteps, runsPerWeek, 5)
}

// PerformanceScore buckets average pace in min/mile, rounded to 0.1 first
func PerformanceScore(paceMinPerMile float64) int {
	if paceMinPerMile <= 0 {
		return 7
	}
	return lookupAtMost(performanceSteps, units.Round1(paceMinPerMile), 7)
}

// VolumeScore buckets weekly miles
func VolumeScore(milesPerWeek float64) int {
	return lookupAtLeast(volumeSteps, milesPerWeek, 10)
}

// ImprovementScore buckets how many min/mile faster the recent half is than the older half
func ImprovementScore(fasterBy float64) int {
	return lookupAtLeast(improvementSteps, fasterBy, 10)
}

// Grade maps a total score to a letter grade
func Grade(total int) string {
	for _, g := range grades {
		if total >= g.at {
			return g.grade
		}
	}
	return "F"
}

// ScorePercentile approximates a percentile from the total score
func ScorePercentile(total int) int {
	return lookupAtLeast(scorePercentiles, float64(total), 10)
}

// defaultGrade is fixed for the no-activity baseline and not looked up in grades
const defaultGrade = "D"

// DefaultRunnerScore is the baseline for a runner with no activities
func DefaultRunnerScore() RunnerScore {
	c := ScoreComponents{Consistency: 5, Performance: 0, Volume: 5, Improvement: defaultImprovement}
	total := c.Sum()
	return RunnerScore{
		Total:      total,
		Grade:      defaultGrade,
		Percentile: ScorePercentile(total),
		Components: c,
		Badges:     []string{newRunnerBadge},
		Summary:    "Just getting started! Log your first run to build a Runner Score.",
	}
}

// CalculateRunnerScore scores the most recent 100 runs as of now
func CalculateRunnerScore(activities []store.Activity, now time.Time) RunnerScore {
	runs := lastN(RunningActivities(activities), scoreWindow)
	if len(runs) == 0 {
		return DefaultRunnerScore()
	}

	monthAgo := now.AddDate(0, 0, -scoreLookbackDays)
	var recent []store.Activity
	for _, a := range runs {
		if a.StartDate.After(monthAgo) && !a.StartDate.After(now) {
			recent = append(recent, a)
		}
	}

	weeks := effectiveWeeks(runs, now)
	var recentMeters float64
	for _, a := range recent {
		recentMeters += a.Distance
	}
	runsPerWeek := float64(len(recent)) / weeks
	milesPerWeek := units.MetersToMiles(recentMeters) / weeks
	avgPace := averagePaceMinPerMile(runs)

	c := ScoreComponents{
		Consistency: ConsistencyScore(runsPerWeek),
		Performance: PerformanceScore(avgPace),
		Volume:      VolumeScore(milesPerWeek),
		Improvement: improvementComponent(runs),
	}
	total := clampInt(c.Sum(), 0, 4*maxComponent)

	var totalMeters float64
	for _, a := range runs {
		totalMeters += a.Distance
	}
	totalMiles := units.MetersToMiles(totalMeters)

	score := RunnerScore{
		Total:             total,
		Grade:             Grade(total),
		Percentile:        ScorePercentile(total),
		Components:        c,
		WeekDelta:         countBetween(runs, now, 0, scoreWeekDeltaDays) - countBetween(runs, now, scoreWeekDeltaDays, 2*scoreWeekDeltaDays),
		MonthDelta:        countBetween(runs, now, 0, scoreLookbackDays) - countBetween(runs, now, scoreLookbackDays, 2*scoreLookbackDays),
		TotalRuns:         len(runs),
		TotalMiles:        units.Round1(totalMiles),
		RunsPerWeek:       units.Round1(runsPerWeek),
		MilesPerWeek:      units.Round1(milesPerWeek),
		AvgPaceMinPerMile: units.Round2(avgPace),
	}
	score.Badges = badges(c, len(runs), totalMiles)
	score.Summary = shareSummary(score)
	return score
}

// effectiveWeeks is 4.3, or the weeks since the first run when history is shorter than 30 days
func effectiveWeeks(runs []store.Activity, now time.Time) float64 {
	first := runs[0].StartDate
	if !first.After(now.AddDate(0, 0, -scoreLookbackDays)) {
		return weeksPerMonth
	}
	days := now.Sub(first).Hours() / 24
	return math.Max(1, days/7)
}

// averagePaceMinPerMile derives pace from the mean average speed
func averagePaceMinPerMile(runs []store.Activity) float64 {
	var speeds []float64
	for _, a := range runs {
		if s := speed(a); s > 0 {
			speeds = append(speeds, s)
		}
	}
	return units.SpeedToMinPerMile(mean(speeds))
}

func improvementComponent(runs []store.Activity) int {
	if len(runs) < minImprovementRuns {
		return defaultImprovement
	}
	half := len(runs) / 2
	older := averagePaceMinPerMile(runs[:half])
	later := averagePaceMinPerMile(runs[half:])
	if older == 0 || later == 0 {
		return defaultImprovement
	}
	return ImprovementScore(older - later)
}

// countBetween counts runs that started between fromDays and toDays before now
func countBetween(runs []store.Activity, now time.Time, fromDays, toDays int) int {
	newest := now.AddDate(0, 0, -fromDays)
	oldest := now.AddDate(0, 0, -toDays)
	var n int
	for _, a := range runs {
		if a.StartDate.After(oldest) && !a.StartDate.After(newest) {
			n++
		}
	}
	return n
}

func badges(c ScoreComponents, totalRuns int, totalMiles float64) []string {
	out := []string{}
	if c.Consistency == maxComponent {
		out = append(out, "Consistency King")
	}
	if c.Performance >= 22 {
		out = append(out, "Speed Demon")
	}
	if c.Volume >= 22 {
		out = append(out, "Volume Crusher")
	}
	if c.Improvement >= 22 {
		out = append(out, "Rising Star")
	}
	if totalRuns >= 50 {
		out = append(out, "Half Century")
	}
	if totalRuns >= 100 {
		out = append(out, "Century Club")
	}
	if totalMiles >= 100 {
		out = append(out, "100 Mile Club")
	}
	if totalMiles >= 500 {
		out = append(out, "500 Mile Club")
	}
	return out
}

func shareSummary(s RunnerScore) string {
	return fmt.Sprintf("My Runner Score is %d (%s), top %d%% of runners. %d runs and %.1f miles logged.",
		s.Total, s.Grade, 100-s.Percentile, s.TotalRuns, s.TotalMiles)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

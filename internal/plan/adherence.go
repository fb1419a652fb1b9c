package plan

import (
	"math"
	"sort"
	"time"

	"runcoach/internal/analysis"
	"runcoach/internal/store"
	"runcoach/internal/units"
)

// AdherenceStats summarizes completed versus due training days
type AdherenceStats struct {
	Completed int     `json:"completed"`
	Skipped   int     `json:"skipped"`
	Missed    int     `json:"missed"` // due, still planned
	Due       int     `json:"due"`
	Total     int     `json:"total"`
	Rate      float64 `json:"rate"` // 0-1
}

// Adherence counts training days due on or before today. Rest and race days are excluded.
func Adherence(weeks []store.PlanWeek, today time.Time) AdherenceStats {
	today = dateOf(today)
	var s AdherenceStats
	for _, w := range weeks {
		for _, d := range w.Days {
			if !IsTraining(d.Type) {
				continue
			}
			s.Total++
			if dateOf(d.Date).After(today) {
				continue
			}
			s.Due++
			switch d.Status {
			case store.DayCompleted:
				s.Completed++
			case store.DaySkipped:
				s.Skipped++
			default:
				s.Missed++
			}
		}
	}
	if s.Due > 0 {
		s.Rate = units.Round2(float64(s.Completed) / float64(s.Due))
	}
	return s
}

// Match links a plan day to the activity that fulfilled it
type Match struct {
	DayID      int64
	ActivityID int64
}

// MatchActivities pairs planned training days with same-day runs, closest distance first.
// Each activity is used at most once.
func MatchActivities(days []store.PlanDay, activities []store.Activity) []Match {
	byDate := make(map[time.Time][]store.Activity)
	for _, a := range analysis.RunningActivities(activities) {
		byDate[a.LocalDate()] = append(byDate[a.LocalDate()], a)
	}

	ordered := append([]store.PlanDay(nil), days...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	used := make(map[int64]bool)
	var matches []Match
	for _, d := range ordered {
		if !IsTraining(d.Type) || d.Status != store.DayPlanned || d.ActivityID != nil {
			continue
		}
		var best *store.Activity
		bestDiff := math.Inf(1)
		candidates := byDate[dateOf(d.Date)]
		for i := range candidates {
			a := &candidates[i]
			if used[a.ID] {
				continue
			}
			diff := math.Abs(units.MetersToKm(a.Distance) - d.DistanceKm)
			if diff < bestDiff {
				best, bestDiff = a, diff
			}
		}
		if best != nil {
			used[best.ID] = true
			matches = append(matches, Match{DayID: d.ID, ActivityID: best.ID})
		}
	}
	return matches
}

// Soften bounds
const (
	minSoftenFactor   = 0.6
	qualityRateCutoff = 0.5
)

// SoftenFactor scales upcoming volume by recent adherence
func SoftenFactor(rate float64) float64 {
	return math.Max(minSoftenFactor, math.Min(1, minSoftenFactor+0.4*rate))
}

// SoftenWeek reduces a week's training volume in proportion to adherence.
// With no due days there is nothing to judge and the week is returned unchanged.
// Below 50% adherence hard sessions become easy runs.
func SoftenWeek(week store.PlanWeek, stats AdherenceStats, paces Paces, goal Goal) (store.PlanWeek, bool) {
	if stats.Due == 0 {
		return week, false
	}
	return scaleWeek(week, SoftenFactor(stats.Rate), goal, func(d *store.PlanDay) {
		if stats.Rate < qualityRateCutoff && IsQuality(d.Type) {
			d.Type = TypeEasy
			d.PaceMinPerKm = paces.Easy
		}
	}), true
}

// CapFollowingWeeks scales down the weeks after weeks[from] until each grows by at most
// maxIncrease over the week before it. The week after a recovery week may grow freely,
// so a recovery week ends the chain. weeks is updated in place and the capped weeks
// are returned in order.
func CapFollowingWeeks(weeks []store.PlanWeek, from int, maxIncrease float64, goal Goal) []store.PlanWeek {
	var capped []store.PlanWeek
	for i := from + 1; i < len(weeks); i++ {
		prev := weeks[i-1]
		if prev.IsRecovery || prev.TotalKm <= 0 {
			break
		}
		limit := prev.TotalKm * (1 + maxIncrease)
		if weeks[i].TotalKm <= limit+1e-9 {
			break
		}
		weeks[i] = scaleWeek(weeks[i], limit/weeks[i].TotalKm, goal, nil)
		capped = append(capped, weeks[i])
	}
	return capped
}

// scaleWeek multiplies every planned training distance by factor, rounding down,
// and returns the week to pending enrichment. adjust may rewrite each scaled day.
func scaleWeek(week store.PlanWeek, factor float64, goal Goal, adjust func(*store.PlanDay)) store.PlanWeek {
	out := week
	out.Days = make([]store.PlanDay, len(week.Days))
	out.TotalKm = 0
	for i, d := range week.Days {
		if IsTraining(d.Type) && d.Status == store.DayPlanned {
			d.DistanceKm = floor1(d.DistanceKm * factor)
			if adjust != nil {
				adjust(&d)
			}
			d.Description = Describe(d, goal)
		}
		if d.Type != TypeRace {
			out.TotalKm += d.DistanceKm
		}
		out.Days[i] = d
	}
	out.TotalKm = units.Round1(out.TotalKm)
	out.EnrichmentStatus = store.EnrichPending
	out.Summary = ""
	return out
}

// WeekIndexFor returns the 1-based week containing today, clamped to the plan length.
// Past the final week it returns total+1.
func WeekIndexFor(start time.Time, totalWeeks int, today time.Time) int {
	days := int(dateOf(today).Sub(dateOf(start)).Hours() / 24)
	if days < 0 {
		return 1
	}
	return min(days/7+1, totalWeeks+1)
}

// Upcoming returns up to n not-yet-done training days from today onward
func Upcoming(weeks []store.PlanWeek, today time.Time, n int) []store.PlanDay {
	today = dateOf(today)
	var out []store.PlanDay
	for _, w := range weeks {
		for _, d := range w.Days {
			if len(out) >= n {
				return out
			}
			if d.Type == TypeRest || d.Status != store.DayPlanned || dateOf(d.Date).Before(today) {
				continue
			}
			out = append(out, d)
		}
	}
	return out
}

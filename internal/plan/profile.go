package plan

import (
	"math"
	"time"

	"runcoach/internal/analysis"
	"runcoach/internal/store"
	"runcoach/internal/units"
)

const profileWindowDays = 42

// Generic baseline used when there are no recent runs
const (
	defaultWeeklyKm     = 15.0
	defaultRunsPerWeek  = 3.0
	defaultLongestRunKm = 5.0
	defaultAvgPace      = 6.5
	defaultFastestPace  = 5.75
)

// BuildProfile derives the training baseline from the last six weeks of runs.
// With no recent runs it falls back to conservative generic defaults.
func BuildProfile(userID int64, activities []store.Activity, now time.Time) store.AthleteProfile {
	cutoff := now.AddDate(0, 0, -profileWindowDays)
	var recent []store.Activity
	for _, a := range analysis.RunningActivities(activities) {
		if a.StartDate.After(cutoff) && !a.StartDate.After(now) && a.Distance > 0 && a.MovingTime > 0 {
			recent = append(recent, a)
		}
	}

	p := store.AthleteProfile{
		UserID:        userID,
		ActivityCount: len(recent),
		ComputedAt:    now,
	}
	if fit := analysis.EstimateFitness(activities); fit.OK() {
		capacity := fit.Value.AerobicCapacity
		p.AerobicCapacity = &capacity
	}

	if len(recent) == 0 {
		p.WeeklyKm = defaultWeeklyKm
		p.RunsPerWeek = defaultRunsPerWeek
		p.LongestRunKm = defaultLongestRunKm
		p.AvgPaceMinPerKm = defaultAvgPace
		p.FastestPaceMinPerKm = defaultFastestPace
		p.UsedDefaults = true
		setEasyBand(&p)
		return p
	}

	// Short histories are averaged over the weeks actually covered
	days := now.Sub(recent[0].StartDate).Hours() / 24
	weeks := math.Min(profileWindowDays/7, math.Max(1, days/7))

	var meters float64
	var seconds int
	var longest float64
	fastest := math.Inf(1)
	for _, a := range recent {
		meters += a.Distance
		seconds += a.MovingTime
		longest = math.Max(longest, a.Distance)
		if a.Distance > 1000 {
			fastest = math.Min(fastest, units.PaceMinPerKm(a.Distance, a.MovingTime))
		}
	}

	avg := units.PaceMinPerKm(meters, seconds)
	if math.IsInf(fastest, 1) || fastest > avg {
		fastest = avg
	}

	p.WeeklyKm = units.Round1(units.MetersToKm(meters) / weeks)
	p.RunsPerWeek = units.Round1(float64(len(recent)) / weeks)
	p.LongestRunKm = units.Round1(units.MetersToKm(longest))
	p.AvgPaceMinPerKm = units.Round2(avg)
	p.FastestPaceMinPerKm = units.Round2(fastest)
	setEasyBand(&p)
	return p
}

func setEasyBand(p *store.AthleteProfile) {
	p.EasyPaceLow = units.Round2(p.AvgPaceMinPerKm + 0.5)
	p.EasyPaceHigh = units.Round2(p.AvgPaceMinPerKm + 1.25)
}

// IsStale reports whether a cached profile should be recomputed
func IsStale(p *store.AthleteProfile, maxAge time.Duration, now time.Time) bool {
	return p == nil || now.Sub(p.ComputedAt) > maxAge
}

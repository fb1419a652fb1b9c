package plan

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"runcoach/internal/config"
	"runcoach/internal/store"
	"runcoach/internal/units"
)

// Week phases
const (
	PhaseBase     = "base"
	PhaseBuild    = "build"
	PhasePeak     = "peak"
	PhaseRecovery = "recovery"
	PhaseTaper    = "taper"
	PhaseRace     = "race"
)

const recoveryFraction = 0.7

// minLongRunDays is the fewest training days that can hold a long run which is
// both the longest run of the week and within the long-run ceiling
const minLongRunDays = 4

// Guardrails are the hard safety limits applied to every skeleton
type Guardrails struct {
	MaxWeeklyIncrease float64
	IncreaseCeiling   float64
	LongRunFraction   float64
	LongRunCeiling    float64
	MaxWeeks          int
}

// GuardrailsFromConfig copies the plan guardrails out of the config
func GuardrailsFromConfig(cfg config.PlanConfig) Guardrails {
	return Guardrails{
		MaxWeeklyIncrease: cfg.MaxWeeklyIncrease,
		IncreaseCeiling:   cfg.IncreaseCeiling,
		LongRunFraction:   cfg.LongRunFraction,
		LongRunCeiling:    cfg.LongRunCeiling,
		MaxWeeks:          cfg.MaxWeeks,
	}
}

// DefaultGuardrails returns the guardrails of the default config
func DefaultGuardrails() Guardrails {
	return GuardrailsFromConfig(config.DefaultConfig().Plan)
}

// Skeleton is a generated plan before it is persisted
type Skeleton struct {
	Plan      *store.TrainingPlan `json:"plan"`
	Paces     Paces               `json:"paces"`
	Conflicts *ConflictReport     `json:"conflicts,omitempty"`
}

// Generate builds a complete week-by-week plan synchronously.
// The request must already be validated; thin profiles still produce a safe plan.
func Generate(req Request, profile store.AthleteProfile, g Guardrails, now time.Time) *Skeleton {
	req = req.WithDefaults()
	goal := req.Goal
	policy := goalPolicies[goal.Type]
	exp := experiencePolicies[req.Experience]
	paces := DerivePaces(profile, goal)

	start, weeks := schedule(req, g.MaxWeeks, now)
	var raceDate time.Time
	if goal.RaceDate != nil {
		raceDate = dateOf(*goal.RaceDate)
	} else {
		raceDate = lastTrainingDay(start.AddDate(0, 0, 7*(weeks-1)), req.TrainingDays, req.IncludeLongRun)
	}

	volumes, recovery := weeklyVolumes(weeks, policy, exp, profile, g)

	p := &store.TrainingPlan{
		UserID:           profile.UserID,
		Name:             planName(goal),
		GoalType:         string(goal.Type),
		RaceDate:         goal.RaceDate,
		Experience:       string(req.Experience),
		Terrain:          string(goal.terrain()),
		Mode:             string(ModeSingle),
		StartDate:        start,
		TotalWeeks:       weeks,
		CurrentWeek:      1,
		Status:           store.PlanActive,
		EnrichmentStatus: store.EnrichPending,
		FastestPace:      paces.Fastest,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if goal.TargetTime > 0 {
		secs := int(goal.TargetTime.Seconds())
		p.TargetTimeSeconds = &secs
	}

	taperStart := weeks - min(len(policy.taper), weeks-1)
	for i := 0; i < weeks; i++ {
		b := weekBuilder{
			req:       req,
			goal:      goal,
			paces:     paces,
			guard:     g,
			longCap:   policy.longRunCapKm,
			start:     start.AddDate(0, 0, 7*i),
			volume:    volumes[i],
			recovery:  recovery[i],
			raceDate:  raceDate,
			finalWeek: i == weeks-1,
		}
		w := b.build()
		w.Number = i + 1
		w.Phase = phaseFor(i, weeks, taperStart, recovery[i])
		w.EnrichmentStatus = store.EnrichPending
		p.Weeks = append(p.Weeks, w)
	}

	var notes []string
	if profile.UsedDefaults {
		notes = append(notes, "Built from generic starting volumes until more runs are logged.")
	}
	if req.IncludeLongRun && len(req.TrainingDays) < minLongRunDays {
		notes = append(notes, fmt.Sprintf("Long runs need at least %d training days; volume is spread evenly instead.", minLongRunDays))
	}

	sk := &Skeleton{Plan: p, Paces: paces}
	if req.Secondary != nil {
		report := CheckConflicts(goal, req.Secondary)
		sk.Conflicts = &report
		p.Mode = string(report.Mode)
		notes = append(notes, report.Recommendation)
		for _, c := range report.Conflicts {
			notes = append(notes, fmt.Sprintf("[%s] %s", c.Severity, c.Message))
		}
	}
	p.CoachNotes = strings.Join(notes, "\n")
	return sk
}

// schedule picks the first Monday and the number of weeks.
// With a race date the race falls in the final week.
func schedule(req Request, maxWeeks int, now time.Time) (time.Time, int) {
	if maxWeeks < 1 {
		maxWeeks = 1
	}
	start := nextMonday(now)
	if !req.StartDate.IsZero() {
		start = mondayOf(req.StartDate)
	}

	if req.Goal.RaceDate == nil {
		weeks := goalPolicies[req.Goal.Type].defaultWeeks
		return start, max(1, min(weeks, maxWeeks))
	}

	raceMonday := mondayOf(*req.Goal.RaceDate)
	weeks := int(raceMonday.Sub(start).Hours()/24)/7 + 1
	switch {
	case weeks < 1:
		return raceMonday, 1
	case weeks > maxWeeks:
		return raceMonday.AddDate(0, 0, -7*(maxWeeks-1)), maxWeeks
	}
	return start, weeks
}

// nextMonday returns today when it is a Monday, otherwise the following Monday
func nextMonday(now time.Time) time.Time {
	d := dateOf(now)
	if d.Weekday() == time.Monday {
		return d
	}
	return mondayOf(d).AddDate(0, 0, 7)
}

// weeklyVolumes returns the target km per week and which weeks are recovery weeks
func weeklyVolumes(weeks int, policy goalPolicy, exp experiencePolicy, profile store.AthleteProfile, g Guardrails) ([]float64, []bool) {
	taperLen := min(len(policy.taper), weeks-1)
	taper := policy.taper[len(policy.taper)-taperLen:]
	loading := weeks - taperLen

	increase := math.Min(g.MaxWeeklyIncrease, g.IncreaseCeiling)
	startVol := math.Max(profile.WeeklyKm, exp.volumeFloorKm)
	peak := math.Max(policy.peakKm*exp.peakMultiplier, startVol)

	volumes := make([]float64, weeks)
	recovery := make([]bool, weeks)
	lastLoad := startVol
	for i := 0; i < loading; i++ {
		switch {
		case i == 0:
			volumes[i] = startVol
		case (i+1)%exp.recoveryEvery == 0:
			volumes[i] = lastLoad * recoveryFraction
			recovery[i] = true
		default:
			lastLoad = math.Min(lastLoad*(1+increase), peak)
			volumes[i] = lastLoad
		}
	}
	for j, frac := range taper {
		volumes[loading+j] = lastLoad * frac
	}
	return volumes, recovery
}

func phaseFor(i, weeks, taperStart int, recovery bool) string {
	switch {
	case i == weeks-1:
		return PhaseRace
	case recovery:
		return PhaseRecovery
	case i >= taperStart:
		return PhaseTaper
	case taperStart > 0 && i >= taperStart-2:
		return PhasePeak
	case i < taperStart/3:
		return PhaseBase
	}
	return PhaseBuild
}

// lastTrainingDay is the day a goal effort lands on when there is no race date
func lastTrainingDay(monday time.Time, days []time.Weekday, preferLong bool) time.Time {
	ordered := orderedDays(days)
	if preferLong {
		return monday.AddDate(0, 0, weekdayOffset(longRunDay(ordered)))
	}
	return monday.AddDate(0, 0, weekdayOffset(ordered[len(ordered)-1]))
}

// orderedDays sorts weekdays Monday first
func orderedDays(days []time.Weekday) []time.Weekday {
	out := append([]time.Weekday(nil), days...)
	sort.Slice(out, func(i, j int) bool {
		return weekdayOffset(out[i]) < weekdayOffset(out[j])
	})
	return out
}

// longRunDay prefers Sunday, then Saturday, then the last training day of the week
func longRunDay(ordered []time.Weekday) time.Weekday {
	for _, want := range []time.Weekday{time.Sunday, time.Saturday} {
		for _, d := range ordered {
			if d == want {
				return d
			}
		}
	}
	return ordered[len(ordered)-1]
}

func planName(g Goal) string {
	if g.Name != "" {
		return g.Name
	}
	return g.Type.Label() + " Plan"
}

type weekBuilder struct {
	req       Request
	goal      Goal
	paces     Paces
	guard     Guardrails
	longCap   float64
	start     time.Time
	volume    float64
	recovery  bool
	raceDate  time.Time
	finalWeek bool
}

func (b weekBuilder) build() store.PlanWeek {
	week := store.PlanWeek{StartDate: b.start, IsRecovery: b.recovery}
	ordered := orderedDays(b.req.TrainingDays)
	// The race always falls in the final week
	raceWeek := b.finalWeek

	types := make(map[time.Weekday]string)
	for _, d := range ordered {
		types[d] = TypeEasy
		if b.recovery {
			types[d] = TypeRecovery
		}
	}

	total := units.Round1(b.volume)
	longKm := 0.0
	var longDay time.Weekday = -1
	if b.req.IncludeLongRun && !raceWeek && len(ordered) >= minLongRunDays {
		longDay = longRunDay(ordered)
		types[longDay] = TypeLong
		longKm = math.Min(b.guard.LongRunFraction*b.volume, b.longCap)
		longKm = math.Min(longKm, b.guard.LongRunCeiling*total)
		longKm = floor1(longKm)
	}

	var others []time.Weekday
	for _, d := range ordered {
		if d != longDay {
			others = append(others, d)
		}
	}
	if b.req.IncludeSpeedwork && !b.recovery && !raceWeek {
		switch {
		case len(others) >= 3:
			types[others[0]] = TypeIntervals
			types[others[len(others)-1]] = TypeTempo
		case len(others) == 2:
			types[others[0]] = TypeTempo
		}
	}

	// Non-long volume is shared equally and the last non-long day absorbs rounding.
	// No day outruns the long run (or the goal's long-run cap without one), so
	// volume the days cannot hold is dropped from the week.
	dayCap := b.longCap
	distances := make(map[time.Weekday]float64)
	if longDay >= 0 {
		distances[longDay] = longKm
		dayCap = longKm
	}
	if n := len(others); n > 0 {
		share := math.Min(units.Round1((total-longKm)/float64(n)), dayCap)
		assigned := longKm
		for _, d := range others[:n-1] {
			distances[d] = share
			assigned += share
		}
		distances[others[n-1]] = math.Min(math.Max(0, units.Round1(total-assigned)), dayCap)
	}

	for offset := 0; offset < 7; offset++ {
		date := b.start.AddDate(0, 0, offset)
		wd := date.Weekday()
		day := store.PlanDay{Date: date, Type: TypeRest, Status: store.DayPlanned}

		switch {
		case raceWeek && date.Equal(b.raceDate):
			day.Type = TypeRace
			day.DistanceKm = units.Round1(b.goal.Type.DistanceKm())
		case raceWeek && date.After(b.raceDate):
			// rest after the race
		case types[wd] != "":
			day.Type = types[wd]
			day.DistanceKm = distances[wd]
		}

		day.PaceMinPerKm = b.paces.For(day.Type)
		day.Description = Describe(day, b.goal)
		if day.Type != TypeRace {
			week.TotalKm += day.DistanceKm
		}
		week.Days = append(week.Days, day)
	}
	week.TotalKm = units.Round1(week.TotalKm)
	return week
}

// floor1 rounds down to 0.1 km, tolerating float error just below a boundary
func floor1(v float64) float64 {
	return math.Floor(v*10+1e-9) / 10
}

// Describe renders the template text for a skeleton day
func Describe(d store.PlanDay, goal Goal) string {
	pace := units.FormatPaceValue(d.PaceMinPerKm) + "/km"
	switch d.Type {
	case TypeEasy:
		return fmt.Sprintf("Easy %.1f km at %s. Keep it conversational.", d.DistanceKm, pace)
	case TypeRecovery:
		return fmt.Sprintf("Recovery %.1f km at %s. Very relaxed, let the legs absorb the training.", d.DistanceKm, pace)
	case TypeLong:
		return fmt.Sprintf("Long run %.1f km at %s. Steady effort, practice fueling.", d.DistanceKm, pace)
	case TypeTempo:
		return fmt.Sprintf("Tempo %.1f km: warm up, hold %s for the middle third, cool down.", d.DistanceKm, pace)
	case TypeIntervals:
		return fmt.Sprintf("Intervals %.1f km: warm up, 6 x 800m at %s with 400m jog recoveries, cool down.", d.DistanceKm, pace)
	case TypeRace:
		return fmt.Sprintf("Race day: %s. Start controlled and settle into %s.", goal.Type.Label(), pace)
	}
	return "Rest or light cross-training."
}

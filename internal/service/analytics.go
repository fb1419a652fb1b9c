package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"runcoach/internal/analysis"
	"runcoach/internal/config"
	"runcoach/internal/plan"
	"runcoach/internal/provider"
	"runcoach/internal/store"
	"runcoach/internal/units"
)

// AnalyticsStore is the persistence the analytics service reads and writes
type AnalyticsStore interface {
	GetProfile(ctx context.Context, userID int64) (*store.AthleteProfile, error)
	SaveProfile(ctx context.Context, p *store.AthleteProfile) error
	GetUser(ctx context.Context, id int64) (*store.User, error)
}

// AnalyticsService computes metrics from the user's activity history.
// Provider failures degrade to unavailable results and never surface as errors.
type AnalyticsService struct {
	provider      provider.Provider
	store         AnalyticsStore
	display       config.DisplayConfig
	profileMaxAge time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewAnalyticsService creates an analytics service
func NewAnalyticsService(p provider.Provider, s AnalyticsStore, cfg *config.Config, logger *slog.Logger) *AnalyticsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyticsService{
		provider:      p,
		store:         s,
		display:       cfg.Display,
		profileMaxAge: cfg.Plan.ProfileMaxAge,
		logger:        logger,
		now:           time.Now,
	}
}

// History is a user's activities as fetched for one request. Reason is set
// when the provider could not supply them.
type History struct {
	Activities []store.Activity
	Reason     string
}

// Available reports whether the provider answered
func (h History) Available() bool {
	return h.Reason == ""
}

// History fetches the activities every analytic is computed from
func (s *AnalyticsService) History(ctx context.Context, userID int64) History {
	acts, err := s.provider.GetActivities(ctx, userID, provider.Query{Limit: HistoryLimit})
	if err == nil {
		return History{Activities: acts}
	}
	if errors.Is(err, provider.ErrNotLinked) {
		return History{Reason: "activity source not linked"}
	}
	s.logger.Warn("activity provider failed", "user_id", userID, "error", err)
	return History{Reason: "activity source is unavailable"}
}

// Weekly aggregates the user's runs by ISO week
func (s *AnalyticsService) Weekly(ctx context.Context, userID int64) analysis.Result[analysis.Aggregate] {
	return WeeklyFrom(s.History(ctx, userID))
}

// Fitness estimates aerobic capacity
func (s *AnalyticsService) Fitness(ctx context.Context, userID int64) analysis.Result[analysis.FitnessSnapshot] {
	return FitnessFrom(s.History(ctx, userID))
}

// Efficiency scores running form
func (s *AnalyticsService) Efficiency(ctx context.Context, userID int64) analysis.Result[analysis.Efficiency] {
	return EfficiencyFrom(s.History(ctx, userID))
}

// RunnerScore computes the composite score
func (s *AnalyticsService) RunnerScore(ctx context.Context, userID int64) analysis.Result[analysis.RunnerScore] {
	return ScoreFrom(s.History(ctx, userID), s.now())
}

// Predictions estimates race times
func (s *AnalyticsService) Predictions(ctx context.Context, userID int64) analysis.Result[[]analysis.RacePrediction] {
	return PredictionsFrom(s.History(ctx, userID), s.now())
}

// Form returns today's fitness, fatigue and form
func (s *AnalyticsService) Form(ctx context.Context, userID int64) analysis.Result[analysis.FitnessMetrics] {
	return FormFrom(s.History(ctx, userID), s.now())
}

// WeeklyFrom aggregates an already fetched history
func WeeklyFrom(h History) analysis.Result[analysis.Aggregate] {
	if !h.Available() {
		return analysis.Unavailable[analysis.Aggregate](h.Reason)
	}
	agg := analysis.AggregateWeekly(h.Activities)
	if len(agg.Weeks) == 0 {
		return analysis.Insufficient[analysis.Aggregate]("no runs recorded yet")
	}
	return analysis.Available(agg)
}

// FitnessFrom estimates fitness from an already fetched history
func FitnessFrom(h History) analysis.Result[analysis.FitnessSnapshot] {
	if !h.Available() {
		return analysis.Unavailable[analysis.FitnessSnapshot](h.Reason)
	}
	return analysis.EstimateFitness(h.Activities)
}

// EfficiencyFrom scores efficiency from an already fetched history
func EfficiencyFrom(h History) analysis.Result[analysis.Efficiency] {
	if !h.Available() {
		return analysis.Unavailable[analysis.Efficiency](h.Reason)
	}
	return analysis.EstimateEfficiency(h.Activities)
}

// ScoreFrom scores an already fetched history. A runner with no runs gets the baseline score.
func ScoreFrom(h History, now time.Time) analysis.Result[analysis.RunnerScore] {
	if !h.Available() {
		return analysis.Unavailable[analysis.RunnerScore](h.Reason)
	}
	return analysis.Available(analysis.CalculateRunnerScore(h.Activities, now))
}

// PredictionsFrom predicts race times from an already fetched history
func PredictionsFrom(h History, now time.Time) analysis.Result[[]analysis.RacePrediction] {
	if !h.Available() {
		return analysis.Unavailable[[]analysis.RacePrediction](h.Reason)
	}
	return analysis.PredictRaceTimes(h.Activities, now)
}

// FormFrom computes training form from an already fetched history
func FormFrom(h History, now time.Time) analysis.Result[analysis.FitnessMetrics] {
	if !h.Available() {
		return analysis.Unavailable[analysis.FitnessMetrics](h.Reason)
	}
	cutoff := now.AddDate(0, 0, -FormLookbackDays)
	var recent []store.Activity
	for _, a := range h.Activities {
		if a.StartDate.After(cutoff) {
			recent = append(recent, a)
		}
	}
	m, ok := analysis.CurrentForm(recent, now)
	if !ok {
		return analysis.Insufficient[analysis.FitnessMetrics]("no recent training load")
	}
	return analysis.Available(m)
}

// Profile returns the cached athlete profile, recomputing it once it is older
// than the configured max age. When the provider is unavailable a stale
// profile is kept, and without any profile the conservative defaults are used.
func (s *AnalyticsService) Profile(ctx context.Context, userID int64) (*store.AthleteProfile, error) {
	cached, fresh, err := s.cachedProfile(ctx, userID)
	if err != nil || fresh {
		return cached, err
	}
	return s.rebuildProfile(ctx, userID, s.History(ctx, userID), cached)
}

// ProfileFrom is Profile for a caller that already fetched the history
func (s *AnalyticsService) ProfileFrom(ctx context.Context, userID int64, h History) (*store.AthleteProfile, error) {
	cached, fresh, err := s.cachedProfile(ctx, userID)
	if err != nil || fresh {
		return cached, err
	}
	return s.rebuildProfile(ctx, userID, h, cached)
}

func (s *AnalyticsService) cachedProfile(ctx context.Context, userID int64) (*store.AthleteProfile, bool, error) {
	cached, err := s.store.GetProfile(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrProfileNotFound) {
		return nil, false, fmt.Errorf("loading profile: %w", err)
	}
	return cached, !plan.IsStale(cached, s.profileMaxAge, s.now()), nil
}

func (s *AnalyticsService) rebuildProfile(ctx context.Context, userID int64, h History, cached *store.AthleteProfile) (*store.AthleteProfile, error) {
	if !h.Available() && cached != nil {
		return cached, nil
	}
	p := plan.BuildProfile(userID, h.Activities, s.now())
	if !h.Available() {
		// Not cached, so the next request retries the provider.
		return &p, nil
	}
	if err := s.store.SaveProfile(ctx, &p); err != nil {
		return nil, fmt.Errorf("saving profile: %w", err)
	}
	return &p, nil
}

// Units returns the user's display units, defaulting to the configured ones
func (s *AnalyticsService) Units(ctx context.Context, userID int64) (units.Units, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrUserNotFound) {
		return units.New(s.display), nil
	}
	if err != nil {
		return units.Units{}, fmt.Errorf("loading user: %w", err)
	}
	return units.New(config.DisplayConfig{DistanceUnit: u.DistanceUnit, PaceUnit: u.PaceUnit}), nil
}

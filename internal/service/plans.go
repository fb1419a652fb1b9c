package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"runcoach/internal/enrich"
	"runcoach/internal/plan"
	"runcoach/internal/provider"
	"runcoach/internal/store"
)

var (
	// ErrInvalidDayStatus is returned for day status updates outside planned/completed/skipped
	ErrInvalidDayStatus = errors.New("invalid day status")
	// ErrQueueFull is returned when a manual enrichment cannot be queued
	ErrQueueFull = errors.New("enrichment queue is full")
)

// PlanStore is the persistence the plan service needs
type PlanStore interface {
	SavePlan(ctx context.Context, p *store.TrainingPlan) error
	GetPlan(ctx context.Context, userID int64, id string) (*store.TrainingPlan, error)
	ActivePlan(ctx context.Context, userID int64) (*store.TrainingPlan, error)
	UpdatePlanProgress(ctx context.Context, id string, currentWeek int, status string) error
	SetPlanStatus(ctx context.Context, userID int64, id, status string) error
	UpdatePlanEnrichment(ctx context.Context, id, status string, enrichedWeeks int) error
	ReplaceWeekWorkouts(ctx context.Context, w store.PlanWeek) error
	UpdateDayStatus(ctx context.Context, userID int64, planID string, dayID int64, status string, activityID *int64) error
}

// Enqueuer schedules background enrichment of a plan
type Enqueuer interface {
	Enqueue(planID string) bool
}

// PlanService generates and tracks training plans
type PlanService struct {
	store     PlanStore
	analytics *AnalyticsService
	queue     Enqueuer
	guard     plan.Guardrails
	logger    *slog.Logger
	now       func() time.Time
}

// NewPlanService creates a plan service
func NewPlanService(s PlanStore, analytics *AnalyticsService, queue Enqueuer, guard plan.Guardrails, logger *slog.Logger) *PlanService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlanService{
		store:     s,
		analytics: analytics,
		queue:     queue,
		guard:     guard,
		logger:    logger,
		now:       time.Now,
	}
}

// Generate validates the request, builds and persists the skeleton and queues
// enrichment. Any previously active plan is archived. The skeleton is returned
// without waiting for enrichment.
func (s *PlanService) Generate(ctx context.Context, userID int64, req plan.Request) (*plan.Skeleton, error) {
	now := s.now()
	req = req.WithDefaults()
	if err := req.Validate(now); err != nil {
		return nil, err
	}

	profile, err := s.analytics.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	sk := plan.Generate(req, *profile, s.guard, now)
	sk.Plan.ID = uuid.NewString()
	sk.Plan.UserID = userID
	if err := s.store.SavePlan(ctx, sk.Plan); err != nil {
		return nil, fmt.Errorf("saving plan: %w", err)
	}
	enrich.RecordPlanGenerated(sk.Plan.GoalType)

	if !s.queue.Enqueue(sk.Plan.ID) {
		s.logger.Warn("enrichment queue full, leaving plan for the sweep", "plan_id", sk.Plan.ID)
	}
	s.logger.Info("plan generated",
		"user_id", userID,
		"plan_id", sk.Plan.ID,
		"goal", sk.Plan.GoalType,
		"weeks", sk.Plan.TotalWeeks,
		"used_defaults", profile.UsedDefaults,
	)
	return sk, nil
}

// CheckConflicts validates both goals and reports how they interact
func (s *PlanService) CheckConflicts(primary plan.Goal, secondary *plan.Goal) (plan.ConflictReport, error) {
	now := s.now()
	if err := primary.Validate(now); err != nil {
		return plan.ConflictReport{}, err
	}
	if secondary != nil {
		if err := secondary.Validate(now); err != nil {
			return plan.ConflictReport{}, fmt.Errorf("secondary goal: %w", err)
		}
	}
	return plan.CheckConflicts(primary, secondary), nil
}

// ActivePlan returns the user's active plan with the current-week pointer
// moved to today. A plan whose final week has passed is marked completed.
func (s *PlanService) ActivePlan(ctx context.Context, userID int64) (*store.TrainingPlan, error) {
	p, err := s.store.ActivePlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.advance(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PlanService) advance(ctx context.Context, p *store.TrainingPlan) error {
	idx := plan.WeekIndexFor(p.StartDate, p.TotalWeeks, s.now())
	status := p.Status
	if idx > p.TotalWeeks {
		idx = p.TotalWeeks
		status = store.PlanCompleted
	}
	if idx == p.CurrentWeek && status == p.Status {
		return nil
	}
	if err := s.store.UpdatePlanProgress(ctx, p.ID, idx, status); err != nil {
		return fmt.Errorf("updating plan progress: %w", err)
	}
	p.CurrentWeek, p.Status = idx, status
	return nil
}

// AdherenceReport is the adherence of a plan as of today
type AdherenceReport struct {
	PlanID   string              `json:"plan_id"`
	Stats    plan.AdherenceStats `json:"stats"`
	Matched  int                 `json:"matched"`
	Upcoming []store.PlanDay     `json:"upcoming"`
	Source   string              `json:"source,omitempty"` // set when activities could not be matched
}

// Adherence links same-day runs to planned days, then reports completion
// against the days due so far.
func (s *PlanService) Adherence(ctx context.Context, userID int64, planID string) (*AdherenceReport, error) {
	p, err := s.store.GetPlan(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	return s.adherence(ctx, p)
}

func (s *PlanService) adherence(ctx context.Context, p *store.TrainingPlan) (*AdherenceReport, error) {
	now := s.now()
	report := &AdherenceReport{PlanID: p.ID}

	var due []store.PlanDay
	for _, w := range p.Weeks {
		for _, d := range w.Days {
			if d.Status == store.DayPlanned && plan.IsTraining(d.Type) && !d.Date.After(now) {
				due = append(due, d)
			}
		}
	}

	if len(due) > 0 {
		acts, err := s.analytics.provider.GetActivities(ctx, p.UserID, provider.Query{Since: p.StartDate})
		if err != nil {
			s.logger.Warn("skipping activity matching", "plan_id", p.ID, "error", err)
			report.Source = "activity source is unavailable"
		}
		for _, m := range plan.MatchActivities(due, acts) {
			activityID := m.ActivityID
			if err := s.store.UpdateDayStatus(ctx, p.UserID, p.ID, m.DayID, store.DayCompleted, &activityID); err != nil {
				return nil, fmt.Errorf("linking activity %d: %w", m.ActivityID, err)
			}
			markDay(p, m.DayID, store.DayCompleted, &activityID)
			report.Matched++
		}
	}

	report.Stats = plan.Adherence(p.Weeks, now)
	report.Upcoming = plan.Upcoming(p.Weeks, now, UpcomingWorkouts)
	return report, nil
}

func markDay(p *store.TrainingPlan, dayID int64, status string, activityID *int64) {
	for i := range p.Weeks {
		for j := range p.Weeks[i].Days {
			if d := &p.Weeks[i].Days[j]; d.ID == dayID {
				d.Status, d.ActivityID = status, activityID
				return
			}
		}
	}
}

// UpdateDayStatus records a day as planned, completed or skipped
func (s *PlanService) UpdateDayStatus(ctx context.Context, userID int64, planID string, dayID int64, status string, activityID *int64) error {
	switch status {
	case store.DayPlanned, store.DayCompleted, store.DaySkipped:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDayStatus, status)
	}
	if status != store.DayCompleted {
		activityID = nil
	}
	return s.store.UpdateDayStatus(ctx, userID, planID, dayID, status, activityID)
}

// SoftenResult describes an adherence-driven adjustment
type SoftenResult struct {
	Adjusted  bool                `json:"adjusted"`
	Factor    float64             `json:"factor"`
	Adherence plan.AdherenceStats `json:"adherence"`
	Week      *store.PlanWeek     `json:"week,omitempty"`
	Capped    []int               `json:"capped_weeks,omitempty"` // later weeks scaled to keep growth in bounds
}

// Soften scales the week after the current one by recent adherence and sends
// it back through enrichment.
func (s *PlanService) Soften(ctx context.Context, userID int64, planID string) (*SoftenResult, error) {
	p, err := s.store.GetPlan(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	adh, err := s.adherence(ctx, p)
	if err != nil {
		return nil, err
	}
	result := &SoftenResult{Factor: 1, Adherence: adh.Stats}
	if adh.Stats.Due > 0 {
		result.Factor = plan.SoftenFactor(adh.Stats.Rate)
	}

	next := plan.WeekIndexFor(p.StartDate, p.TotalWeeks, s.now()) + 1
	if p.Status != store.PlanActive || next > len(p.Weeks) {
		return result, nil
	}
	week := p.Weeks[next-1]

	profile, err := s.analytics.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	goal := goalOf(p)
	paces := plan.DerivePaces(*profile, goal)

	softened, changed := plan.SoftenWeek(week, adh.Stats, paces, goal)
	if !changed {
		return result, nil
	}
	if err := s.store.ReplaceWeekWorkouts(ctx, softened); err != nil {
		return nil, fmt.Errorf("saving softened week: %w", err)
	}

	enriched := p.EnrichedWeeks
	if week.EnrichmentStatus == store.EnrichComplete && enriched > 0 {
		enriched--
	}

	weeks := append([]store.PlanWeek(nil), p.Weeks...)
	weeks[next-1] = softened
	for _, w := range plan.CapFollowingWeeks(weeks, next-1, s.guard.MaxWeeklyIncrease, goal) {
		if err := s.store.ReplaceWeekWorkouts(ctx, w); err != nil {
			return nil, fmt.Errorf("saving capped week %d: %w", w.Number, err)
		}
		if p.Weeks[w.Number-1].EnrichmentStatus == store.EnrichComplete && enriched > 0 {
			enriched--
		}
		result.Capped = append(result.Capped, w.Number)
	}
	if err := s.store.UpdatePlanEnrichment(ctx, p.ID, store.EnrichPending, enriched); err != nil {
		return nil, fmt.Errorf("resetting enrichment: %w", err)
	}
	if !s.queue.Enqueue(p.ID) {
		s.logger.Warn("enrichment queue full, leaving softened week for the sweep", "plan_id", p.ID)
	}

	s.logger.Info("week softened", "plan_id", p.ID, "week", softened.Number, "factor", result.Factor)
	result.Adjusted = true
	result.Week = &softened
	return result, nil
}

// Enrich re-queues enrichment of a user's plan
func (s *PlanService) Enrich(ctx context.Context, userID int64, planID string) error {
	if _, err := s.store.GetPlan(ctx, userID, planID); err != nil {
		return err
	}
	if !s.queue.Enqueue(planID) {
		return ErrQueueFull
	}
	return nil
}

// Archive retires a plan
func (s *PlanService) Archive(ctx context.Context, userID int64, planID string) error {
	return s.store.SetPlanStatus(ctx, userID, planID, store.PlanArchived)
}

// goalOf rebuilds the goal a stored plan was generated for
func goalOf(p *store.TrainingPlan) plan.Goal {
	g := plan.Goal{
		Type:     plan.GoalType(p.GoalType),
		RaceDate: p.RaceDate,
		Terrain:  plan.Terrain(p.Terrain),
	}
	if p.TargetTimeSeconds != nil {
		g.TargetTime = time.Duration(*p.TargetTimeSeconds) * time.Second
	}
	return g
}

// Package enrich adds generated workout notes to plan skeletons in the background.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"runcoach/internal/llm"
	"runcoach/internal/store"
)

// Store is the persistence the enricher needs
type Store interface {
	GetPlanByID(ctx context.Context, id string) (*store.TrainingPlan, error)
	WeeksNeedingEnrichment(ctx context.Context, planID string) ([]store.PlanWeek, error)
	SetWeekEnrichmentStatus(ctx context.Context, weekID int64, status string) error
	SaveEnrichedWeek(ctx context.Context, weekID int64, summary string, days []store.PlanDay) error
	UpdatePlanEnrichment(ctx context.Context, id, status string, enrichedWeeks int) error
	PlansNeedingEnrichment(ctx context.Context, staleBefore time.Time) ([]string, error)
}

// Completer produces a chat completion
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error)
	IsConfigured() bool
}

// Enricher enriches one plan week at a time
type Enricher struct {
	store       Store
	llm         Completer
	weekTimeout time.Duration
	logger      *slog.Logger
}

// NewEnricher creates an enricher. weekTimeout bounds each model call.
func NewEnricher(s Store, c Completer, weekTimeout time.Duration, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	if weekTimeout <= 0 {
		weekTimeout = 45 * time.Second
	}
	return &Enricher{store: s, llm: c, weekTimeout: weekTimeout, logger: logger}
}

// EnrichPlan enriches every week of the plan that is not complete yet.
// A failing week is marked failed and the rest carry on; only persistence errors are returned.
func (e *Enricher) EnrichPlan(ctx context.Context, planID string) error {
	p, err := e.store.GetPlanByID(ctx, planID)
	if err != nil {
		return fmt.Errorf("loading plan %s: %w", planID, err)
	}
	if p.Status != store.PlanActive {
		e.logger.Debug("skipping enrichment of inactive plan", "plan", planID, "status", p.Status)
		return nil
	}

	weeks, err := e.store.WeeksNeedingEnrichment(ctx, planID)
	if err != nil {
		return fmt.Errorf("loading weeks: %w", err)
	}
	done := len(p.Weeks) - len(weeks)

	if err := e.store.UpdatePlanEnrichment(ctx, planID, store.EnrichRunning, done); err != nil {
		return fmt.Errorf("marking plan enriching: %w", err)
	}

	configured := e.llm != nil && e.llm.IsConfigured()
	for _, w := range weeks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !configured {
			if err := e.store.SetWeekEnrichmentStatus(ctx, w.ID, store.EnrichFailed); err != nil {
				return err
			}
			recordWeek(outcomeSkipped, time.Time{})
			continue
		}

		ok, err := e.enrichWeek(ctx, p, w)
		if err != nil {
			return err
		}
		if ok {
			done++
		}
	}

	status := finalStatus(done, len(p.Weeks))
	if !configured {
		e.logger.Info("llm not configured, plan left as skeleton", "plan", planID)
	}
	e.logger.Info("plan enrichment finished", "plan", planID, "status", status, "enriched_weeks", done, "weeks", len(p.Weeks))

	return e.store.UpdatePlanEnrichment(ctx, planID, status, done)
}

// enrichWeek reports whether the week was enriched. Model and validation failures mark the
// week failed and are not returned.
func (e *Enricher) enrichWeek(ctx context.Context, p *store.TrainingPlan, w store.PlanWeek) (bool, error) {
	if err := e.store.SetWeekEnrichmentStatus(ctx, w.ID, store.EnrichRunning); err != nil {
		return false, err
	}
	started := time.Now()

	summary, days, err := e.generate(ctx, p, w)
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down; the sweep picks the week up again.
			_ = e.store.SetWeekEnrichmentStatus(context.WithoutCancel(ctx), w.ID, store.EnrichPending)
			return false, ctx.Err()
		}
		e.logger.Warn("week enrichment failed", "plan", p.ID, "week", w.Number, "error", err)
		recordWeek(outcomeFailed, started)
		return false, e.store.SetWeekEnrichmentStatus(ctx, w.ID, store.EnrichFailed)
	}

	if err := e.store.SaveEnrichedWeek(ctx, w.ID, summary, days); err != nil {
		return false, fmt.Errorf("saving week %d: %w", w.Number, err)
	}
	recordWeek(outcomeComplete, started)
	e.logger.Debug("week enriched", "plan", p.ID, "week", w.Number, "duration", time.Since(started))
	return true, nil
}

func (e *Enricher) generate(ctx context.Context, p *store.TrainingPlan, w store.PlanWeek) (string, []store.PlanDay, error) {
	messages, err := weekMessages(p, w)
	if err != nil {
		return "", nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.weekTimeout)
	defer cancel()

	raw, err := e.llm.Complete(callCtx, messages, llm.Options{JSON: true, MaxTokens: 2000})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", nil, fmt.Errorf("model call timed out after %s: %w", e.weekTimeout, err)
		}
		return "", nil, err
	}
	return validateWeek(raw, w, p.FastestPace)
}

// finalStatus maps enriched week counts to the plan enrichment status
func finalStatus(enriched, total int) string {
	switch {
	case total > 0 && enriched >= total:
		return store.EnrichComplete
	case enriched == 0:
		return store.EnrichFailed
	default:
		return store.EnrichPartial
	}
}

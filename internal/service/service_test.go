package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"runcoach/internal/analysis"
	"runcoach/internal/coach"
	"runcoach/internal/config"
	"runcoach/internal/llm"
	"runcoach/internal/plan"
	"runcoach/internal/provider"
	"runcoach/internal/store"
)

// Monday
var testNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type fakeQueue struct {
	mu   sync.Mutex
	ids  []string
	full bool
}

func (q *fakeQueue) Enqueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.ids = append(q.ids, id)
	return true
}

type failingProvider struct{ err error }

func (p failingProvider) GetActivities(ctx context.Context, userID int64, q provider.Query) ([]store.Activity, error) {
	return nil, p.err
}

type countingProvider struct {
	provider.Provider
	mu    sync.Mutex
	calls int
}

func (p *countingProvider) GetActivities(ctx context.Context, userID int64, q provider.Query) ([]store.Activity, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.Provider.GetActivities(ctx, userID, q)
}

type fakeReplier struct {
	configured bool
	reply      string
	err        error
	got        []llm.Message
}

func (r *fakeReplier) Complete(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error) {
	r.got = msgs
	return r.reply, r.err
}

func (r *fakeReplier) IsConfigured() bool { return r.configured }

type fixture struct {
	db        *store.DB
	queue     *fakeQueue
	analytics *AnalyticsService
	plans     *PlanService
}

func setup(t *testing.T, p provider.Provider) *fixture {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	if p == nil {
		p = provider.NewStore(db)
	}

	cfg := config.DefaultConfig()
	f := &fixture{db: db, queue: &fakeQueue{}}
	f.analytics = NewAnalyticsService(p, db, &cfg, nil)
	f.analytics.now = func() time.Time { return testNow }
	f.plans = NewPlanService(db, f.analytics, f.queue, plan.GuardrailsFromConfig(cfg.Plan), nil)
	f.plans.now = func() time.Time { return testNow }
	return f
}

func run(id int64, start time.Time, km float64, paceMinPerKm float64) store.Activity {
	hr := 148.0
	return store.Activity{
		ID:               id,
		UserID:           1,
		Name:             "Run",
		Type:             "Run",
		StartDate:        start,
		StartDateLocal:   start,
		Distance:         km * 1000,
		MovingTime:       int(km * paceMinPerKm * 60),
		AverageHeartrate: &hr,
	}
}

// history of three runs a week over the last eight weeks
func seedHistory(t *testing.T, db *store.DB) {
	t.Helper()
	var acts []store.Activity
	id := int64(1)
	for w := 8; w >= 1; w-- {
		base := testNow.AddDate(0, 0, -7*w)
		for i, km := range []float64{6, 8, 12} {
			acts = append(acts, run(id, base.AddDate(0, 0, 2*i), km, 5.5))
			id++
		}
	}
	require.NoError(t, db.UpsertActivities(context.Background(), acts))
}

func TestAnalyticsUnlinkedProvider(t *testing.T) {
	f := setup(t, failingProvider{err: provider.ErrNotLinked})
	ctx := context.Background()

	weekly := f.analytics.Weekly(ctx, 1)
	require.Equal(t, analysis.StatusUnavailable, weekly.Status)
	require.Contains(t, weekly.Reason, "not linked")

	require.Equal(t, analysis.StatusUnavailable, f.analytics.Fitness(ctx, 1).Status)
	require.Equal(t, analysis.StatusUnavailable, f.analytics.RunnerScore(ctx, 1).Status)
	require.Equal(t, analysis.StatusUnavailable, f.analytics.Predictions(ctx, 1).Status)

	// Profile still falls back to defaults so planning keeps working
	p, err := f.analytics.Profile(ctx, 1)
	require.NoError(t, err)
	require.True(t, p.UsedDefaults)
	_, err = f.db.GetProfile(ctx, 1)
	require.ErrorIs(t, err, store.ErrProfileNotFound)
}

func TestAnalyticsNewUser(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	require.Equal(t, analysis.StatusInsufficientData, f.analytics.Weekly(ctx, 1).Status)

	score := f.analytics.RunnerScore(ctx, 1)
	require.True(t, score.OK())
	require.Equal(t, analysis.DefaultRunnerScore().Total, score.Value.Total)

	preds := f.analytics.Predictions(ctx, 1)
	require.Equal(t, analysis.StatusInsufficientData, preds.Status)
}

func TestAnalyticsWithHistory(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	seedHistory(t, f.db)

	weekly := f.analytics.Weekly(ctx, 1)
	require.True(t, weekly.OK())
	require.Len(t, weekly.Value.Weeks, 8)

	require.True(t, f.analytics.Predictions(ctx, 1).OK())
	require.True(t, f.analytics.Form(ctx, 1).OK())

	p, err := f.analytics.Profile(ctx, 1)
	require.NoError(t, err)
	require.False(t, p.UsedDefaults)
	require.InDelta(t, 26.25, p.WeeklyKm, 0.06)

	// Cached until stale
	cached, err := f.db.GetProfile(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, p.WeeklyKm, cached.WeeklyKm)
}

func TestAnalyticsUnits(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	u, err := f.analytics.Units(ctx, 1)
	require.NoError(t, err)
	require.False(t, u.IsMiles())

	require.NoError(t, f.db.UpsertUser(ctx, &store.User{ID: 1, Name: "Sam", DistanceUnit: "mi", PaceUnit: "min/mi"}))
	u, err = f.analytics.Units(ctx, 1)
	require.NoError(t, err)
	require.True(t, u.IsMiles())
}

func TestGeneratePlan(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	seedHistory(t, f.db)

	req := plan.Request{Goal: plan.Goal{Type: plan.Goal10K}}
	sk, err := f.plans.Generate(ctx, 1, req)
	require.NoError(t, err)
	require.NotEmpty(t, sk.Plan.ID)
	require.Equal(t, []string{sk.Plan.ID}, f.queue.ids)

	stored, err := f.db.ActivePlan(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, sk.Plan.ID, stored.ID)
	require.Len(t, stored.Weeks, sk.Plan.TotalWeeks)
	require.Equal(t, store.EnrichPending, stored.EnrichmentStatus)

	// A second plan archives the first
	f.queue.full = true
	second, err := f.plans.Generate(ctx, 1, plan.Request{Goal: plan.Goal{Type: plan.Goal5K}})
	require.NoError(t, err, "a full queue leaves the plan for the sweep")
	first, err := f.db.GetPlan(ctx, 1, sk.Plan.ID)
	require.NoError(t, err)
	require.Equal(t, store.PlanArchived, first.Status)

	active, err := f.db.ActivePlan(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, second.Plan.ID, active.ID)
}

func TestGeneratePlanInvalidGoal(t *testing.T) {
	f := setup(t, nil)
	past := testNow.AddDate(0, 0, -3)

	_, err := f.plans.Generate(context.Background(), 1, plan.Request{Goal: plan.Goal{Type: plan.GoalMarathon, RaceDate: &past}})
	require.ErrorIs(t, err, plan.ErrInvalidGoal)
	require.Empty(t, f.queue.ids)
}

func TestCheckConflicts(t *testing.T) {
	f := setup(t, nil)
	a := testNow.AddDate(0, 0, 60)
	b := testNow.AddDate(0, 0, 60)

	report, err := f.plans.CheckConflicts(
		plan.Goal{Type: plan.GoalHalf, RaceDate: &a},
		&plan.Goal{Type: plan.GoalMarathon, RaceDate: &b},
	)
	require.NoError(t, err)
	require.True(t, report.HasErrors())

	_, err = f.plans.CheckConflicts(plan.Goal{Type: "mile"}, nil)
	require.ErrorIs(t, err, plan.ErrInvalidGoal)
}

func TestActivePlanAdvances(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	sk, err := f.plans.Generate(ctx, 1, plan.Request{Goal: plan.Goal{Type: plan.Goal5K}})
	require.NoError(t, err)
	require.True(t, sk.Plan.StartDate.Equal(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))

	f.plans.now = func() time.Time { return testNow.AddDate(0, 0, 9) }
	p, err := f.plans.ActivePlan(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, p.CurrentWeek)

	stored, err := f.db.GetPlan(ctx, 1, p.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stored.CurrentWeek)

	f.plans.now = func() time.Time { return testNow.AddDate(0, 0, 7*sk.Plan.TotalWeeks+1) }
	p, err = f.plans.ActivePlan(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, store.PlanCompleted, p.Status)
	require.Equal(t, sk.Plan.TotalWeeks, p.CurrentWeek)

	_, err = f.plans.ActivePlan(ctx, 1)
	require.ErrorIs(t, err, store.ErrPlanNotFound)
}

// runOnHalfTheDays logs a run for every other training day due by 'until'
func runOnHalfTheDays(t *testing.T, db *store.DB, p *store.TrainingPlan, until time.Time) (logged, due int) {
	t.Helper()
	var acts []store.Activity
	for _, w := range p.Weeks {
		for _, d := range w.Days {
			if !plan.IsTraining(d.Type) || d.Date.After(until) {
				continue
			}
			if due%2 == 0 {
				start := d.Date.Add(7 * time.Hour)
				acts = append(acts, run(1000+int64(due), start, d.DistanceKm, 5.5))
				logged++
			}
			due++
		}
	}
	require.NoError(t, db.UpsertActivities(context.Background(), acts))
	return logged, due
}

func TestAdherenceLinksActivities(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	sk, err := f.plans.Generate(ctx, 1, plan.Request{Goal: plan.Goal{Type: plan.GoalHalf}})
	require.NoError(t, err)

	today := testNow.AddDate(0, 0, 9)
	f.plans.now = func() time.Time { return today }
	logged, due := runOnHalfTheDays(t, f.db, sk.Plan, today)
	require.Positive(t, logged)

	report, err := f.plans.Adherence(ctx, 1, sk.Plan.ID)
	require.NoError(t, err)
	require.Equal(t, logged, report.Matched)
	require.Equal(t, logged, report.Stats.Completed)
	require.Equal(t, due, report.Stats.Due)
	require.NotEmpty(t, report.Upcoming)

	// Matches are persisted and not counted twice
	report, err = f.plans.Adherence(ctx, 1, sk.Plan.ID)
	require.NoError(t, err)
	require.Zero(t, report.Matched)
	require.Equal(t, logged, report.Stats.Completed)

	_, err = f.plans.Adherence(ctx, 2, sk.Plan.ID)
	require.ErrorIs(t, err, store.ErrPlanNotFound)
}

func TestUpdateDayStatus(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	sk, err := f.plans.Generate(ctx, 1, plan.Request{Goal: plan.Goal{Type: plan.Goal5K}})
	require.NoError(t, err)
	day := sk.Plan.Weeks[0].Days[0]

	require.ErrorIs(t, f.plans.UpdateDayStatus(ctx, 1, sk.Plan.ID, day.ID, "done", nil), ErrInvalidDayStatus)
	require.NoError(t, f.plans.UpdateDayStatus(ctx, 1, sk.Plan.ID, day.ID, store.DaySkipped, nil))
	require.ErrorIs(t, f.plans.UpdateDayStatus(ctx, 2, sk.Plan.ID, day.ID, store.DaySkipped, nil), store.ErrDayNotFound)

	stored, err := f.db.GetPlan(ctx, 1, sk.Plan.ID)
	require.NoError(t, err)
	require.Equal(t, store.DaySkipped, stored.Weeks[0].Days[0].Status)
}

func TestSoftenNextWeek(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	sk, err := f.plans.Generate(ctx, 1, plan.Request{Goal: plan.Goal{Type: plan.GoalMarathon}, IncludeLongRun: true})
	require.NoError(t, err)
	original := sk.Plan.Weeks[2]

	today := testNow.AddDate(0, 0, 9)
	f.plans.now = func() time.Time { return today }
	runOnHalfTheDays(t, f.db, sk.Plan, today)

	res, err := f.plans.Soften(ctx, 1, sk.Plan.ID)
	require.NoError(t, err)
	require.True(t, res.Adjusted)
	require.Equal(t, plan.SoftenFactor(res.Adherence.Rate), res.Factor)
	require.Less(t, res.Factor, 1.0)
	require.Equal(t, 3, res.Week.Number)
	require.Less(t, res.Week.TotalKm, original.TotalKm)

	stored, err := f.db.GetPlan(ctx, 1, sk.Plan.ID)
	require.NoError(t, err)
	require.Equal(t, res.Week.TotalKm, stored.Weeks[2].TotalKm)
	require.Equal(t, store.EnrichPending, stored.Weeks[2].EnrichmentStatus)
	require.Equal(t, store.EnrichPending, stored.EnrichmentStatus)
	require.Equal(t, []string{sk.Plan.ID, sk.Plan.ID}, f.queue.ids)
}

func TestSoftenKeepsWeeklyGrowthInBounds(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	g := plan.DefaultGuardrails()

	sk, err := f.plans.Generate(ctx, 1, plan.Request{Goal: plan.Goal{Type: plan.GoalMarathon}, IncludeLongRun: true})
	require.NoError(t, err)
	require.False(t, sk.Plan.Weeks[1].IsRecovery)
	require.False(t, sk.Plan.Weeks[2].IsRecovery)

	// Friday of week 1, so week 2 is softened and week 3 must follow it down
	today := testNow.AddDate(0, 0, 4)
	f.plans.now = func() time.Time { return today }
	runOnHalfTheDays(t, f.db, sk.Plan, today)

	res, err := f.plans.Soften(ctx, 1, sk.Plan.ID)
	require.NoError(t, err)
	require.True(t, res.Adjusted)
	require.Equal(t, 2, res.Week.Number)
	require.Equal(t, []int{3}, res.Capped)

	stored, err := f.db.GetPlan(ctx, 1, sk.Plan.ID)
	require.NoError(t, err)
	for i := 1; i < len(stored.Weeks); i++ {
		prev, w := stored.Weeks[i-1], stored.Weeks[i]
		if prev.IsRecovery {
			continue
		}
		require.LessOrEqualf(t, w.TotalKm, prev.TotalKm*(1+g.IncreaseCeiling)+1e-9,
			"week %d grows from %.1f to %.1f km", w.Number, prev.TotalKm, w.TotalKm)
	}
	require.Equal(t, store.EnrichPending, stored.Weeks[2].EnrichmentStatus)
	require.Less(t, stored.Weeks[2].TotalKm, sk.Plan.Weeks[2].TotalKm)
}

func TestSoftenWithoutDueDays(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	// Plan starts next Monday, so nothing is due yet
	f.plans.now = func() time.Time { return testNow.AddDate(0, 0, 1) }
	sk, err := f.plans.Generate(ctx, 1, plan.Request{Goal: plan.Goal{Type: plan.Goal5K}})
	require.NoError(t, err)

	res, err := f.plans.Soften(ctx, 1, sk.Plan.ID)
	require.NoError(t, err)
	require.False(t, res.Adjusted)
	require.Equal(t, 1.0, res.Factor)
	require.Len(t, f.queue.ids, 1)
}

func TestEnrichAndArchive(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	sk, err := f.plans.Generate(ctx, 1, plan.Request{Goal: plan.Goal{Type: plan.Goal5K}})
	require.NoError(t, err)

	require.NoError(t, f.plans.Enrich(ctx, 1, sk.Plan.ID))
	require.Len(t, f.queue.ids, 2)
	require.ErrorIs(t, f.plans.Enrich(ctx, 1, "missing"), store.ErrPlanNotFound)

	f.queue.full = true
	require.ErrorIs(t, f.plans.Enrich(ctx, 1, sk.Plan.ID), ErrQueueFull)

	require.NoError(t, f.plans.Archive(ctx, 1, sk.Plan.ID))
	_, err = f.db.ActivePlan(ctx, 1)
	require.ErrorIs(t, err, store.ErrPlanNotFound)
}

func newChat(f *fixture, r *fakeReplier) *ChatService {
	cfg := config.DefaultConfig()
	c := NewChatService(f.db, f.analytics, f.plans, r, &cfg, nil)
	c.now = func() time.Time { return testNow }
	return c
}

func TestChatTurn(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	seedHistory(t, f.db)
	_, err := f.plans.Generate(ctx, 1, plan.Request{Goal: plan.Goal{Type: plan.Goal10K}})
	require.NoError(t, err)

	r := &fakeReplier{configured: true, reply: "  Keep the easy days easy.  "}
	chat := newChat(f, r)

	viewing := int64(24)
	resp, err := chat.Turn(ctx, 1, ChatRequest{Message: "How was my last run?", ViewingActivityID: &viewing})
	require.NoError(t, err)
	require.False(t, resp.Degraded)
	require.Equal(t, "Keep the easy days easy.", resp.Reply)
	require.NotEmpty(t, resp.ConversationID)

	require.Len(t, r.got, 2)
	system := r.got[0].Content
	require.Equal(t, llm.RoleSystem, r.got[0].Role)
	require.Contains(t, system, "## Runner score")
	require.Contains(t, system, coach.CurrentActivityStart)
	require.True(t, strings.HasSuffix(system, coach.CurrentActivityEnd))
	require.Equal(t, "How was my last run?", r.got[1].Content)

	msgs, err := f.db.RecentMessages(ctx, resp.ConversationID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, store.RoleAssistant, msgs[1].Role)

	// The next turn carries the history
	_, err = chat.Turn(ctx, 1, ChatRequest{ConversationID: resp.ConversationID, Message: "And tomorrow?"})
	require.NoError(t, err)
	require.Len(t, r.got, 4)
	require.Equal(t, "How was my last run?", r.got[1].Content)
	require.Equal(t, "Keep the easy days easy.", r.got[2].Content)
}

func TestChatTurnAdvancesPlanWeek(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	seedHistory(t, f.db)
	sk, err := f.plans.Generate(ctx, 1, plan.Request{Goal: plan.Goal{Type: plan.Goal10K}})
	require.NoError(t, err)
	require.Equal(t, 1, sk.Plan.CurrentWeek)

	later := testNow.AddDate(0, 0, 24)
	f.plans.now = func() time.Time { return later }
	r := &fakeReplier{configured: true, reply: "ok"}
	chat := newChat(f, r)
	chat.now = func() time.Time { return later }

	_, err = chat.Turn(ctx, 1, ChatRequest{Message: "What's this week?"})
	require.NoError(t, err)
	require.Contains(t, r.got[0].Content, fmt.Sprintf("Week 4 of %d", sk.Plan.TotalWeeks))

	stored, err := f.db.ActivePlan(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 4, stored.CurrentWeek)
}

func TestChatTurnFetchesHistoryOnce(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	seedHistory(t, db)
	counter := &countingProvider{Provider: provider.NewStore(db)}
	f := setup(t, counter)
	ctx := context.Background()

	r := &fakeReplier{configured: true, reply: "ok"}
	_, err = newChat(f, r).Turn(ctx, 1, ChatRequest{Message: "hi"})
	require.NoError(t, err)
	require.Equal(t, 1, counter.calls)

	// The profile built from that history was cached
	p, err := f.db.GetProfile(ctx, 1)
	require.NoError(t, err)
	require.False(t, p.UsedDefaults)
}

func TestChatTurnDegraded(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	for _, r := range []*fakeReplier{
		{configured: false},
		{configured: true, err: errors.New("upstream timeout")},
		{configured: true, reply: "   "},
	} {
		resp, err := newChat(f, r).Turn(ctx, 1, ChatRequest{Message: "hi"})
		require.NoError(t, err)
		require.True(t, resp.Degraded)
		require.Equal(t, FallbackReply, resp.Reply)

		// Only the user's message is stored
		msgs, err := f.db.RecentMessages(ctx, resp.ConversationID, 10)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.Equal(t, store.RoleUser, msgs[0].Role)
	}
}

func TestChatTurnErrors(t *testing.T) {
	f := setup(t, nil)
	chat := newChat(f, &fakeReplier{configured: true, reply: "ok"})

	_, err := chat.Turn(context.Background(), 1, ChatRequest{Message: "  "})
	require.ErrorIs(t, err, ErrEmptyMessage)

	_, err = chat.Turn(context.Background(), 1, ChatRequest{ConversationID: "nope", Message: "hi"})
	require.ErrorIs(t, err, store.ErrConversationNotFound)
}

func TestChatTurnProviderDown(t *testing.T) {
	f := setup(t, failingProvider{err: errors.New("strava 503")})
	r := &fakeReplier{configured: true, reply: "ok"}

	resp, err := newChat(f, r).Turn(context.Background(), 1, ChatRequest{Message: "hi"})
	require.NoError(t, err)
	require.False(t, resp.Degraded)
	require.NotContains(t, r.got[0].Content, "## Runner score")
}

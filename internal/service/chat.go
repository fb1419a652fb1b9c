package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"runcoach/internal/coach"
	"runcoach/internal/config"
	"runcoach/internal/llm"
	"runcoach/internal/plan"
	"runcoach/internal/store"
	"runcoach/internal/units"
)

// ErrEmptyMessage is returned for a chat turn without text
var ErrEmptyMessage = errors.New("message must not be empty")

const coachPrompt = `You are a friendly, knowledgeable running coach. Answer using the athlete
snapshot below. Prefer the athlete's own numbers over generic advice, keep
answers short and practical, and never recommend jumps in weekly volume of
more than 10%. When a section is missing, the data is not available; say so
rather than guessing.`

// ChatStore is the persistence a chat turn reads and appends to
type ChatStore interface {
	CreateConversation(ctx context.Context, c *store.Conversation) error
	GetConversation(ctx context.Context, userID int64, id string) (*store.Conversation, error)
	AppendMessage(ctx context.Context, m *store.Message) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]store.Message, error)
	GetActivity(ctx context.Context, userID, id int64) (*store.Activity, error)
}

// ActivePlanner returns the user's active plan with its current week up to date
type ActivePlanner interface {
	ActivePlan(ctx context.Context, userID int64) (*store.TrainingPlan, error)
}

// Replier produces the coach's answer
type Replier interface {
	Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error)
	IsConfigured() bool
}

// ChatRequest is one user message
type ChatRequest struct {
	ConversationID    string `json:"conversation_id,omitempty"`
	Message           string `json:"message"`
	ViewingActivityID *int64 `json:"viewing_activity_id,omitempty"`
}

// ChatResponse is the coach's reply. Degraded replies are not stored.
type ChatResponse struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
	Degraded       bool   `json:"degraded"`
}

// ChatService runs conversational coaching turns
type ChatService struct {
	store     ChatStore
	analytics *AnalyticsService
	plans     ActivePlanner
	llm       Replier
	cfg       config.CoachConfig
	temp      float64
	logger    *slog.Logger
	now       func() time.Time
}

// NewChatService creates a chat service
func NewChatService(s ChatStore, analytics *AnalyticsService, plans ActivePlanner, replier Replier, cfg *config.Config, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		store:     s,
		analytics: analytics,
		plans:     plans,
		llm:       replier,
		cfg:       cfg.Coach,
		temp:      cfg.LLM.Temperature,
		logger:    logger,
		now:       time.Now,
	}
}

// Turn stores the user's message, builds the athlete context and asks the model
// for a reply. When the model fails a fallback reply is returned instead.
func (s *ChatService) Turn(ctx context.Context, userID int64, req ChatRequest) (*ChatResponse, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := s.conversation(ctx, userID, req.ConversationID)
	if err != nil {
		return nil, err
	}
	history, err := s.store.RecentMessages(ctx, conv.ID, s.cfg.HistoryMessages)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if err := s.store.AppendMessage(ctx, &store.Message{ConversationID: conv.ID, Role: store.RoleUser, Content: text}); err != nil {
		return nil, fmt.Errorf("saving message: %w", err)
	}

	in, err := s.gather(ctx, userID, req.ViewingActivityID)
	if err != nil {
		return nil, err
	}
	snapshot := coach.Assemble(in, s.cfg.ContextBudget)

	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: coachPrompt + "\n\n" + snapshot})
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: text})

	resp := &ChatResponse{ConversationID: conv.ID}
	reply, err := s.reply(ctx, msgs)
	if err != nil {
		s.logger.Warn("coach reply failed, returning fallback", "user_id", userID, "conversation_id", conv.ID, "error", err)
		resp.Reply, resp.Degraded = FallbackReply, true
		return resp, nil
	}

	// The reply is kept even if the caller has gone away.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.store.AppendMessage(pctx, &store.Message{ConversationID: conv.ID, Role: store.RoleAssistant, Content: reply}); err != nil {
		return nil, fmt.Errorf("saving reply: %w", err)
	}
	resp.Reply = reply
	return resp, nil
}

func (s *ChatService) conversation(ctx context.Context, userID int64, id string) (*store.Conversation, error) {
	if id != "" {
		return s.store.GetConversation(ctx, userID, id)
	}
	c := &store.Conversation{ID: uuid.NewString(), UserID: userID, CreatedAt: s.now().UTC()}
	if err := s.store.CreateConversation(ctx, c); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return c, nil
}

func (s *ChatService) reply(ctx context.Context, msgs []llm.Message) (string, error) {
	if !s.llm.IsConfigured() {
		return "", llm.ErrNotConfigured
	}
	if s.cfg.ReplyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ReplyTimeout)
		defer cancel()
	}
	reply, err := s.llm.Complete(ctx, msgs, llm.Options{Temperature: s.temp})
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", errors.New("empty reply")
	}
	return reply, nil
}

// gather loads every context source concurrently. Only persistence errors
// fail the turn; missing data leaves its section out.
func (s *ChatService) gather(ctx context.Context, userID int64, viewing *int64) (coach.Input, error) {
	now := s.now()
	in := coach.Input{Now: now}

	var (
		history History
		u       units.Units
		active  *store.TrainingPlan
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		history = s.analytics.History(gctx, userID)
		return nil
	})
	g.Go(func() error {
		var err error
		u, err = s.analytics.Units(gctx, userID)
		return err
	})
	g.Go(func() error {
		p, err := s.plans.ActivePlan(gctx, userID)
		if errors.Is(err, store.ErrPlanNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("loading active plan: %w", err)
		}
		active = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return in, err
	}

	profile, err := s.analytics.ProfileFrom(ctx, userID, history)
	if err != nil {
		return in, err
	}

	in.Units = u
	in.Profile = profile
	in.Recent = history.Activities
	in.Score = ScoreFrom(history, now)
	in.Fitness = FitnessFrom(history)
	in.Efficiency = EfficiencyFrom(history)
	in.Predictions = PredictionsFrom(history, now)
	if form := FormFrom(history, now); form.OK() {
		in.Form = form.Value
	}
	if active != nil {
		stats := plan.Adherence(active.Weeks, now)
		in.Plan = active
		in.Adherence = &stats
		in.Upcoming = plan.Upcoming(active.Weeks, now, UpcomingWorkouts)
	}

	if viewing != nil {
		current, err := s.currentActivity(ctx, userID, *viewing, history.Activities)
		if err != nil {
			return in, err
		}
		in.Current = current
	}
	return in, nil
}

// currentActivity finds the activity being viewed in the fetched history,
// falling back to the store
func (s *ChatService) currentActivity(ctx context.Context, userID, id int64, acts []store.Activity) (*store.Activity, error) {
	for i := range acts {
		if acts[i].ID == id {
			return &acts[i], nil
		}
	}
	a, err := s.store.GetActivity(ctx, userID, id)
	if errors.Is(err, store.ErrActivityNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading activity: %w", err)
	}
	return a, nil
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"runcoach/internal/auth"
	"runcoach/internal/store"
	"runcoach/internal/strava"
)

// StravaStore is the persistence the Strava provider needs: tokens, the
// activity cache and the per-user sync watermark.
type StravaStore interface {
	auth.TokenStore
	ActivityLister
	UpsertActivities(ctx context.Context, acts []store.Activity) error
	LastSync(ctx context.Context, userID int64, key string) (time.Time, error)
	MarkSynced(ctx context.Context, userID int64, key string, t time.Time) error
}

// Strava fetches new activities from the Strava API, writes them through to
// the store and serves reads from the store.
type Strava struct {
	oauth    *oauth2.Config
	db       StravaStore
	limiter  *strava.RateLimiter
	baseURL  string
	minFetch time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	users map[int64]*sync.Mutex
}

// NewStrava creates a Strava provider. Fetches for one user are serialized and
// skipped entirely when the last one finished less than minFetch ago.
func NewStrava(cfg *oauth2.Config, db StravaStore, minFetch time.Duration, logger *slog.Logger) *Strava {
	if logger == nil {
		logger = slog.Default()
	}
	return &Strava{
		oauth:    cfg,
		db:       db,
		limiter:  strava.NewRateLimiter(),
		baseURL:  strava.BaseURL,
		minFetch: minFetch,
		logger:   logger,
		now:      time.Now,
		users:    make(map[int64]*sync.Mutex),
	}
}

// WithBaseURL points API calls at another root
func (p *Strava) WithBaseURL(u string) *Strava {
	p.baseURL = u
	return p
}

// GetActivities implements Provider
func (p *Strava) GetActivities(ctx context.Context, userID int64, q Query) ([]store.Activity, error) {
	synced, err := p.sync(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotLinked) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		// Serve what is cached; the next request retries the fetch.
		if synced.IsZero() {
			return nil, err
		}
		p.logger.Warn("strava fetch failed, serving cached activities", "user_id", userID, "error", err)
	}
	return p.db.ListActivities(ctx, userID, q.Since, q.Limit)
}

// sync pulls activities newer than the watermark and returns the watermark
// in effect afterwards.
func (p *Strava) sync(ctx context.Context, userID int64) (time.Time, error) {
	lock := p.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	last, err := p.db.LastSync(ctx, userID, store.SyncKeyStravaLastFetch)
	if err != nil {
		return time.Time{}, fmt.Errorf("reading sync state: %w", err)
	}
	now := p.now()
	if !last.IsZero() && now.Sub(last) < p.minFetch {
		return last, nil
	}

	ts, err := auth.UserTokenSource(ctx, p.oauth, p.db, userID)
	if errors.Is(err, store.ErrNoAuth) {
		return last, ErrNotLinked
	}
	if err != nil {
		return last, fmt.Errorf("loading strava tokens: %w", err)
	}

	client := strava.NewClient(ts, p.limiter).WithBaseURL(p.baseURL)
	// One day of overlap catches activities uploaded late.
	after := last
	if !after.IsZero() {
		after = after.Add(-24 * time.Hour)
	}
	fetched, err := client.GetAllActivities(ctx, after, nil)
	if err != nil {
		return last, fmt.Errorf("fetching strava activities: %w", err)
	}

	acts := make([]store.Activity, 0, len(fetched))
	for _, a := range fetched {
		acts = append(acts, a.ToStore(userID))
	}
	if err := p.db.UpsertActivities(ctx, acts); err != nil {
		return last, fmt.Errorf("caching strava activities: %w", err)
	}
	if err := p.db.MarkSynced(ctx, userID, store.SyncKeyStravaLastFetch, now); err != nil {
		return last, fmt.Errorf("updating sync state: %w", err)
	}
	p.logger.Debug("strava sync complete", "user_id", userID, "fetched", len(acts))
	return now, nil
}

func (p *Strava) userLock(userID int64) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.users[userID]
	if !ok {
		l = &sync.Mutex{}
		p.users[userID] = l
	}
	return l
}

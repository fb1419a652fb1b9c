package strava

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Application-wide Strava limits: 100 requests per 15 minutes and 1000 per day.
const (
	defaultShortLimit  = 100
	defaultDailyLimit  = 1000
	defaultMinInterval = 150 * time.Millisecond
	shortWindow        = 15 * time.Minute
)

// window counts requests until its reset time
type window struct {
	limit    int
	used     int
	resetsAt time.Time
	next     func(now time.Time) time.Time
}

func (w *window) roll(now time.Time) {
	if now.After(w.resetsAt) {
		w.used = 0
		w.resetsAt = w.next(now)
	}
}

func (w *window) full() bool { return w.used >= w.limit }

func nextShortReset(now time.Time) time.Time { return now.Add(shortWindow) }

func nextDailyReset(now time.Time) time.Time { return now.Truncate(24 * time.Hour).Add(24 * time.Hour) }

// RateLimiter paces requests against the short and daily windows.
// One limiter is shared by every user's client.
type RateLimiter struct {
	mu          sync.Mutex
	short       window
	daily       window
	minInterval time.Duration
	lastRequest time.Time
}

// NewRateLimiter returns a limiter with Strava's default limits
func NewRateLimiter() *RateLimiter {
	return newRateLimiter(defaultShortLimit, defaultDailyLimit, defaultMinInterval)
}

func newRateLimiter(shortLimit, dailyLimit int, minInterval time.Duration) *RateLimiter {
	now := time.Now()
	return &RateLimiter{
		short:       window{limit: shortLimit, resetsAt: nextShortReset(now), next: nextShortReset},
		daily:       window{limit: dailyLimit, resetsAt: nextDailyReset(now), next: nextDailyReset},
		minInterval: minInterval,
	}
}

// Wait blocks until a request fits both windows and the minimum spacing.
// It returns ctx.Err() if the context ends first.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range []*window{&r.short, &r.daily} {
		w.roll(time.Now())
		if !w.full() {
			continue
		}
		if err := r.sleep(ctx, time.Until(w.resetsAt)); err != nil {
			return err
		}
		w.used = 0
		w.resetsAt = w.next(time.Now())
	}

	if gap := r.minInterval - time.Since(r.lastRequest); gap > 0 {
		if err := r.sleep(ctx, gap); err != nil {
			return err
		}
	}

	r.short.used++
	r.daily.used++
	r.lastRequest = time.Now()
	return nil
}

// sleep releases the lock while waiting. Callers must hold r.mu.
func (r *RateLimiter) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Unlock()
	defer r.mu.Lock()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateFromHeaders syncs usage and limits with the values Strava reports,
// e.g. X-RateLimit-Limit "100,1000" and X-RateLimit-Usage "34,512".
func (r *RateLimiter) UpdateFromHeaders(h http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if short, daily, ok := parsePair(h.Get("X-RateLimit-Usage")); ok {
		r.short.used, r.daily.used = short, daily
	}
	if short, daily, ok := parsePair(h.Get("X-RateLimit-Limit")); ok {
		r.short.limit, r.daily.limit = short, daily
	}
}

func parsePair(v string) (int, int, bool) {
	first, second, found := strings.Cut(v, ",")
	if !found {
		return 0, 0, false
	}
	a, errA := strconv.Atoi(strings.TrimSpace(first))
	b, errB := strconv.Atoi(strings.TrimSpace(second))
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return a, b, true
}

// Status returns the requests left in each window
func (r *RateLimiter) Status() (shortRemaining, dailyRemaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.short.limit - r.short.used, r.daily.limit - r.daily.used
}

// Usage returns the requests made in each window
func (r *RateLimiter) Usage() (shortUsage, dailyUsage int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.short.used, r.daily.used
}

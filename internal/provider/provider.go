// Package provider supplies activity history to the analytics and planning services.
package provider

import (
	"context"
	"errors"
	"sort"
	"time"

	"runcoach/internal/store"
)

// ErrNotLinked is returned when the user has no connected activity source
var ErrNotLinked = errors.New("activity source not linked")

// Query bounds an activity request. Zero values disable each bound.
type Query struct {
	Limit int
	Since time.Time
}

// SinceDays is a Query covering the last n days before now
func SinceDays(now time.Time, n int) Query {
	return Query{Since: now.AddDate(0, 0, -n)}
}

// Provider returns a user's activities, newest first
type Provider interface {
	GetActivities(ctx context.Context, userID int64, q Query) ([]store.Activity, error)
}

// ActivityLister is the store surface the store provider reads from
type ActivityLister interface {
	ListActivities(ctx context.Context, userID int64, since time.Time, limit int) ([]store.Activity, error)
}

// Store serves activities already in the local database
type Store struct {
	db ActivityLister
}

// NewStore creates a store-backed provider
func NewStore(db ActivityLister) *Store {
	return &Store{db: db}
}

// GetActivities implements Provider
func (s *Store) GetActivities(ctx context.Context, userID int64, q Query) ([]store.Activity, error) {
	return s.db.ListActivities(ctx, userID, q.Since, q.Limit)
}

// apply filters, orders newest first and caps acts per q
func apply(acts []store.Activity, q Query) []store.Activity {
	out := make([]store.Activity, 0, len(acts))
	for _, a := range acts {
		if !q.Since.IsZero() && a.StartDate.Before(q.Since) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartDate.After(out[j].StartDate)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

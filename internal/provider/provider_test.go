package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"runcoach/internal/store"
	"runcoach/internal/strava"
)

func setupStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func run(id int64, start time.Time, km float64) store.Activity {
	return store.Activity{
		ID:             id,
		UserID:         1,
		Name:           "Run",
		Type:           "Run",
		StartDate:      start,
		StartDateLocal: start,
		Distance:       km * 1000,
		MovingTime:     int(km * 330),
	}
}

func TestStoreProvider(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpsertActivities(ctx, []store.Activity{
		run(1, now.AddDate(0, 0, -40), 5),
		run(2, now.AddDate(0, 0, -10), 8),
		run(3, now.AddDate(0, 0, -2), 10),
	}))

	p := NewStore(db)

	acts, err := p.GetActivities(ctx, 1, SinceDays(now, 30))
	require.NoError(t, err)
	require.Len(t, acts, 2)
	require.Equal(t, int64(3), acts[0].ID)

	acts, err = p.GetActivities(ctx, 1, Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, acts, 1)
	require.Equal(t, int64(3), acts[0].ID)
}

func TestApply(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	acts := []store.Activity{
		run(1, now.AddDate(0, 0, -3), 5),
		run(2, now.AddDate(0, 0, -1), 5),
		run(3, now.AddDate(0, 0, -9), 5),
	}

	got := apply(acts, Query{Since: now.AddDate(0, 0, -5), Limit: 5})
	require.Len(t, got, 2)
	require.Equal(t, int64(2), got[0].ID)
	require.Equal(t, int64(1), got[1].ID)
	// input order untouched
	require.Equal(t, int64(1), acts[0].ID)
}

// stravaServer serves both the token endpoint and the activities list
func stravaServer(t *testing.T, fetches *atomic.Int32) (*oauth2.Config, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "fresh",
				"refresh_token": "refresh-2",
				"token_type":    "Bearer",
				"expires_in":    21600,
			})
		case "/athlete/activities":
			fetches.Add(1)
			if r.URL.Query().Get("page") != "1" {
				_ = json.NewEncoder(w).Encode([]strava.Activity{})
				return
			}
			start := time.Now().UTC().Add(-48 * time.Hour)
			_ = json.NewEncoder(w).Encode([]strava.Activity{
				{ID: 501, Name: "Easy", SportType: "Run", StartDate: start, StartDateLocal: start, Distance: 8000, MovingTime: 2640},
				{ID: 502, Name: "Spin", SportType: "Ride", StartDate: start.Add(time.Hour), StartDateLocal: start.Add(time.Hour), Distance: 20000, MovingTime: 3600},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	cfg := &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
	}
	return cfg, srv.URL
}

func TestStravaProvider(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	var fetches atomic.Int32
	cfg, base := stravaServer(t, &fetches)

	p := NewStrava(cfg, db, time.Hour, nil).WithBaseURL(base)

	t.Run("not linked", func(t *testing.T) {
		_, err := p.GetActivities(ctx, 1, Query{})
		require.ErrorIs(t, err, ErrNotLinked)
	})

	require.NoError(t, db.SaveAuth(ctx, &store.Auth{
		UserID:       1,
		AthleteID:    99,
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}))

	t.Run("fetches and caches", func(t *testing.T) {
		acts, err := p.GetActivities(ctx, 1, Query{})
		require.NoError(t, err)
		require.Len(t, acts, 2)
		require.Equal(t, int64(502), acts[0].ID)
		require.Equal(t, "Ride", acts[0].Type)
		require.EqualValues(t, 1, fetches.Load())

		a, err := db.GetAuth(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, "fresh", a.AccessToken)

		last, err := db.LastSync(ctx, 1, store.SyncKeyStravaLastFetch)
		require.NoError(t, err)
		require.False(t, last.IsZero())
	})

	t.Run("recent sync serves cache", func(t *testing.T) {
		acts, err := p.GetActivities(ctx, 1, Query{Limit: 1})
		require.NoError(t, err)
		require.Len(t, acts, 1)
		require.EqualValues(t, 1, fetches.Load())
	})
}

func TestStravaProviderServesCacheOnFailure(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	require.NoError(t, db.SaveAuth(ctx, &store.Auth{UserID: 1, AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, db.UpsertActivities(ctx, []store.Activity{run(1, time.Now().Add(-time.Hour), 5)}))

	p := NewStrava(&oauth2.Config{}, db, time.Minute, nil).WithBaseURL(srv.URL)

	// Never synced: the error surfaces
	_, err := p.GetActivities(ctx, 1, Query{})
	require.Error(t, err)

	require.NoError(t, db.MarkSynced(ctx, 1, store.SyncKeyStravaLastFetch, time.Now().Add(-time.Hour)))
	acts, err := p.GetActivities(ctx, 1, Query{})
	require.NoError(t, err)
	require.Len(t, acts, 1)
}

func TestFitProvider(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	p := NewFit(dir, nil)

	_, err := p.GetActivities(ctx, 5, Query{})
	require.ErrorIs(t, err, ErrNotLinked)

	userDir := filepath.Join(dir, "5")
	require.NoError(t, os.MkdirAll(userDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "broken.fit"), []byte("garbage"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "notes.txt"), []byte("ignored"), 0o644))

	acts, err := p.GetActivities(ctx, 5, Query{})
	require.NoError(t, err)
	require.Empty(t, acts)

	// The broken file is decoded once and then served from the cache
	require.Len(t, p.cache, 1)
}

package store

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Each pooled connection would get its own in-memory database
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	if err := migrate(sqlDB); err != nil {
		sqlDB.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() { sqlDB.Close() })
	return &DB{sqlDB}
}

func floatPtr(f float64) *float64 { return &f }

func TestActivities(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		a := &Activity{
			ID:               int64(i + 1),
			UserID:           7,
			Name:             "Morning Run",
			Type:             "Run",
			StartDate:        base.AddDate(0, 0, i),
			StartDateLocal:   base.AddDate(0, 0, i).Add(-5 * time.Hour),
			Distance:         5000,
			MovingTime:       1500,
			ElapsedTime:      1550,
			AverageSpeed:     3.33,
			AverageHeartrate: floatPtr(150),
		}
		if err := db.UpsertActivity(ctx, a); err != nil {
			t.Fatalf("UpsertActivity() error = %v", err)
		}
	}
	// Another user's activity must not leak
	if err := db.UpsertActivity(ctx, &Activity{ID: 1, UserID: 8, Name: "Other", Type: "Run", StartDate: base, Distance: 1000, MovingTime: 300}); err != nil {
		t.Fatalf("UpsertActivity() error = %v", err)
	}

	t.Run("ListActivities returns newest first", func(t *testing.T) {
		got, err := db.ListActivities(ctx, 7, time.Time{}, 0)
		if err != nil {
			t.Fatalf("ListActivities() error = %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		if got[0].ID != 3 || got[2].ID != 1 {
			t.Errorf("order = %d..%d, want 3..1", got[0].ID, got[2].ID)
		}
		if got[0].AverageHeartrate == nil || *got[0].AverageHeartrate != 150 {
			t.Errorf("AverageHeartrate not round-tripped")
		}
		if got[0].AverageCadence != nil {
			t.Errorf("AverageCadence should be nil")
		}
		if got[0].StartDateLocal.Hour() != 5 {
			t.Errorf("StartDateLocal hour = %d, want 5", got[0].StartDateLocal.Hour())
		}
	})

	t.Run("ListActivities honours since and limit", func(t *testing.T) {
		got, err := db.ListActivities(ctx, 7, base.AddDate(0, 0, 1), 10)
		if err != nil {
			t.Fatalf("ListActivities() error = %v", err)
		}
		if len(got) != 2 {
			t.Errorf("since filter len = %d, want 2", len(got))
		}
		got, err = db.ListActivities(ctx, 7, time.Time{}, 1)
		if err != nil {
			t.Fatalf("ListActivities() error = %v", err)
		}
		if len(got) != 1 {
			t.Errorf("limit len = %d, want 1", len(got))
		}
	})

	t.Run("UpsertActivity updates existing", func(t *testing.T) {
		if err := db.UpsertActivity(ctx, &Activity{ID: 2, UserID: 7, Name: "Renamed", Type: "Run", StartDate: base.AddDate(0, 0, 1), Distance: 6000, MovingTime: 1800}); err != nil {
			t.Fatalf("UpsertActivity() error = %v", err)
		}
		got, err := db.GetActivity(ctx, 7, 2)
		if err != nil {
			t.Fatalf("GetActivity() error = %v", err)
		}
		if got.Name != "Renamed" || got.Distance != 6000 {
			t.Errorf("got %q %.0f, want Renamed 6000", got.Name, got.Distance)
		}
		n, _ := db.CountActivities(ctx, 7)
		if n != 3 {
			t.Errorf("CountActivities() = %d, want 3", n)
		}
	})

	t.Run("GetActivity not found", func(t *testing.T) {
		_, err := db.GetActivity(ctx, 7, 999)
		if err != ErrActivityNotFound {
			t.Errorf("error = %v, want ErrActivityNotFound", err)
		}
	})

	t.Run("UpsertActivities batch", func(t *testing.T) {
		batch := []Activity{
			{ID: 10, UserID: 9, Name: "A", Type: "Run", StartDate: base, Distance: 1000, MovingTime: 300},
			{ID: 11, UserID: 9, Name: "B", Type: "Ride", StartDate: base, Distance: 20000, MovingTime: 3600},
		}
		if err := db.UpsertActivities(ctx, batch); err != nil {
			t.Fatalf("UpsertActivities() error = %v", err)
		}
		n, _ := db.CountActivities(ctx, 9)
		if n != 2 {
			t.Errorf("CountActivities() = %d, want 2", n)
		}
	})
}

func TestAuth(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetAuth(ctx, 1); err != ErrNoAuth {
		t.Fatalf("GetAuth() error = %v, want ErrNoAuth", err)
	}

	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := db.SaveAuth(ctx, &Auth{UserID: 1, AthleteID: 42, AccessToken: "a", RefreshToken: "r", ExpiresAt: expires}); err != nil {
		t.Fatalf("SaveAuth() error = %v", err)
	}
	if err := db.UpdateTokens(ctx, 1, "a2", "r2", expires.Add(time.Hour)); err != nil {
		t.Fatalf("UpdateTokens() error = %v", err)
	}

	got, err := db.GetAuth(ctx, 1)
	if err != nil {
		t.Fatalf("GetAuth() error = %v", err)
	}
	if got.AccessToken != "a2" || got.RefreshToken != "r2" || got.AthleteID != 42 {
		t.Errorf("got %+v", got)
	}
	if !got.ExpiresAt.Equal(expires.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, expires.Add(time.Hour))
	}

	if err := db.UpdateTokens(ctx, 2, "x", "y", expires); err != ErrNoAuth {
		t.Errorf("UpdateTokens() for unknown user error = %v, want ErrNoAuth", err)
	}
}

func TestUsers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetUser(ctx, 1); err != ErrUserNotFound {
		t.Fatalf("GetUser() error = %v, want ErrUserNotFound", err)
	}
	if err := db.UpsertUser(ctx, &User{ID: 1, Name: "Sam", DistanceUnit: "mi", PaceUnit: "min/mi"}); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	u, err := db.GetUser(ctx, 1)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if u.DistanceUnit != "mi" || u.PaceUnit != "min/mi" {
		t.Errorf("got %+v", u)
	}
}

func TestProfiles(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetProfile(ctx, 1); err != ErrProfileNotFound {
		t.Fatalf("GetProfile() error = %v, want ErrProfileNotFound", err)
	}

	computed := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	p := &AthleteProfile{
		UserID: 1, WeeklyKm: 30, RunsPerWeek: 4, LongestRunKm: 14,
		AvgPaceMinPerKm: 5.8, FastestPaceMinPerKm: 5.0, EasyPaceLow: 6.3, EasyPaceHigh: 7.05,
		ActivityCount: 24, ComputedAt: computed,
	}
	if err := db.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile() error = %v", err)
	}

	p.WeeklyKm = 35
	p.AerobicCapacity = floatPtr(47.5)
	if err := db.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile() overwrite error = %v", err)
	}

	got, err := db.GetProfile(ctx, 1)
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if got.WeeklyKm != 35 {
		t.Errorf("WeeklyKm = %v, want 35", got.WeeklyKm)
	}
	if got.AerobicCapacity == nil || *got.AerobicCapacity != 47.5 {
		t.Errorf("AerobicCapacity not round-tripped")
	}
	if !got.ComputedAt.Equal(computed) {
		t.Errorf("ComputedAt = %v, want %v", got.ComputedAt, computed)
	}
}

func TestConversations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.CreateConversation(ctx, &Conversation{ID: "c1", UserID: 1}); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if _, err := db.GetConversation(ctx, 2, "c1"); err != ErrConversationNotFound {
		t.Errorf("GetConversation() for other user error = %v, want ErrConversationNotFound", err)
	}

	for i, content := range []string{"one", "two", "three", "four"} {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if err := db.AppendMessage(ctx, &Message{ConversationID: "c1", Role: role, Content: content}); err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
	}

	msgs, err := db.RecentMessages(ctx, "c1", 3)
	if err != nil {
		t.Fatalf("RecentMessages() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if msgs[0].Content != "two" || msgs[2].Content != "four" {
		t.Errorf("messages = %q..%q, want two..four", msgs[0].Content, msgs[2].Content)
	}

	if err := db.AppendMessage(ctx, &Message{ConversationID: "c1", Role: "system", Content: "x"}); err == nil {
		t.Error("expected role check to reject system messages")
	}
}

func TestSyncState(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	last, err := db.LastSync(ctx, 7, SyncKeyStravaLastFetch)
	if err != nil {
		t.Fatalf("LastSync() error = %v", err)
	}
	if !last.IsZero() {
		t.Errorf("LastSync() = %v, want zero before first sync", last)
	}

	at := time.Date(2026, 3, 18, 6, 30, 0, 0, time.UTC)
	if err := db.MarkSynced(ctx, 7, SyncKeyStravaLastFetch, at); err != nil {
		t.Fatalf("MarkSynced() error = %v", err)
	}
	if err := db.MarkSynced(ctx, 7, SyncKeyStravaLastFetch, at.Add(time.Hour)); err != nil {
		t.Fatalf("MarkSynced() second call error = %v", err)
	}

	last, err = db.LastSync(ctx, 7, SyncKeyStravaLastFetch)
	if err != nil {
		t.Fatalf("LastSync() error = %v", err)
	}
	if !last.Equal(at.Add(time.Hour)) {
		t.Errorf("LastSync() = %v, want %v", last, at.Add(time.Hour))
	}

	other, _ := db.GetSyncState(ctx, 8, SyncKeyStravaLastFetch)
	if other != "" {
		t.Errorf("sync state leaked across users: %q", other)
	}
}

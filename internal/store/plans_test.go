package store

import (
	"context"
	"testing"
	"time"
)

func testPlan(id string, userID int64, start time.Time) *TrainingPlan {
	race := start.AddDate(0, 0, 13)
	plan := &TrainingPlan{
		ID:               id,
		UserID:           userID,
		Name:             "Spring 10K",
		GoalType:         "10k",
		RaceDate:         &race,
		Experience:       "intermediate",
		Terrain:          "road",
		Mode:             "single",
		StartDate:        start,
		TotalWeeks:       2,
		CurrentWeek:      1,
		Status:           PlanActive,
		EnrichmentStatus: EnrichPending,
		FastestPace:      5.0,
	}
	for w := 0; w < 2; w++ {
		week := PlanWeek{
			Number:           w + 1,
			Phase:            "build",
			StartDate:        start.AddDate(0, 0, 7*w),
			TotalKm:          20,
			EnrichmentStatus: EnrichPending,
		}
		for d := 0; d < 7; d++ {
			typ, dist := "rest", 0.0
			if d%2 == 0 {
				typ, dist = "easy", 5
			}
			week.Days = append(week.Days, PlanDay{
				Date:         start.AddDate(0, 0, 7*w+d),
				Type:         typ,
				DistanceKm:   dist,
				PaceMinPerKm: 6.5,
				Description:  "Easy run",
				Status:       DayPlanned,
			})
		}
		plan.Weeks = append(plan.Weeks, week)
	}
	return plan
}

func TestSaveAndLoadPlan(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	first := testPlan("plan-1", 1, start)
	if err := db.SavePlan(ctx, first); err != nil {
		t.Fatalf("SavePlan() error = %v", err)
	}
	if first.Weeks[0].ID == 0 || first.Weeks[0].Days[0].ID == 0 {
		t.Fatal("SavePlan() should assign week and day IDs")
	}

	second := testPlan("plan-2", 1, start)
	if err := db.SavePlan(ctx, second); err != nil {
		t.Fatalf("SavePlan() error = %v", err)
	}

	t.Run("previous active plan is archived", func(t *testing.T) {
		old, err := db.GetPlan(ctx, 1, "plan-1")
		if err != nil {
			t.Fatalf("GetPlan() error = %v", err)
		}
		if old.Status != PlanArchived {
			t.Errorf("Status = %q, want archived", old.Status)
		}
	})

	t.Run("ActivePlan loads weeks and days", func(t *testing.T) {
		p, err := db.ActivePlan(ctx, 1)
		if err != nil {
			t.Fatalf("ActivePlan() error = %v", err)
		}
		if p.ID != "plan-2" {
			t.Errorf("ID = %q, want plan-2", p.ID)
		}
		if len(p.Weeks) != 2 {
			t.Fatalf("weeks = %d, want 2", len(p.Weeks))
		}
		if len(p.Weeks[1].Days) != 7 {
			t.Errorf("days = %d, want 7", len(p.Weeks[1].Days))
		}
		if p.RaceDate == nil || !p.RaceDate.Equal(start.AddDate(0, 0, 13)) {
			t.Errorf("RaceDate = %v", p.RaceDate)
		}
		if !p.Weeks[1].Days[0].Date.Equal(start.AddDate(0, 0, 7)) {
			t.Errorf("first day of week 2 = %v", p.Weeks[1].Days[0].Date)
		}
	})

	t.Run("other users see nothing", func(t *testing.T) {
		if _, err := db.ActivePlan(ctx, 2); err != ErrPlanNotFound {
			t.Errorf("ActivePlan() error = %v, want ErrPlanNotFound", err)
		}
		if _, err := db.GetPlan(ctx, 2, "plan-2"); err != ErrPlanNotFound {
			t.Errorf("GetPlan() error = %v, want ErrPlanNotFound", err)
		}
	})
}

func TestEnrichmentQueries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	plan := testPlan("plan-1", 1, start)
	if err := db.SavePlan(ctx, plan); err != nil {
		t.Fatalf("SavePlan() error = %v", err)
	}

	ids, err := db.PlansNeedingEnrichment(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("PlansNeedingEnrichment() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "plan-1" {
		t.Fatalf("ids = %v, want [plan-1]", ids)
	}

	week := plan.Weeks[0]
	days := make([]PlanDay, len(week.Days))
	copy(days, week.Days)
	days[0].Description = "Relaxed 5 km on soft surfaces"
	days[0].PaceMinPerKm = 6.4
	if err := db.SaveEnrichedWeek(ctx, week.ID, "Settle into the rhythm", days); err != nil {
		t.Fatalf("SaveEnrichedWeek() error = %v", err)
	}

	pending, err := db.WeeksNeedingEnrichment(ctx, "plan-1")
	if err != nil {
		t.Fatalf("WeeksNeedingEnrichment() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Number != 2 {
		t.Fatalf("pending weeks = %+v, want only week 2", pending)
	}
	if len(pending[0].Days) != 7 {
		t.Errorf("pending week days = %d, want 7", len(pending[0].Days))
	}

	loaded, _ := db.GetPlanByID(ctx, "plan-1")
	if loaded.Weeks[0].Days[0].Description != "Relaxed 5 km on soft surfaces" {
		t.Errorf("description not saved")
	}
	if loaded.Weeks[0].Days[0].DistanceKm != 5 {
		t.Errorf("distance changed to %v", loaded.Weeks[0].Days[0].DistanceKm)
	}

	if err := db.UpdatePlanEnrichment(ctx, "plan-1", EnrichComplete, 2); err != nil {
		t.Fatalf("UpdatePlanEnrichment() error = %v", err)
	}
	ids, _ = db.PlansNeedingEnrichment(ctx, time.Now().Add(-time.Hour))
	if len(ids) != 0 {
		t.Errorf("complete plan still listed: %v", ids)
	}

	if err := db.UpdatePlanEnrichment(ctx, "missing", EnrichComplete, 0); err != ErrPlanNotFound {
		t.Errorf("UpdatePlanEnrichment() missing error = %v, want ErrPlanNotFound", err)
	}
}

func TestDayStatusAndReplaceWeek(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	plan := testPlan("plan-1", 1, start)
	if err := db.SavePlan(ctx, plan); err != nil {
		t.Fatalf("SavePlan() error = %v", err)
	}
	day := plan.Weeks[0].Days[0]
	actID := int64(55)

	if err := db.UpdateDayStatus(ctx, 2, "plan-1", day.ID, DayCompleted, &actID); err != ErrDayNotFound {
		t.Errorf("UpdateDayStatus() wrong user error = %v, want ErrDayNotFound", err)
	}
	if err := db.UpdateDayStatus(ctx, 1, "plan-1", day.ID, DayCompleted, &actID); err != nil {
		t.Fatalf("UpdateDayStatus() error = %v", err)
	}

	week := plan.Weeks[1]
	week.TotalKm = 14
	for i := range week.Days {
		week.Days[i].DistanceKm *= 0.7
	}
	if err := db.ReplaceWeekWorkouts(ctx, week); err != nil {
		t.Fatalf("ReplaceWeekWorkouts() error = %v", err)
	}

	loaded, err := db.GetPlan(ctx, 1, "plan-1")
	if err != nil {
		t.Fatalf("GetPlan() error = %v", err)
	}
	got := loaded.Weeks[0].Days[0]
	if got.Status != DayCompleted || got.ActivityID == nil || *got.ActivityID != 55 {
		t.Errorf("day = %+v, want completed with activity 55", got)
	}
	if loaded.Weeks[1].TotalKm != 14 {
		t.Errorf("TotalKm = %v, want 14", loaded.Weeks[1].TotalKm)
	}
	if loaded.Weeks[1].Days[0].DistanceKm != 3.5 {
		t.Errorf("DistanceKm = %v, want 3.5", loaded.Weeks[1].Days[0].DistanceKm)
	}
}

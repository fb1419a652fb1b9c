package analysis

import (
	"testing"
	"time"

	"runcoach/internal/store"
)

// Wednesday
var testNow = time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)

func floatPtr(f float64) *float64 {
	return &f
}

// makeRun builds a run with a consistent average speed
func makeRun(id int64, start time.Time, meters float64, seconds int) store.Activity {
	a := store.Activity{
		ID:             id,
		Name:           "Morning Run",
		Type:           "Run",
		StartDate:      start,
		StartDateLocal: start,
		Distance:       meters,
		MovingTime:     seconds,
		ElapsedTime:    seconds,
	}
	if seconds > 0 {
		a.AverageSpeed = meters / float64(seconds)
	}
	return a
}

func daysAgo(n int) time.Time {
	return testNow.AddDate(0, 0, -n)
}

func TestRunningActivities(t *testing.T) {
	ride := makeRun(1, daysAgo(1), 30000, 3600)
	ride.Type = "Ride"
	trail := makeRun(2, daysAgo(2), 8000, 3000)
	trail.Type = "TrailRun"
	road := makeRun(3, daysAgo(5), 5000, 1500)

	input := []store.Activity{ride, trail, road}
	runs := RunningActivities(input)

	if len(runs) != 2 {
		t.Fatalf("RunningActivities() returned %d, want 2", len(runs))
	}
	if runs[0].ID != 3 || runs[1].ID != 2 {
		t.Errorf("RunningActivities() order = [%d %d], want oldest first [3 2]", runs[0].ID, runs[1].ID)
	}
	if input[0].ID != 1 {
		t.Error("RunningActivities() should not reorder its input")
	}
}

func TestQualifying(t *testing.T) {
	acts := []store.Activity{
		makeRun(1, daysAgo(3), 800, 300),   // too short
		makeRun(2, daysAgo(2), 1000, 360),  // not over 1 km
		makeRun(3, daysAgo(1), 1200, 0),    // no time
		makeRun(4, daysAgo(1), 5000, 1500), // counts
	}

	got := Qualifying(acts)
	if len(got) != 1 || got[0].ID != 4 {
		t.Errorf("Qualifying() = %v, want only activity 4", got)
	}
}

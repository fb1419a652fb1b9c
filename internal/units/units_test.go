package units

import (
	"math"
	"testing"

	"runcoach/internal/config"
)

func TestPaceConversions(t *testing.T) {
	tests := []struct {
		name    string
		meters  float64
		seconds int
		perKm   float64
		perMile float64
	}{
		{"5k in 25 minutes", 5000, 1500, 5.0, 8.0467},
		{"mile in 8 minutes", MetersPerMile, 480, 4.971, 8.0},
		{"zero distance", 0, 600, 0, 0},
		{"zero time", 5000, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PaceMinPerKm(tt.meters, tt.seconds); math.Abs(got-tt.perKm) > 0.001 {
				t.Errorf("PaceMinPerKm() = %v, want %v", got, tt.perKm)
			}
			if got := PaceMinPerMile(tt.meters, tt.seconds); math.Abs(got-tt.perMile) > 0.001 {
				t.Errorf("PaceMinPerMile() = %v, want %v", got, tt.perMile)
			}
		})
	}
}

func TestSpeedToPace(t *testing.T) {
	// 5000m in 1500s
	speed := 5000.0 / 1500.0
	if got := SpeedToMinPerKm(speed); math.Abs(got-5.0) > 0.0001 {
		t.Errorf("SpeedToMinPerKm() = %v, want 5.0", got)
	}
	if got := SpeedToMinPerMile(speed); math.Abs(got-8.0467) > 0.001 {
		t.Errorf("SpeedToMinPerMile() = %v, want 8.0467", got)
	}
	if got := SpeedToMinPerMile(0); got != 0 {
		t.Errorf("SpeedToMinPerMile(0) = %v, want 0", got)
	}
}

func TestPaceRoundTrip(t *testing.T) {
	p := 5.5
	if got := MinPerMileToMinPerKm(MinPerKmToMinPerMile(p)); math.Abs(got-p) > 1e-9 {
		t.Errorf("round trip = %v, want %v", got, p)
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "0:00"},
		{59, "0:59"},
		{1500, "25:00"},
		{3600, "1:00:00"},
		{12345, "3:25:45"},
		{-5, "0:00"},
	}
	for _, tt := range tests {
		if got := FormatClock(tt.seconds); got != tt.want {
			t.Errorf("FormatClock(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestFormatPaceValue(t *testing.T) {
	tests := []struct {
		minutes float64
		want    string
	}{
		{5.0, "5:00"},
		{5.5, "5:30"},
		{6.75, "6:45"},
		{4.999, "5:00"},
		{0, "-"},
	}
	for _, tt := range tests {
		if got := FormatPaceValue(tt.minutes); got != tt.want {
			t.Errorf("FormatPaceValue(%v) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}

func TestUnitsPreferences(t *testing.T) {
	metric := New(config.DisplayConfig{DistanceUnit: "km", PaceUnit: "min/km"})
	imperial := New(config.DisplayConfig{DistanceUnit: "mi", PaceUnit: "min/mi"})

	if got := metric.FormatDistance(10000); got != "10.0 km" {
		t.Errorf("metric FormatDistance = %q", got)
	}
	if got := imperial.FormatDistance(MetersPerMile * 3); got != "3.0 mi" {
		t.Errorf("imperial FormatDistance = %q", got)
	}
	if got := metric.FormatPace(5.0); got != "5:00/km" {
		t.Errorf("metric FormatPace = %q", got)
	}
	if got := imperial.FormatPace(5.0); got != "8:03/mi" {
		t.Errorf("imperial FormatPace = %q", got)
	}
	if metric.DistanceLabel() != "km" || imperial.DistanceLabel() != "mi" {
		t.Error("DistanceLabel mismatch")
	}
	if metric.PaceLabel() != "min/km" || imperial.PaceLabel() != "min/mi" {
		t.Error("PaceLabel mismatch")
	}
}

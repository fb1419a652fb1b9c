package analysis

import (
	"math"
	"strings"
	"testing"

	"runcoach/internal/store"
)

func TestEstimateCadence(t *testing.T) {
	tests := []struct {
		pace     float64
		expected float64
	}{
		{3.5, 190},
		{3.99, 190},
		{4.0, 185},
		{4.49, 185},
		{4.5, 180},
		{4.99, 180},
		{5.0, 175},
		{5.99, 175},
		{6.0, 170},
		{8.0, 170},
	}

	for _, tt := range tests {
		if got := EstimateCadence(tt.pace); got != tt.expected {
			t.Errorf("EstimateCadence(%v) = %v, want %v", tt.pace, got, tt.expected)
		}
	}
}

func TestCadenceScore(t *testing.T) {
	tests := []struct {
		cadence  float64
		expected float64
	}{
		{180, 100},
		{175, 75},
		{190, 50},
		{170, 50},
		{160, 0},
		{150, 0},
	}

	for _, tt := range tests {
		if got := CadenceScore(tt.cadence); got != tt.expected {
			t.Errorf("CadenceScore(%v) = %v, want %v", tt.cadence, got, tt.expected)
		}
	}
}

func TestStrideScore(t *testing.T) {
	tests := []struct {
		stride   float64
		expected float64
	}{
		{1.0, 100},
		{1.15, 100},
		{1.3, 100},
		{0.9, 80},
		{1.5, 60},
		{0.4, 0},
	}

	for _, tt := range tests {
		if got := StrideScore(tt.stride); math.Abs(got-tt.expected) > 0.001 {
			t.Errorf("StrideScore(%v) = %v, want %v", tt.stride, got, tt.expected)
		}
	}
}

func TestPaceConsistency(t *testing.T) {
	if got := PaceConsistency([]float64{5, 5, 5}); got != 100 {
		t.Errorf("identical paces = %v, want 100", got)
	}
	// mean 5, population stddev 1 -> CV 20%
	if got := PaceConsistency([]float64{4, 6}); math.Abs(got-80) > 0.001 {
		t.Errorf("PaceConsistency([4 6]) = %v, want 80", got)
	}
	if got := PaceConsistency(nil); got != 0 {
		t.Errorf("empty paces = %v, want 0", got)
	}
}

func TestEfficiencyFactor(t *testing.T) {
	a := makeRun(1, testNow, 10000, 3000)
	if got := EfficiencyFactor(a); got != 0 {
		t.Errorf("no heart rate = %v, want 0", got)
	}

	a.AverageHeartrate = floatPtr(150)
	// 200 m/min at 150 bpm
	if got := EfficiencyFactor(a); math.Abs(got-1.3333) > 0.001 {
		t.Errorf("EfficiencyFactor() = %v, want ~1.333", got)
	}

	a.TotalElevationGain = 100
	if got := NormalizedEfficiencyFactor(a); got <= EfficiencyFactor(a) {
		t.Errorf("hilly run should normalize upward, got %v", got)
	}
}

func steadyRuns(n int, seconds int) []store.Activity {
	var acts []store.Activity
	for i := 0; i < n; i++ {
		acts = append(acts, makeRun(int64(i+1), daysAgo(2*(n-i)), 10000, seconds))
	}
	return acts
}

func TestEstimateEfficiencyInsufficient(t *testing.T) {
	res := EstimateEfficiency(steadyRuns(4, 3000))
	if res.Status != StatusInsufficientData {
		t.Errorf("Status = %q, want insufficient data with 4 runs", res.Status)
	}
}

func TestEstimateEfficiency(t *testing.T) {
	res := EstimateEfficiency(steadyRuns(5, 3000))
	if !res.OK() {
		t.Fatalf("EstimateEfficiency() status = %q", res.Status)
	}
	eff := res.Value

	// 5:00/km looks up 175 spm, stride 200/175 = 1.14 m
	if eff.Cadence != 175 || eff.CadenceMeasured {
		t.Errorf("Cadence = %v (measured %v), want estimated 175", eff.Cadence, eff.CadenceMeasured)
	}
	if eff.StrideLengthM != 1.14 {
		t.Errorf("StrideLengthM = %v, want 1.14", eff.StrideLengthM)
	}
	if eff.Consistency != 100 {
		t.Errorf("Consistency = %v, want 100", eff.Consistency)
	}
	// 0.4*75 + 0.3*100 + 0.3*100
	if eff.Score != 90 {
		t.Errorf("Score = %v, want 90", eff.Score)
	}
	if len(eff.Recommendations) != 1 {
		t.Errorf("expected a single positive recommendation, got %v", eff.Recommendations)
	}
}

func TestEstimateEfficiencyMeasuredCadence(t *testing.T) {
	acts := steadyRuns(5, 3000)
	for i := 0; i < 3; i++ {
		acts[i].AverageCadence = floatPtr(88) // single-leg
	}

	res := EstimateEfficiency(acts)
	if !res.OK() {
		t.Fatalf("EstimateEfficiency() status = %q", res.Status)
	}
	if !res.Value.CadenceMeasured || res.Value.Cadence != 176 {
		t.Errorf("Cadence = %v (measured %v), want measured 176", res.Value.Cadence, res.Value.CadenceMeasured)
	}
	if res.Value.CadenceScore != 80 {
		t.Errorf("CadenceScore = %v, want 80", res.Value.CadenceScore)
	}
}

func TestEstimateEfficiencyLowCadence(t *testing.T) {
	acts := steadyRuns(5, 4200)
	for i := range acts {
		acts[i].AverageCadence = floatPtr(160)
	}

	res := EstimateEfficiency(acts)
	if !res.OK() {
		t.Fatalf("EstimateEfficiency() status = %q", res.Status)
	}

	var found bool
	for _, rec := range res.Value.Recommendations {
		if strings.HasPrefix(rec, "Increase cadence") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected cadence recommendation, got %v", res.Value.Recommendations)
	}
}

package analysis

import (
	"fmt"
	"math"

	"runcoach/internal/store"
	"runcoach/internal/units"
)

const (
	minEfficiencyRuns = 5
	targetCadence     = 180.0
	strideBandLow     = 1.0 // meters
	strideBandHigh    = 1.3
	lowCadence        = 170.0
	lowConsistency    = 70.0
)

// Efficiency summarizes running economy from summary data
type Efficiency struct {
	AvgPaceMinPerKm  float64  `json:"avg_pace_min_per_km"`
	Consistency      float64  `json:"consistency"`
	Cadence          float64  `json:"cadence"`
	CadenceMeasured  bool     `json:"cadence_measured"`
	StrideLengthM    float64  `json:"stride_length_m"`
	CadenceScore     float64  `json:"cadence_score"`
	StrideScore      float64  `json:"stride_score"`
	Score            float64  `json:"score"`
	EfficiencyFactor float64  `json:"efficiency_factor,omitempty"`
	Recommendations  []string `json:"recommendations"`
}

type cadenceStep struct {
	fasterThan float64 // min/km, exclusive
	cadence    float64
}

// Pace to cadence lookup; slower paces fall through to 170
var cadenceByPace = []cadenceStep{
	{4.0, 190}, {4.5, 185}, {5.0, 180}, {6.0, 175},
}

// EstimateCadence looks up typical steps per minute for a pace in min/km
func EstimateCadence(paceMinPerKm float64) float64 {
	for _, step := range cadenceByPace {
		if paceMinPerKm < step.fasterThan {
			return step.cadence
		}
	}
	return 170
}

// CadenceScore penalizes deviation from 180 spm
func CadenceScore(cadence float64) float64 {
	return math.Max(0, 100-5*math.Abs(cadence-targetCadence))
}

// StrideScore rewards a stride length within the 1.0-1.3 m band
func StrideScore(strideM float64) float64 {
	var off float64
	switch {
	case strideM < strideBandLow:
		off = strideBandLow - strideM
	case strideM > strideBandHigh:
		off = strideM - strideBandHigh
	default:
		return 100
	}
	return math.Max(0, 100-200*off)
}

// StrideLength derives meters per step from speed = cadence × stride length
func StrideLength(paceMinPerKm, cadence float64) float64 {
	if paceMinPerKm <= 0 || cadence <= 0 {
		return 0
	}
	metersPerMinute := 1000 / paceMinPerKm
	return metersPerMinute / cadence
}

// PaceConsistency is 100 minus the coefficient of variation (percent) of the paces
func PaceConsistency(paces []float64) float64 {
	m := mean(paces)
	if m == 0 {
		return 0
	}
	var sq float64
	for _, p := range paces {
		sq += (p - m) * (p - m)
	}
	cv := math.Sqrt(sq/float64(len(paces))) / m * 100
	return math.Max(0, 100-cv)
}

// EfficiencyFactor calculates pace:HR efficiency for a single run
// Returns: (speed in m/min) / (average HR)
// Higher is better - you're running faster for the same HR
func EfficiencyFactor(a store.Activity) float64 {
	if a.AverageHeartrate == nil {
		return 0
	}
	hr := *a.AverageHeartrate
	vel := speed(a)
	// Filter noise: must be actually moving with reasonable HR
	if vel < 0.5 || hr < 80 || hr > 220 {
		return 0
	}
	return vel * 60 / hr
}

// NormalizedEfficiencyFactor adjusts the efficiency factor for average climb per meter
func NormalizedEfficiencyFactor(a store.Activity) float64 {
	ef := EfficiencyFactor(a)
	if ef == 0 || a.Distance <= 0 {
		return ef
	}
	// Approximate: +10% grade adds ~30% equivalent effort
	grade := a.TotalElevationGain / a.Distance
	gradeFactor := math.Min(1.0+grade*3.0, 3.0)
	return ef * gradeFactor
}

// EstimateEfficiency scores running economy from the most recent qualifying runs
func EstimateEfficiency(activities []store.Activity) Result[Efficiency] {
	runs := lastN(Qualifying(activities), fitnessWindow)
	if len(runs) < minEfficiencyRuns {
		return Insufficient[Efficiency](fmt.Sprintf("need at least %d runs over 1 km, have %d", minEfficiencyRuns, len(runs)))
	}

	paces := make([]float64, 0, len(runs))
	var measured []float64
	var efs []float64
	for _, a := range runs {
		paces = append(paces, paceMinPerKm(a))
		if a.AverageCadence != nil && *a.AverageCadence > 0 {
			c := *a.AverageCadence
			if c < 120 {
				// Single-leg cadence as reported by some devices
				c *= 2
			}
			measured = append(measured, c)
		}
		if ef := NormalizedEfficiencyFactor(a); ef > 0 {
			efs = append(efs, ef)
		}
	}

	avgPace := mean(paces)
	consistency := PaceConsistency(paces)

	cadence := EstimateCadence(avgPace)
	isMeasured := len(measured)*2 >= len(runs)
	if isMeasured {
		cadence = mean(measured)
	}

	stride := StrideLength(avgPace, cadence)
	cadenceScore := CadenceScore(cadence)
	strideScore := StrideScore(stride)
	score := 0.4*cadenceScore + 0.3*strideScore + 0.3*consistency

	eff := Efficiency{
		AvgPaceMinPerKm:  units.Round2(avgPace),
		Consistency:      units.Round1(consistency),
		Cadence:          math.Round(cadence),
		CadenceMeasured:  isMeasured,
		StrideLengthM:    units.Round2(stride),
		CadenceScore:     units.Round1(cadenceScore),
		StrideScore:      units.Round1(strideScore),
		Score:            units.Round1(score),
		EfficiencyFactor: units.Round2(mean(efs)),
	}
	eff.Recommendations = efficiencyRecommendations(cadence, stride, consistency)
	return Available(eff)
}

func efficiencyRecommendations(cadence, stride, consistency float64) []string {
	var recs []string
	if cadence < lowCadence {
		recs = append(recs, "Increase cadence: aim for quicker, lighter steps toward 175-180 spm.")
	}
	if stride > strideBandHigh {
		recs = append(recs, "Shorten your stride to avoid overstriding and land under your hips.")
	} else if stride < strideBandLow {
		recs = append(recs, "Add strides and hill sprints to build power and a longer stride.")
	}
	if consistency < lowConsistency {
		recs = append(recs, "Even out your pacing: keep easy runs truly easy and save speed for workouts.")
	}
	if len(recs) == 0 {
		recs = append(recs, "Running economy looks solid. Keep mixing easy volume with some faster work.")
	}
	return recs
}

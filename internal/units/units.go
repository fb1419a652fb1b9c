// Package units centralizes distance, pace and time conversions so every
// component formats numbers the same way.
package units

import (
	"fmt"
	"math"

	"runcoach/internal/config"
)

const (
	MetersPerKm   = 1000.0
	MetersPerMile = 1609.34
	KmPerMile     = MetersPerMile / MetersPerKm
)

// MetersToKm converts meters to kilometers
func MetersToKm(meters float64) float64 {
	return meters / MetersPerKm
}

// MetersToMiles converts meters to miles
func MetersToMiles(meters float64) float64 {
	return meters / MetersPerMile
}

// KmToMiles converts kilometers to miles
func KmToMiles(km float64) float64 {
	return km / KmPerMile
}

// PaceMinPerKm returns pace in minutes per kilometer, or 0 when undefined
func PaceMinPerKm(meters float64, seconds int) float64 {
	if meters <= 0 || seconds <= 0 {
		return 0
	}
	return (float64(seconds) / 60) / (meters / MetersPerKm)
}

// PaceMinPerMile returns pace in minutes per mile, or 0 when undefined
func PaceMinPerMile(meters float64, seconds int) float64 {
	if meters <= 0 || seconds <= 0 {
		return 0
	}
	return (float64(seconds) / 60) / (meters / MetersPerMile)
}

// SpeedToMinPerMile converts m/s to minutes per mile
func SpeedToMinPerMile(mps float64) float64 {
	if mps <= 0 {
		return 0
	}
	return MetersPerMile / mps / 60
}

// SpeedToMinPerKm converts m/s to minutes per kilometer
func SpeedToMinPerKm(mps float64) float64 {
	if mps <= 0 {
		return 0
	}
	return MetersPerKm / mps / 60
}

// MinPerKmToMinPerMile converts a per-km pace to a per-mile pace
func MinPerKmToMinPerMile(pace float64) float64 {
	return pace * KmPerMile
}

// MinPerMileToMinPerKm converts a per-mile pace to a per-km pace
func MinPerMileToMinPerKm(pace float64) float64 {
	return pace / KmPerMile
}

// Round1 rounds to one decimal place
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Round2 rounds to two decimal places
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatClock formats seconds as h:mm:ss, or m:ss under an hour
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatPaceValue formats decimal minutes as m:ss
func FormatPaceValue(minutes float64) string {
	if minutes <= 0 {
		return "-"
	}
	total := int(math.Round(minutes * 60))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// Units provides unit conversion and formatting based on user preferences
type Units struct {
	cfg config.DisplayConfig
}

// New creates a new Units helper with the given display config
func New(cfg config.DisplayConfig) Units {
	return Units{cfg: cfg}
}

// FormatDistanceKm formats a distance in kilometers to the user's preferred unit
func (u Units) FormatDistanceKm(km float64) string {
	if u.IsMiles() {
		return fmt.Sprintf("%.1f mi", KmToMiles(km))
	}
	return fmt.Sprintf("%.1f km", km)
}

// FormatDistance formats a distance in meters to the user's preferred unit
func (u Units) FormatDistance(meters float64) string {
	return u.FormatDistanceKm(MetersToKm(meters))
}

// FormatPace formats a min/km pace in the user's preferred pace unit, with label
func (u Units) FormatPace(minPerKm float64) string {
	if minPerKm <= 0 {
		return "-"
	}
	if u.cfg.PaceUnit == "min/mi" {
		return FormatPaceValue(MinPerKmToMinPerMile(minPerKm)) + "/mi"
	}
	return FormatPaceValue(minPerKm) + "/km"
}

// DistanceLabel returns the short unit label ("mi" or "km")
func (u Units) DistanceLabel() string {
	if u.IsMiles() {
		return "mi"
	}
	return "km"
}

// PaceLabel returns the pace unit label ("min/mi" or "min/km")
func (u Units) PaceLabel() string {
	if u.cfg.PaceUnit == "min/mi" {
		return "min/mi"
	}
	return "min/km"
}

// IsMiles returns true if distance unit is miles
func (u Units) IsMiles() bool {
	return u.cfg.DistanceUnit == "mi"
}

// Package fitfile converts Garmin FIT activity files into stored activities.
package fitfile

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/tormoder/fit"

	"runcoach/internal/store"
)

// ErrNoSession is returned for FIT files without a session summary
var ErrNoSession = errors.New("fit file has no session message")

// ParseFile decodes the FIT file at path into an activity owned by userID
func ParseFile(path string, userID int64) (store.Activity, error) {
	f, err := os.Open(path)
	if err != nil {
		return store.Activity{}, fmt.Errorf("open FIT file: %w", err)
	}
	defer f.Close()
	return Decode(f, userID)
}

// Decode reads a FIT activity from r
func Decode(r io.Reader, userID int64) (store.Activity, error) {
	decoded, err := fit.Decode(r)
	if err != nil {
		return store.Activity{}, fmt.Errorf("decode FIT file: %w", err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return store.Activity{}, fmt.Errorf("activity FIT expected: %w", err)
	}
	if len(activity.Sessions) == 0 {
		return store.Activity{}, ErrNoSession
	}

	var offset time.Duration
	if msg := activity.Activity; msg != nil {
		offset = localOffset(msg.Timestamp, msg.LocalTimestamp)
	}
	return FromSession(activity.Sessions[0], userID, offset)
}

// FromSession maps a session summary onto an activity. FIT files carry no
// activity id, so the start time in unix seconds is used.
func FromSession(s *fit.SessionMsg, userID int64, localOffset time.Duration) (store.Activity, error) {
	start := validTime(s.StartTime)
	if start.IsZero() {
		return store.Activity{}, fmt.Errorf("session has no start time")
	}
	start = start.UTC()

	moving := safePositive(s.GetTotalMovingTimeScaled())
	if moving == 0 {
		moving = safePositive(s.GetTotalTimerTimeScaled())
	}
	elapsed := safePositive(s.GetTotalElapsedTimeScaled())
	if elapsed == 0 {
		elapsed = moving
	}
	distance := safePositive(s.GetTotalDistanceScaled())

	speed := safePositive(s.GetEnhancedAvgSpeedScaled())
	if speed == 0 {
		speed = safePositive(s.GetAvgSpeedScaled())
	}
	if speed == 0 && moving > 0 {
		speed = distance / moving
	}
	maxSpeed := safePositive(s.GetEnhancedMaxSpeedScaled())
	if maxSpeed == 0 {
		maxSpeed = safePositive(s.GetMaxSpeedScaled())
	}

	a := store.Activity{
		ID:                 start.Unix(),
		UserID:             userID,
		Name:               activityName(s.Sport, start.Add(localOffset)),
		Type:               sportType(s.Sport, s.SubSport),
		StartDate:          start,
		StartDateLocal:     start.Add(localOffset),
		Distance:           distance,
		MovingTime:         int(math.Round(moving)),
		ElapsedTime:        int(math.Round(elapsed)),
		TotalElevationGain: float64(validUint16(s.TotalAscent)),
		AverageSpeed:       speed,
		MaxSpeed:           maxSpeed,
		AverageHeartrate:   nonZero(float64(validUint8(s.AvgHeartRate))),
		MaxHeartrate:       nonZero(float64(validUint8(s.MaxHeartRate))),
		AverageCadence:     nonZero(cadenceFromAny(s.GetAvgCadence())),
		AveragePower:       nonZero(float64(validUint16(s.AvgPower))),
	}
	return a, nil
}

func sportType(sport fit.Sport, sub fit.SubSport) string {
	switch sport {
	case fit.SportRunning:
		switch sub {
		case fit.SubSportTrail:
			return "TrailRun"
		case fit.SubSportVirtualActivity:
			return "VirtualRun"
		}
		return "Run"
	case fit.SportCycling:
		return "Ride"
	case fit.SportWalking:
		return "Walk"
	case fit.SportHiking:
		return "Hike"
	case fit.SportSwimming:
		return "Swim"
	}
	return "Workout"
}

func activityName(sport fit.Sport, local time.Time) string {
	part := "Morning"
	switch h := local.Hour(); {
	case h >= 18:
		part = "Evening"
	case h >= 12:
		part = "Afternoon"
	}
	kind := "Activity"
	switch sport {
	case fit.SportRunning:
		kind = "Run"
	case fit.SportCycling:
		kind = "Ride"
	case fit.SportWalking:
		kind = "Walk"
	}
	return part + " " + kind
}

func localOffset(utc, local time.Time) time.Duration {
	utc, local = validTime(utc), validTime(local)
	if utc.IsZero() || local.IsZero() {
		return 0
	}
	// FIT stores local time as a UTC timestamp shifted by the zone offset
	d := local.Sub(utc).Round(15 * time.Minute)
	if d < -14*time.Hour || d > 14*time.Hour {
		return 0
	}
	return d
}

func validTime(t time.Time) time.Time {
	if t.IsZero() || fit.IsBaseTime(t) {
		return time.Time{}
	}
	return t
}

func validUint8(v uint8) uint8 {
	if v == math.MaxUint8 {
		return 0
	}
	return v
}

func validUint16(v uint16) uint16 {
	if v == math.MaxUint16 {
		return 0
	}
	return v
}

func cadenceFromAny(v any) float64 {
	switch x := v.(type) {
	case uint8:
		return float64(validUint8(x))
	case uint16:
		return float64(validUint16(x))
	}
	return 0
}

func safePositive(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return v
}

func nonZero(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}

package service

import "time"

const (
	// Activity windows
	HistoryLimit     = 500
	RecentRunsLimit  = 10
	FormLookbackDays = 120

	// Upcoming workouts shown with the active plan
	UpcomingWorkouts = 5

	// Degraded reply returned when the model cannot be reached
	FallbackReply = "I can't reach the coaching model right now. Your plan and stats are still " +
		"available; please try again in a few minutes."

	// Detached timeout for writes that must outlive a cancelled request
	persistTimeout = 5 * time.Second
)

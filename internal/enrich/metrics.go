package enrich

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Week outcomes
const (
	outcomeComplete = "complete"
	outcomeFailed   = "failed"
	outcomeSkipped  = "skipped"
)

var (
	weeksCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "runcoach",
		Subsystem: "enrichment",
		Name:      "weeks_total",
		Help:      "Number of plan weeks processed by enrichment, by outcome.",
	}, []string{"outcome"})

	weekDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "runcoach",
		Subsystem: "enrichment",
		Name:      "week_duration_seconds",
		Help:      "Time spent enriching a single plan week, including the model call.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
	})

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "runcoach",
		Subsystem: "enrichment",
		Name:      "queue_depth",
		Help:      "Plans waiting in the enrichment queue.",
	})

	plansGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "runcoach",
		Name:      "plans_generated_total",
		Help:      "Number of training plan skeletons generated, by goal type.",
	}, []string{"goal"})
)

func init() {
	prometheus.MustRegister(weeksCounter, weekDuration, queueDepth, plansGenerated)
}

// RecordPlanGenerated counts a newly generated plan skeleton
func RecordPlanGenerated(goal string) {
	plansGenerated.WithLabelValues(goal).Inc()
}

func recordWeek(outcome string, started time.Time) {
	weeksCounter.WithLabelValues(outcome).Inc()
	if !started.IsZero() {
		weekDuration.Observe(time.Since(started).Seconds())
	}
}

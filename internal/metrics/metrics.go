package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScoringCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exam_scoring_calls_total",
		Help: "Scoring invocations by resolved outcome kind.",
	}, []string{"outcome"})

	ScoringAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exam_scoring_attempts_total",
		Help: "Individual judge attempts including retries.",
	})

	ScoringDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "exam_scoring_duration_seconds",
		Help:    "Wall time of one scoring call including retries.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	ExamsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exam_finalized_total",
		Help: "Completed exams by persistence result.",
	}, []string{"status"})

	ActivePhaseMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exam_messages_total",
		Help: "Inbound messages by session phase at arrival.",
	}, []string{"phase"})
)

// ObserveScoring records one finished scoring call.
func ObserveScoring(outcome string, started time.Time) {
	ScoringCalls.WithLabelValues(outcome).Inc()
	ScoringDuration.Observe(time.Since(started).Seconds())
}

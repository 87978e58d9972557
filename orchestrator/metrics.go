package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Edge gesture outcomes.
const (
	outcomeCommitted  = "committed"
	outcomeCancelled  = "cancelled"
	outcomeFailed     = "failed"
	outcomeSuppressed = "suppressed"
)

var (
	// edgeOutcomeTotal counts how edge gestures end, plus starts suppressed
	// by the cooldown window.
	edgeOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_edge_outcomes_total",
		Help: "Total number of edge creation gestures by outcome",
	}, []string{"outcome"})

	// edgeGestureDuration tracks time from start to commit or cancel.
	edgeGestureDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orchestrator_edge_gesture_duration_seconds",
		Help:    "Duration of edge creation gestures by outcome",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"outcome"})
)

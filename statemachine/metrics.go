package statemachine

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric definitions. The machine label is the configuration name, never a
// per-entity id, to keep cardinality bounded by the number of configs.
var (
	// transitionTotal tracks executed transitions, forced ones included.
	transitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_transitions_total",
		Help: "Total number of state transitions by machine, from_state, to_state and action",
	}, []string{"machine", "from_state", "to_state", "action"})

	// rejectedTransitionTotal tracks transitions refused by the table.
	rejectedTransitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_rejected_transitions_total",
		Help: "Total number of transitions rejected because the state does not accept the action",
	}, []string{"machine", "state", "action"})

	// eventTotal tracks HandleEvent outcomes: applied, unmapped or rejected.
	eventTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_events_total",
		Help: "Total number of technical events handled by machine, event and outcome",
	}, []string{"machine", "event", "outcome"})

	// actionDuration tracks individual action execution time.
	actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statemachine_action_duration_seconds",
		Help:    "Duration of action execution by machine, action and phase",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"machine", "action", "phase"})

	// actionFailureTotal tracks handler errors, panics and unknown handlers.
	actionFailureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_action_failures_total",
		Help: "Total number of failed actions by machine, action and reason",
	}, []string{"machine", "action", "reason"})
)

const forcedActionPrefix = "FORCE_SET:"

func sanitizeMachine(machine string) string {
	if machine == "" {
		return "unknown"
	}

	return machine
}

// sanitizeAction folds forced transition reasons, which are free text, into
// a single label value.
func sanitizeAction(action string) string {
	if strings.HasPrefix(action, forcedActionPrefix) {
		return "force_set"
	}

	if action == "" {
		return "none"
	}

	return action
}

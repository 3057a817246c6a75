// Package metrics exposes Prometheus counters for the conversation engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Events counts inbound events by kind.
	Events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debatecoach_events_total",
			Help: "Total number of inbound user events",
		},
		[]string{"kind"},
	)

	// Transitions counts state transitions by origin and destination.
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debatecoach_transitions_total",
			Help: "Total number of conversation state transitions",
		},
		[]string{"from", "to"},
	)

	// CollaboratorFailures counts failed calls to external collaborators.
	CollaboratorFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debatecoach_collaborator_failures_total",
			Help: "Total number of failed external collaborator calls",
		},
		[]string{"collaborator"},
	)
)

func init() {
	prometheus.MustRegister(Events, Transitions, CollaboratorFailures)
}

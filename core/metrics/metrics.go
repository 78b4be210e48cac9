// Package metrics provides Prometheus instrumentation shared by bot components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal counts handled Telegram updates by handler and outcome.
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_total",
			Help: "Telegram updates handled",
		},
		[]string{"handler", "outcome"},
	)

	// UpdateDuration tracks handler latency.
	UpdateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_update_duration_seconds",
			Help:    "Telegram update handling duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"handler"},
	)

	// GateChecksTotal counts subscription checks by result.
	GateChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_gate_checks_total",
			Help: "Subscription checks by result",
		},
		[]string{"result"},
	)

	// WorkflowsTotal counts finished conversation workflows.
	WorkflowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_workflows_total",
			Help: "Conversation workflows by kind and terminal outcome",
		},
		[]string{"workflow", "outcome"},
	)

	// ActiveSessions reports in-flight conversation sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_sessions_active",
			Help: "Conversation sessions currently in progress",
		},
	)

	// RegistryMutationsTotal counts registry writes by operation and status.
	RegistryMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_registry_mutations_total",
			Help: "Registry mutations by operation and status",
		},
		[]string{"op", "status"},
	)

	// SendFailuresTotal counts outbound Telegram calls that exhausted retries.
	SendFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_send_failures_total",
			Help: "Outbound Telegram calls that failed after retries",
		},
		[]string{"action", "kind"},
	)
)

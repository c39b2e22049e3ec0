// Package metrics provides Prometheus metrics for the support console.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PreviewRefreshes tracks bounded preview fetches issued by the
	// listener multiplexer.
	PreviewRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "console_preview_refreshes_total",
			Help: "Total number of bounded preview fetches issued",
		},
	)

	// PreviewRefreshErrors tracks preview fetches that failed and were
	// skipped until the next feed tick.
	PreviewRefreshErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "console_preview_refresh_errors_total",
			Help: "Total number of failed preview fetches",
		},
	)

	// HandoffTransitions tracks handoff state machine transitions.
	HandoffTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_handoff_transitions_total",
			Help: "Total number of handoff state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	// TypingSignals tracks remote typing-flag writes after debouncing.
	TypingSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_typing_signals_total",
			Help: "Total number of debounced typing signal writes",
		},
		[]string{"state"},
	)

	// SideChannelErrors tracks swallowed side-channel notification failures.
	SideChannelErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "console_side_channel_errors_total",
			Help: "Total number of failed side-channel notifications",
		},
	)

	// LiveSubscriptions tracks currently open store feed subscriptions.
	LiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "console_live_subscriptions",
			Help: "Number of currently open store feed subscriptions",
		},
	)
)

// RecordTransition records a handoff state change
func RecordTransition(from, to string) {
	HandoffTransitions.WithLabelValues(from, to).Inc()
}

// RecordTypingSignal records a debounced typing write
func RecordTypingSignal(on bool) {
	state := "off"
	if on {
		state = "on"
	}
	TypingSignals.WithLabelValues(state).Inc()
}

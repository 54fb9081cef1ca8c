// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "console_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// AgentStreamsActive tracks agent streams currently open.
	AgentStreamsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agent_streams_active",
			Help: "Number of open agent event streams",
		},
		[]string{"kind"},
	)

	// AgentStreamDuration tracks how long agent streams stay open.
	AgentStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_stream_duration_seconds",
			Help:    "Agent event stream duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120, 300},
		},
		[]string{"kind", "outcome"},
	)

	// AgentEventsTotal tracks decoded stream records by tag.
	AgentEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_events_total",
			Help: "Total agent stream records delivered",
		},
		[]string{"kind", "event"},
	)

	// AgentDecodeErrorsTotal tracks malformed records skipped.
	AgentDecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_decode_errors_total",
			Help: "Total malformed agent stream records skipped",
		},
		[]string{"kind"},
	)

	// StaleEventsDropped tracks events discarded because their stream was superseded.
	StaleEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_stale_events_dropped_total",
			Help: "Events dropped because they belonged to a superseded stream",
		},
		[]string{"kind"},
	)

	// AgentFetchDuration tracks non-streaming agent calls.
	AgentFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_fetch_duration_seconds",
			Help:    "Non-streaming agent request duration",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"kind", "outcome"},
	)

	// SSEConnectionsActive tracks active SSE connections to operators.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// JournalPublishErrors tracks events that could not be journaled.
	JournalPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journal_publish_errors_total",
			Help: "Events that failed to publish to the journal",
		},
		[]string{"kind"},
	)

	// ViewsTotal tracks conversation views created.
	ViewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "views_total",
			Help: "Total conversation views created",
		},
		[]string{"kind"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordAgentStream records metrics for a finished agent stream.
func RecordAgentStream(kind, outcome string, duration float64) {
	AgentStreamDuration.WithLabelValues(kind, outcome).Observe(duration)
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}

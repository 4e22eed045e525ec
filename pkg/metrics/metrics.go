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
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// SubscriptionsActive tracks live store subscriptions by kind.
	SubscriptionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_subscriptions_active",
			Help: "Number of live store subscriptions",
		},
		[]string{"kind"},
	)

	// MessagesTotal tracks messages sent.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Total chat messages sent",
		},
		[]string{"role", "kind"},
	)

	// ReadWritesTotal tracks read-flag writes issued by the reconciler.
	ReadWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_read_writes_total",
			Help: "Read-flag writes issued by the reconciler",
		},
		[]string{"role", "outcome"},
	)

	// ReconcileDuration tracks how long a reconciliation pass takes.
	ReconcileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_reconcile_duration_seconds",
			Help:    "Reconciliation pass duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"role"},
	)

	// TypingWritesTotal tracks typing-flag writes.
	TypingWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_typing_writes_total",
			Help: "Typing-flag writes by role and state",
		},
		[]string{"role", "state"},
	)

	// WriteFailuresTotal tracks failed store writes.
	WriteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_write_failures_total",
			Help: "Failed store writes by operation",
		},
		[]string{"operation"},
	)

	// DraftRequestsTotal tracks reply drafting requests.
	DraftRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_draft_requests_total",
			Help: "Operator reply drafting requests",
		},
		[]string{"provider", "status"},
	)

	// JournalPublishTotal tracks room events published to the journal.
	JournalPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_journal_publish_total",
			Help: "Room events published to the event journal",
		},
		[]string{"type", "outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordReconcile records one reconciliation pass.
func RecordReconcile(role string, succeeded, failed int, duration float64) {
	ReadWritesTotal.WithLabelValues(role, "success").Add(float64(succeeded))
	ReadWritesTotal.WithLabelValues(role, "failure").Add(float64(failed))
	ReconcileDuration.WithLabelValues(role).Observe(duration)
}

// RecordTypingWrite records one typing-flag transition.
func RecordTypingWrite(role string, typing bool) {
	state := "idle"
	if typing {
		state = "typing"
	}
	TypingWritesTotal.WithLabelValues(role, state).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}

// TrackSubscription increments the live subscription gauge for kind and
// returns a func that decrements it.
func TrackSubscription(kind string) func() {
	g := SubscriptionsActive.WithLabelValues(kind)
	g.Inc()
	return g.Dec
}

// Package metrics exposes Prometheus instrumentation for the session
// engine. Recording is off until Enable is called so embedders that do
// not scrape pay only an atomic load per event.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FramesTotal counts wire frames by direction and type.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentwire_frames_total",
			Help: "Total number of wire frames processed",
		},
		[]string{"direction", "type"},
	)

	// DecodeErrorsTotal counts undecodable inbound lines.
	DecodeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentwire_decode_errors_total",
			Help: "Total number of inbound lines that failed to decode",
		},
	)

	// ControlRequestsTotal counts outbound control requests by subtype
	// and outcome.
	ControlRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentwire_control_requests_total",
			Help: "Total number of outbound control requests",
		},
		[]string{"subtype", "outcome"},
	)

	// ControlRequestDuration tracks control request round-trip time.
	ControlRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentwire_control_request_duration_seconds",
			Help:    "Control request round-trip duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subtype"},
	)

	// CallbacksTotal counts inbound callback requests by subtype and
	// outcome.
	CallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentwire_callbacks_total",
			Help: "Total number of inbound callback requests serviced",
		},
		[]string{"subtype", "outcome"},
	)

	// TurnsTotal counts turns by outcome.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentwire_turns_total",
			Help: "Total number of turns by outcome",
		},
		[]string{"outcome"},
	)

	// TurnDuration tracks how long turns run from activation to
	// termination.
	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentwire_turn_duration_seconds",
			Help:    "Turn duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// QueueDepth tracks turns waiting behind the active one.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentwire_queue_depth",
			Help: "Number of turns waiting in the FIFO queue",
		},
	)

	// PendingRequests tracks outstanding control requests.
	PendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentwire_pending_requests",
			Help: "Number of control requests awaiting a response",
		},
	)

	// DroppedEventsTotal counts stream events that arrived with no
	// active turn.
	DroppedEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentwire_dropped_events_total",
			Help: "Total number of stream events discarded with no active turn",
		},
	)
)

var enabled atomic.Bool

// Enable turns on metric recording. The collectors are registered
// regardless; Enable only gates the Record helpers.
func Enable() { enabled.Store(true) }

// Enabled reports whether recording is on.
func Enabled() bool { return enabled.Load() }

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordFrame records one processed frame.
func RecordFrame(direction, frameType string) {
	if !enabled.Load() {
		return
	}
	FramesTotal.WithLabelValues(direction, frameType).Inc()
}

// RecordDecodeError records one undecodable line.
func RecordDecodeError() {
	if !enabled.Load() {
		return
	}
	DecodeErrorsTotal.Inc()
}

// RecordControlRequest records a completed control request.
func RecordControlRequest(subtype, outcome string, seconds float64) {
	if !enabled.Load() {
		return
	}
	ControlRequestsTotal.WithLabelValues(subtype, outcome).Inc()
	ControlRequestDuration.WithLabelValues(subtype).Observe(seconds)
}

// RecordCallback records a serviced inbound callback.
func RecordCallback(subtype, outcome string) {
	if !enabled.Load() {
		return
	}
	CallbacksTotal.WithLabelValues(subtype, outcome).Inc()
}

// RecordTurn records a finished turn.
func RecordTurn(outcome string, seconds float64) {
	if !enabled.Load() {
		return
	}
	TurnsTotal.WithLabelValues(outcome).Inc()
	TurnDuration.Observe(seconds)
}

// SetQueueDepth sets the queued turn count.
func SetQueueDepth(n float64) {
	if !enabled.Load() {
		return
	}
	QueueDepth.Set(n)
}

// SetPendingRequests sets the outstanding control request count.
func SetPendingRequests(n float64) {
	if !enabled.Load() {
		return
	}
	PendingRequests.Set(n)
}

// RecordDroppedEvent records a stream event discarded with no active
// turn.
func RecordDroppedEvent() {
	if !enabled.Load() {
		return
	}
	DroppedEventsTotal.Inc()
}

// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_conversation_assist"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram

	// Recognition metrics
	EventsIngested *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec

	// Transcript metrics
	LinesFinalized *prometheus.CounterVec
	LinesAbandoned prometheus.Counter
	TurnsEmitted   prometheus.Counter
	TurnsMerged    prometheus.Counter

	// Dispatcher metrics
	DispatchTransitions *prometheus.CounterVec
	DispatchSuppressed  *prometheus.CounterVec
	DispatchStale       prometheus.Counter

	// Backend metrics
	BackendAttempts  *prometheus.CounterVec
	BackendLatency   *prometheus.HistogramVec
	BackendFallbacks prometheus.Counter
	SuggestionsTotal prometheus.Counter
	SuggestionErrors *prometheus.CounterVec

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Transport metrics
	STTErrors        *prometheus.CounterVec
	WebsocketClients prometheus.Gauge
	GRPCRequests     *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of conversation sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active conversation sessions",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of conversation sessions in seconds",
			Buckets:   []float64{1, 10, 30, 60, 300, 900, 1800, 3600},
		}),

		EventsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_events_total",
			Help:      "Total number of recognition events accepted by the reconciler",
		}, []string{"source", "type"}),
		EventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_events_dropped_total",
			Help:      "Total number of recognition events dropped",
		}, []string{"reason"}),

		LinesFinalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_lines_finalized_total",
			Help:      "Total number of transcript lines finalized",
		}, []string{"speaker"}),
		LinesAbandoned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_lines_abandoned_total",
			Help:      "Total number of interim lines abandoned without a final result",
		}),
		TurnsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_emitted_total",
			Help:      "Total number of turns handed to the dispatcher",
		}),
		TurnsMerged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_merged_total",
			Help:      "Total number of final lines merged into a held turn by the silence gate",
		}),

		DispatchTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_transitions_total",
			Help:      "Total number of dispatcher state transitions",
		}, []string{"from", "to"}),
		DispatchSuppressed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_suppressed_total",
			Help:      "Total number of turns suppressed without a backend call",
		}, []string{"reason"}),
		DispatchStale: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_stale_results_total",
			Help:      "Total number of backend results discarded as stale",
		}),

		BackendAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_attempts_total",
			Help:      "Total number of suggestion backend attempts",
		}, []string{"provider", "outcome"}),
		BackendLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_latency_seconds",
			Help:      "Suggestion backend latency per attempt in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}, []string{"provider"}),
		BackendFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_fallbacks_total",
			Help:      "Total number of suggestions synthesized from the fallback templates",
		}),
		SuggestionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestions_total",
			Help:      "Total number of suggestions delivered to observers",
		}),
		SuggestionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestion_errors_total",
			Help:      "Total number of suggestion failures surfaced to observers",
		}, []string{"kind"}),

		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received",
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		STTErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of speech source errors",
		}, []string{"provider", "error_type"}),
		WebsocketClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Number of connected websocket clients",
		}),
		GRPCRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC calls handled",
		}, []string{"method", "code"}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordEventIngested records an accepted recognition event.
func (m *Metrics) RecordEventIngested(source string, final bool) {
	eventType := "partial"
	if final {
		eventType = "final"
	}
	m.EventsIngested.WithLabelValues(source, eventType).Inc()
}

// RecordEventDropped records a recognition event that never reached the transcript.
func (m *Metrics) RecordEventDropped(reason string) {
	m.EventsDropped.WithLabelValues(reason).Inc()
}

// RecordLineFinalized records a line becoming immutable.
func (m *Metrics) RecordLineFinalized(speaker string) {
	m.LinesFinalized.WithLabelValues(speaker).Inc()
}

// RecordLineAbandoned records an interim line that will never be finalized.
func (m *Metrics) RecordLineAbandoned() {
	m.LinesAbandoned.Inc()
}

// RecordTurn records a turn handed to the dispatcher.
func (m *Metrics) RecordTurn() {
	m.TurnsEmitted.Inc()
}

// RecordTurnMerged records a final line folded into a held turn.
func (m *Metrics) RecordTurnMerged() {
	m.TurnsMerged.Inc()
}

// RecordTransition records a dispatcher state change.
func (m *Metrics) RecordTransition(from, to string) {
	m.DispatchTransitions.WithLabelValues(from, to).Inc()
}

// RecordSuppressed records a turn that was suppressed before reaching the backend.
func (m *Metrics) RecordSuppressed(reason string) {
	m.DispatchSuppressed.WithLabelValues(reason).Inc()
}

// RecordStaleResult records a backend result discarded after teardown.
func (m *Metrics) RecordStaleResult() {
	m.DispatchStale.Inc()
}

// RecordBackendAttempt records one attempt against a provider.
func (m *Metrics) RecordBackendAttempt(provider, outcome string, latencySeconds float64) {
	m.BackendAttempts.WithLabelValues(provider, outcome).Inc()
	m.BackendLatency.WithLabelValues(provider).Observe(latencySeconds)
}

// RecordFallback records a synthesized suggestion.
func (m *Metrics) RecordFallback() {
	m.BackendFallbacks.Inc()
}

// RecordSuggestion records a suggestion delivered to observers.
func (m *Metrics) RecordSuggestion() {
	m.SuggestionsTotal.Inc()
}

// RecordSuggestionError records a failure surfaced to observers.
func (m *Metrics) RecordSuggestionError(kind string) {
	m.SuggestionErrors.WithLabelValues(kind).Inc()
}

// RecordAudioReceived records audio bytes and frames received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordSTTError records a speech source error.
func (m *Metrics) RecordSTTError(provider, errorType string) {
	m.STTErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordWebsocketConnect records a websocket client connecting.
func (m *Metrics) RecordWebsocketConnect() {
	m.WebsocketClients.Inc()
}

// RecordWebsocketDisconnect records a websocket client leaving.
func (m *Metrics) RecordWebsocketDisconnect() {
	m.WebsocketClients.Dec()
}

// RecordGRPCRequest records a handled gRPC call.
func (m *Metrics) RecordGRPCRequest(method, code string) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// SSE close reasons reported by the stream endpoints.
const (
	SSECloseReasonClosed   = "closed"
	SSECloseReasonTimeout  = "timeout"
	SSECloseReasonCanceled = "canceled"
)

// HTTPMetrics tracks the API server, currently its SSE streams.
type HTTPMetrics struct {
	sseConnections  *prometheus.GaugeVec
	sseDuration     *prometheus.HistogramVec
	sseMessagesSent *prometheus.CounterVec
	sseErrors       *prometheus.CounterVec
}

// NewHTTPMetrics creates and registers the HTTP metric family.
func NewHTTPMetrics(reg prometheus.Registerer) (*HTTPMetrics, error) {
	m := &HTTPMetrics{
		sseConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "portal_sse_active_connections",
			Help: "Open SSE connections, by endpoint.",
		}, []string{"endpoint"}),
		sseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_sse_connection_duration_seconds",
			Help:    "SSE connection lifetimes, by endpoint and close reason.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"endpoint", "reason"}),
		sseMessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_sse_messages_sent_total",
			Help: "SSE messages sent, by endpoint and event type.",
		}, []string{"endpoint", "event"}),
		sseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_sse_errors_total",
			Help: "SSE send errors, by endpoint and kind.",
		}, []string{"endpoint", "kind"}),
	}

	collectors := []prometheus.Collector{
		m.sseConnections, m.sseDuration, m.sseMessagesSent, m.sseErrors,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SSEConnectionStarted records a new SSE connection.
func (m *HTTPMetrics) SSEConnectionStarted(endpoint string) {
	m.sseConnections.WithLabelValues(endpoint).Inc()
}

// SSEConnectionClosed records a finished SSE connection.
func (m *HTTPMetrics) SSEConnectionClosed(endpoint string, seconds float64, reason string) {
	m.sseConnections.WithLabelValues(endpoint).Dec()
	m.sseDuration.WithLabelValues(endpoint, reason).Observe(seconds)
}

// RecordSSEMessageSent counts one SSE message.
func (m *HTTPMetrics) RecordSSEMessageSent(endpoint, event string) {
	m.sseMessagesSent.WithLabelValues(endpoint, event).Inc()
}

// RecordSSEError counts one SSE send error.
func (m *HTTPMetrics) RecordSSEError(endpoint, kind string) {
	m.sseErrors.WithLabelValues(endpoint, kind).Inc()
}

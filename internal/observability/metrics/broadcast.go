package metrics

import "github.com/prometheus/client_golang/prometheus"

// BroadcastMetrics tracks the location broadcast loop.
type BroadcastMetrics struct {
	sessionsStarted  prometheus.Counter
	sessionsStopped  *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	samplesForwarded prometheus.Counter
	sinkFailures     *prometheus.CounterVec
	watchErrors      prometheus.Counter
}

// NewBroadcastMetrics creates and registers the broadcast metric family.
func NewBroadcastMetrics(reg prometheus.Registerer) (*BroadcastMetrics, error) {
	m := &BroadcastMetrics{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_broadcast_sessions_started_total",
			Help: "Route sessions that reached the broadcasting state.",
		}),
		sessionsStopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_broadcast_sessions_stopped_total",
			Help: "Route sessions stopped, by reason.",
		}, []string{"reason"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_broadcast_active_sessions",
			Help: "Route sessions currently broadcasting.",
		}),
		samplesForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_broadcast_samples_forwarded_total",
			Help: "Position samples forwarded to the sink.",
		}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_broadcast_sink_failures_total",
			Help: "Best-effort sink writes that failed, by sink.",
		}, []string{"sink"}),
		watchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_broadcast_watch_errors_total",
			Help: "Watch-level errors that terminated a session.",
		}),
	}

	collectors := []prometheus.Collector{
		m.sessionsStarted, m.sessionsStopped, m.activeSessions,
		m.samplesForwarded, m.sinkFailures, m.watchErrors,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SessionStarted counts a session entering the broadcasting state.
func (m *BroadcastMetrics) SessionStarted() {
	m.sessionsStarted.Inc()
	m.activeSessions.Inc()
}

// SessionStopped counts a session leaving the broadcasting state.
func (m *BroadcastMetrics) SessionStopped(reason string) {
	m.sessionsStopped.WithLabelValues(reason).Inc()
	m.activeSessions.Dec()
}

// SampleForwarded counts one position sample pushed to the sink.
func (m *BroadcastMetrics) SampleForwarded() {
	m.samplesForwarded.Inc()
}

// SinkFailure counts a failed best-effort sink write.
func (m *BroadcastMetrics) SinkFailure(sink string) {
	m.sinkFailures.WithLabelValues(sink).Inc()
}

// WatchError counts a watch-level error that killed a session.
func (m *BroadcastMetrics) WatchError() {
	m.watchErrors.Inc()
}

// Package observability wires the portal's Prometheus metric families onto
// a single registry exposed at /metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/actransporte/portal/internal/observability/metrics"
)

// Metrics bundles all subsystem metric families.
type Metrics struct {
	registry *prometheus.Registry

	Cache     *metrics.CacheMetrics
	Broadcast *metrics.BroadcastMetrics
	HTTP      *metrics.HTTPMetrics
}

// NewMetrics creates a registry with process/go collectors and every
// subsystem family registered.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cache, err := metrics.NewCacheMetrics(reg)
	if err != nil {
		return nil, err
	}
	broadcast, err := metrics.NewBroadcastMetrics(reg)
	if err != nil {
		return nil, err
	}
	httpMetrics, err := metrics.NewHTTPMetrics(reg)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		registry:  reg,
		Cache:     cache,
		Broadcast: broadcast,
		HTTP:      httpMetrics,
	}, nil
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Package metrics defines the portal's Prometheus metric families, grouped
// per subsystem.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics tracks the offline asset cache.
type CacheMetrics struct {
	hits             *prometheus.CounterVec
	misses           *prometheus.CounterVec
	installs         prometheus.Counter
	installFailures  prometheus.Counter
	installedAssets  prometheus.Gauge
	activations      prometheus.Counter
	evictions        prometheus.Counter
	offlineFallbacks prometheus.Counter
}

// NewCacheMetrics creates and registers the cache metric family.
func NewCacheMetrics(reg prometheus.Registerer) (*CacheMetrics, error) {
	m := &CacheMetrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_cache_hits_total",
			Help: "Requests answered from the offline cache, by routing policy.",
		}, []string{"policy"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_cache_misses_total",
			Help: "Cache lookups that fell through to the network, by routing policy.",
		}, []string{"policy"}),
		installs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_cache_installs_total",
			Help: "Successful cache generation installs.",
		}),
		installFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_cache_install_failures_total",
			Help: "Aborted cache generation installs.",
		}),
		installedAssets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_cache_installed_assets",
			Help: "Assets stored by the most recent successful install.",
		}),
		activations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_cache_activations_total",
			Help: "Cache generation activations.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_cache_evicted_generations_total",
			Help: "Stale cache generations deleted during activation.",
		}),
		offlineFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_cache_offline_fallbacks_total",
			Help: "Requests answered with the offline fallback.",
		}),
	}

	collectors := []prometheus.Collector{
		m.hits, m.misses, m.installs, m.installFailures,
		m.installedAssets, m.activations, m.evictions, m.offlineFallbacks,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordHit counts a cache hit for the given routing policy.
func (m *CacheMetrics) RecordHit(policy string) {
	m.hits.WithLabelValues(policy).Inc()
}

// RecordMiss counts a cache miss for the given routing policy.
func (m *CacheMetrics) RecordMiss(policy string) {
	m.misses.WithLabelValues(policy).Inc()
}

// RecordInstall counts a successful install of n assets.
func (m *CacheMetrics) RecordInstall(n int) {
	m.installs.Inc()
	m.installedAssets.Set(float64(n))
}

// RecordInstallFailure counts an aborted install.
func (m *CacheMetrics) RecordInstallFailure() {
	m.installFailures.Inc()
}

// RecordActivation counts an activation that evicted n stale generations.
func (m *CacheMetrics) RecordActivation(evicted int) {
	m.activations.Inc()
	m.evictions.Add(float64(evicted))
}

// RecordOfflineFallback counts a request answered with the offline fallback.
func (m *CacheMetrics) RecordOfflineFallback() {
	m.offlineFallbacks.Inc()
}

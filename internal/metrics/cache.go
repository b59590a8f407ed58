package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics holds Prometheus metrics for settings cache performance.
type CacheMetrics struct {
	Hits          prometheus.Counter
	Misses        prometheus.Counter
	Invalidations *prometheus.CounterVec
}

// NewCacheMetrics creates and registers cache metrics on the given registry.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settings_cache",
			Name:      "hits_total",
			Help:      "Total number of settings cache hits.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settings_cache",
			Name:      "misses_total",
			Help:      "Total number of settings cache misses.",
		}),
		Invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settings_cache",
			Name:      "invalidations_total",
			Help:      "Total number of settings cache invalidations, by source.",
		}, []string{"source"}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.Invalidations)
	return m
}

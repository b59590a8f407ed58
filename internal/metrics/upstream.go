package metrics

import "github.com/prometheus/client_golang/prometheus"

// UpstreamMetrics tracks requests to the DDNet master server list.
type UpstreamMetrics struct {
	FetchDuration prometheus.Histogram
	FetchesTotal  *prometheus.CounterVec
	BreakerState  prometheus.Gauge
	ServersSeen   prometheus.Gauge
}

func NewUpstreamMetrics(reg prometheus.Registerer) *UpstreamMetrics {
	m := &UpstreamMetrics{
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of server list fetches in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "fetches_total",
			Help:      "Total number of server list fetches, by result.",
		}, []string{"result"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		ServersSeen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "servers",
			Help:      "Number of servers in the last fetched list.",
		}),
	}

	reg.MustRegister(m.FetchDuration, m.FetchesTotal, m.BreakerState, m.ServersSeen)
	return m
}

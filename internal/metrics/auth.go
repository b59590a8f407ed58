package metrics

import "github.com/prometheus/client_golang/prometheus"

// AuthMetrics counts login outcomes, purged sessions and live feed connections.
type AuthMetrics struct {
	Logins          *prometheus.CounterVec
	SessionsPurged  prometheus.Counter
	LiveConnections prometheus.Gauge
}

func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	m := &AuthMetrics{
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Total number of login attempts, by result.",
		}, []string{"result"}),
		SessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "sessions_purged_total",
			Help:      "Total number of expired sessions removed by the reaper.",
		}),
		LiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "live_connections",
			Help:      "Number of open live status websocket connections.",
		}),
	}

	reg.MustRegister(m.Logins, m.SessionsPurged, m.LiveConnections)
	return m
}

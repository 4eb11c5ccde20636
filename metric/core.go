package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the gateway's core metrics.
type Metrics struct {
	// Connection metrics
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter

	// Request metrics
	RequestsTotal     *prometheus.CounterVec // labels: action, status
	RejectionsTotal   *prometheus.CounterVec // labels: class (decode|grammar|schema|action)
	RequestDuration   prometheus.Histogram
	NotificationsLost prometheus.Counter

	// Backend metrics
	BackendErrors  prometheus.Counter
	BackendHealthy prometheus.Gauge
}

// NewMetrics creates the core metric set.
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "redisgate",
			Subsystem: "gateway",
			Name:      "connections_active",
			Help:      "Client connections currently being served",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "redisgate",
			Subsystem: "gateway",
			Name:      "connections_total",
			Help:      "Total client connections accepted",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "redisgate",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Requests processed, by action and response status",
		}, []string{"action", "status"}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "redisgate",
			Subsystem: "gateway",
			Name:      "rejections_total",
			Help:      "Requests rejected before reaching the backend, by error class",
		}, []string{"class"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "redisgate",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Time from decoded request to written response",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		NotificationsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "redisgate",
			Subsystem: "gateway",
			Name:      "notifications_lost_total",
			Help:      "Mutations that committed but whose notification publish failed",
		}),
		BackendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "redisgate",
			Subsystem: "backend",
			Name:      "errors_total",
			Help:      "Backend store operations that returned an error",
		}),
		BackendHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "redisgate",
			Subsystem: "backend",
			Name:      "healthy",
			Help:      "Whether the backend store answers pings (1=healthy)",
		}),
	}
}

// collectors returns every core metric for bulk registration.
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ConnectionsActive,
		m.ConnectionsTotal,
		m.RequestsTotal,
		m.RejectionsTotal,
		m.RequestDuration,
		m.NotificationsLost,
		m.BackendErrors,
		m.BackendHealthy,
	}
}

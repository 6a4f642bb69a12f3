package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	Issuances       prometheus.Counter
	Returns         prometheus.Counter
	Renewals        prometheus.Counter
	Cancellations   prometheus.Counter
	ConflictRetries prometheus.Counter
	StockRejections *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		Issuances: promauto.NewCounter(prometheus.CounterOpts{
			Name: "armora_issuances_total",
			Help: "Total number of successful issuance operations",
		}),
		Returns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "armora_returns_total",
			Help: "Total number of successful return operations",
		}),
		Renewals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "armora_renewals_total",
			Help: "Total number of successful renewal operations",
		}),
		Cancellations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "armora_cancellations_total",
			Help: "Total number of cancelled distributions",
		}),
		ConflictRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "armora_conflict_retries_total",
			Help: "Total number of commit-time version conflicts that triggered a retry",
		}),
		StockRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "armora_stock_rejections_total",
			Help: "Total number of operations rejected by stock validation",
		}, []string{"reason"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "armora_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status class",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// RecordRejection counts a validation rejection by reason (insufficient_stock,
// over_return, invalid_state, unknown_item).
func (m *Metrics) RecordRejection(reason string) {
	m.StockRejections.WithLabelValues(reason).Inc()
}

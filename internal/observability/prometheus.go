package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exposes store operation latency and counts.
type PrometheusRecorder struct {
	durations *prometheus.HistogramVec
	totals    *prometheus.CounterVec
}

// NewPrometheusRecorder creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clientcore",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Latency of client store operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation", "status"}),
		totals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clientcore",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Client store operations by outcome.",
		}, []string{"operation", "status"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{r.durations, r.totals} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := statusLabel(success)
	r.durations.WithLabelValues(operation, status).Observe(duration.Seconds())
	r.totals.WithLabelValues(operation, status).Inc()
}

package core

import (
	"time"

	"go.uber.org/zap"

	"clientcore/internal/blob"
	"clientcore/internal/observability"
)

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	log     *zap.Logger
	metrics observability.MetricsRecorder
	tracer  observability.Tracer
	exports blob.Store
	now     func() time.Time
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		log:     zap.NewNop(),
		metrics: observability.NoopMetrics{},
		tracer:  observability.NoopTracer{},
		now:     time.Now,
	}
}

// WithLogger sets the service logger. The store logs through it too.
func WithLogger(l *zap.Logger) Option {
	return func(o *serviceOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMetrics records store operations.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(o *serviceOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer traces store operations.
func WithTracer(t observability.Tracer) Option {
	return func(o *serviceOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithExportStore sets the blob store ExportToBlob writes to. Open fills it
// from configuration when unset.
func WithExportStore(s blob.Store) Option {
	return func(o *serviceOptions) {
		if s != nil {
			o.exports = s
		}
	}
}

// WithClock overrides time.Now for ids, created stamps and export names.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) {
		if now != nil {
			o.now = now
		}
	}
}

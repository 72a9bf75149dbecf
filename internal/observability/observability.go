// Package observability defines the metrics and tracing hooks the client store
// reports through, with expvar, JSON-lines and Prometheus exporters.
package observability

import (
	"context"
	"time"
)

// MetricsRecorder records the outcome and latency of a store operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around store operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is closed with the operation's error, nil on success.
type TraceSpan interface {
	End(err error)
}

// NoopMetrics discards observations.
type NoopMetrics struct{}

func (NoopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// NoopTracer produces spans that record nothing.
type NoopTracer struct{}

func (NoopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// MultiRecorder fans an observation out to every recorder.
type MultiRecorder []MetricsRecorder

func (m MultiRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range m {
		if r != nil {
			r.Observe(ctx, operation, success, duration)
		}
	}
}

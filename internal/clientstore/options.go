package clientstore

import (
	"strings"
	"time"

	"clientcore/internal/logging"
	"clientcore/internal/observability"
)

// DefaultKey is the persistence key holding the serialized collection.
const DefaultKey = "crm"

// Option configures a Store.
type Option func(*options)

type options struct {
	key     string
	strict  bool
	now     func() time.Time
	log     logging.Logger
	metrics observability.MetricsRecorder
	tracer  observability.Tracer
}

func defaultOptions() options {
	return options{
		key:     DefaultKey,
		now:     time.Now,
		log:     logging.Nop(),
		metrics: observability.NoopMetrics{},
		tracer:  observability.NoopTracer{},
	}
}

// WithKey overrides the persistence key.
func WithKey(key string) Option {
	return func(o *options) {
		if k := strings.TrimSpace(key); k != "" {
			o.key = k
		}
	}
}

// WithStrictLoad makes a malformed persisted blob fail loading with
// *domain.CorruptStoreError instead of being treated as empty.
func WithStrictLoad(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

// WithClock sets the time source for ids and created timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMetrics sets the operation metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the operation tracer.
func WithTracer(t observability.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

package observability

import (
	"context"
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// ExpvarMetricsRecorder publishes one expvar map per store operation, keyed by
// the same operation names and status values as PrometheusRecorder:
//
//	{"insert": {"success": 3, "error": 1, "duration_ms_total": 1.9, "duration_ms_max": 0.8}}
type ExpvarMetricsRecorder struct {
	name string
	ops  *expvar.Map

	mu  sync.Mutex
	max map[string]*expvar.Float
}

// OperationStats is the recorded view of one operation.
type OperationStats struct {
	Success         int64
	Error           int64
	DurationMSTotal float64
	DurationMSMax   float64
}

// MeanMS returns the mean latency, zero before the first observation.
func (s OperationStats) MeanMS() float64 {
	n := s.Success + s.Error
	if n == 0 {
		return 0
	}
	return s.DurationMSTotal / float64(n)
}

// NewExpvarMetricsRecorder publishes a recorder under name. An empty name
// gets a unique generated identifier; expvar panics on duplicate names.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("clientcore_store_operations_%d", id)
	}
	rec := &ExpvarMetricsRecorder{
		name: name,
		ops:  new(expvar.Map).Init(),
		max:  make(map[string]*expvar.Float),
	}
	expvar.Publish(name, rec.ops)
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops.Get(operation).(*expvar.Map)
	if !ok {
		op = new(expvar.Map).Init()
		op.Add("success", 0)
		op.Add("error", 0)
		op.AddFloat("duration_ms_total", 0)
		peak := new(expvar.Float)
		op.Set("duration_ms_max", peak)
		r.max[operation] = peak
		r.ops.Set(operation, op)
	}
	op.Add(statusLabel(success), 1)
	op.AddFloat("duration_ms_total", ms)
	if peak := r.max[operation]; ms > peak.Value() {
		peak.Set(ms)
	}
}

// Snapshot returns the stats of every observed operation.
func (r *ExpvarMetricsRecorder) Snapshot() map[string]OperationStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]OperationStats)
	r.ops.Do(func(kv expvar.KeyValue) {
		op := kv.Value.(*expvar.Map)
		var s OperationStats
		if v, ok := op.Get("success").(*expvar.Int); ok {
			s.Success = v.Value()
		}
		if v, ok := op.Get("error").(*expvar.Int); ok {
			s.Error = v.Value()
		}
		if v, ok := op.Get("duration_ms_total").(*expvar.Float); ok {
			s.DurationMSTotal = v.Value()
		}
		s.DurationMSMax = r.max[kv.Key].Value()
		out[kv.Key] = s
	})
	return out
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

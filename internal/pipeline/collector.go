package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"clientcore/pkg/domain"
)

// Collector exports the current stage counts as a gauge per stage. It reads a
// fresh snapshot on every scrape.
type Collector struct {
	snapshot func() []domain.ClientRecord
	stages   []domain.Stage
	desc     *prometheus.Desc
}

// NewCollector returns a collector over snapshot. Empty stages fall back to
// the default pipeline.
func NewCollector(snapshot func() []domain.ClientRecord, stages []domain.Stage) *Collector {
	if len(stages) == 0 {
		stages = domain.DefaultStages()
	}
	return &Collector{
		snapshot: snapshot,
		stages:   stages,
		desc: prometheus.NewDesc(
			"clientcore_pipeline_clients",
			"Clients currently in each pipeline stage.",
			[]string{"stage"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counts := CountsByStage(c.snapshot(), c.stages)
	emitted := make(map[domain.Stage]bool, len(c.stages))
	for i, st := range c.stages {
		// one series per label value; a repeated stage would fail the gather
		if emitted[st] {
			continue
		}
		emitted[st] = true
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts[i]), string(st))
	}
}

// Package metrics collects and exposes Prometheus metrics for the
// classification pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the recording interface used by the pipeline components.
type Collector interface {
	RecordCacheHit()
	RecordCacheMiss()
	RecordClassification(outcome string)
	RecordClassifyLatency(d time.Duration)
	RecordUpstreamRetry()
	RecordBatchRun()
	RecordSnapshotSave(ok bool)
}

// Outcome labels for RecordClassification.
const (
	OutcomeSuccess   = "success"
	OutcomeFormat    = "format_error"
	OutcomeTransient = "transient_error"
	OutcomeAuth      = "auth_error"
	OutcomeNetwork   = "network_error"
)

// PrometheusCollector registers and updates the service metrics.
type PrometheusCollector struct {
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	classifications *prometheus.CounterVec
	classifyLatency prometheus.Histogram
	upstreamRetries prometheus.Counter
	batchRuns       prometheus.Counter
	snapshotSaves   *prometheus.CounterVec
}

var _ Collector = (*PrometheusCollector)(nil)

func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inboxflow_cache_hits_total",
			Help: "Memo cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inboxflow_cache_misses_total",
			Help: "Memo cache misses.",
		}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inboxflow_classifications_total",
			Help: "Classification attempts by outcome.",
		}, []string{"outcome"}),
		classifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "inboxflow_classify_latency_seconds",
			Help:    "End-to-end latency of one classification call.",
			Buckets: prometheus.DefBuckets,
		}),
		upstreamRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inboxflow_upstream_retries_total",
			Help: "Retries against the external classifier.",
		}),
		batchRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inboxflow_batch_runs_total",
			Help: "Completed batch classification runs.",
		}),
		snapshotSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inboxflow_snapshot_saves_total",
			Help: "Snapshot persistence attempts by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.cacheHits,
		c.cacheMisses,
		c.classifications,
		c.classifyLatency,
		c.upstreamRetries,
		c.batchRuns,
		c.snapshotSaves,
	)

	return c
}

func (c *PrometheusCollector) RecordCacheHit()  { c.cacheHits.Inc() }
func (c *PrometheusCollector) RecordCacheMiss() { c.cacheMisses.Inc() }

func (c *PrometheusCollector) RecordClassification(outcome string) {
	c.classifications.WithLabelValues(outcome).Inc()
}

func (c *PrometheusCollector) RecordClassifyLatency(d time.Duration) {
	c.classifyLatency.Observe(d.Seconds())
}

func (c *PrometheusCollector) RecordUpstreamRetry() { c.upstreamRetries.Inc() }
func (c *PrometheusCollector) RecordBatchRun()      { c.batchRuns.Inc() }

func (c *PrometheusCollector) RecordSnapshotSave(ok bool) {
	if ok {
		c.snapshotSaves.WithLabelValues("ok").Inc()
	} else {
		c.snapshotSaves.WithLabelValues("error").Inc()
	}
}

// Noop discards all recordings. Tests and optional wiring use it.
type Noop struct{}

var _ Collector = Noop{}

func (Noop) RecordCacheHit()                      {}
func (Noop) RecordCacheMiss()                     {}
func (Noop) RecordClassification(string)          {}
func (Noop) RecordClassifyLatency(time.Duration)  {}
func (Noop) RecordUpstreamRetry()                 {}
func (Noop) RecordBatchRun()                      {}
func (Noop) RecordSnapshotSave(bool)              {}

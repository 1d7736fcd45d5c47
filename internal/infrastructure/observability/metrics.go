// Package observability exports cache-layer metrics to Prometheus and
// configures distributed tracing. The Prometheus collector mirrors what
// the in-process metrics collector records, so dashboards and the
// /cache/stats endpoint always agree.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the cache layer. Each
// instance owns its registry; construct one per process and inject it.
type Collector struct {
	registry *prometheus.Registry

	// Cache traffic
	CacheHits         *prometheus.CounterVec
	CacheMisses       *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Background jobs
	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	// Write-behind and expiry volumes
	FlushedDeltas   prometheus.Counter
	ExpiredOffers   prometheus.Counter
	WorkerPoolDrops prometheus.Counter
}

// NewCollector creates a Prometheus collector with the given namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	cacheHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total cache hits by key pattern",
		},
		[]string{"pattern"},
	)
	cacheMisses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total cache misses by key pattern",
		},
		[]string{"pattern"},
	)
	operationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
	jobRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_job_runs_total",
			Help:      "Background job runs by job and outcome",
		},
		[]string{"job", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "background_job_duration_seconds",
			Help:      "Background job duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"job"},
	)
	flushedDeltas := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_deltas_flushed_total",
			Help:      "Total buffered view-count increments flushed to the durable store",
		},
	)
	expiredOffers := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offers_expired_total",
			Help:      "Total offers transitioned to expired by the sweep",
		},
	)
	workerPoolDrops := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_pool_dropped_tasks_total",
			Help:      "Background tasks dropped because the worker queue was full",
		},
	)

	registry.MustRegister(
		cacheHits, cacheMisses, operationDuration,
		jobRuns, jobDuration,
		flushedDeltas, expiredOffers, workerPoolDrops,
	)

	return &Collector{
		registry:          registry,
		CacheHits:         cacheHits,
		CacheMisses:       cacheMisses,
		OperationDuration: operationDuration,
		JobRuns:           jobRuns,
		JobDuration:       jobDuration,
		FlushedDeltas:     flushedDeltas,
		ExpiredOffers:     expiredOffers,
		WorkerPoolDrops:   workerPoolDrops,
	}
}

// IncHit implements the metrics exporter contract.
func (c *Collector) IncHit(pattern string) {
	c.CacheHits.WithLabelValues(pattern).Inc()
}

// IncMiss implements the metrics exporter contract.
func (c *Collector) IncMiss(pattern string) {
	c.CacheMisses.WithLabelValues(pattern).Inc()
}

// ObserveLatency implements the metrics exporter contract.
func (c *Collector) ObserveLatency(operation string, seconds float64) {
	c.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordJobRun records a background job outcome.
func (c *Collector) RecordJobRun(job, status string, seconds float64) {
	c.JobRuns.WithLabelValues(job, status).Inc()
	c.JobDuration.WithLabelValues(job).Observe(seconds)
}

// Handler returns the HTTP handler serving this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

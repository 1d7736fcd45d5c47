// Package metrics implements the in-process cache metrics collector: it
// records a sample for every store operation, maintains aggregate and
// per-pattern counters under a single lock, and derives health status from
// hit-rate and latency thresholds.
package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Health thresholds. Hit rate and average latency breaches degrade the
// layer; a p95 breach alone only warns.
const (
	minHealthyHitRate    = 0.50
	maxHealthyAvgLatency = 50 * time.Millisecond
	maxHealthyP95Latency = 100 * time.Millisecond
)

// lowTrafficFloor is the minimum sample count before a pattern can be
// reported as low-hit-rate. Keeps one-off keys out of the report.
const lowTrafficFloor = 10

// pruneCheckEvery bounds how often retention pruning runs relative to
// record volume.
const pruneCheckEvery = 1024

// Sample is one recorded cache operation.
type Sample struct {
	Timestamp time.Time
	Operation string
	// KeyPattern is derived from the key (first two colon-delimited
	// segments), never the raw key.
	KeyPattern string
	Endpoint   string
	Hit        bool
	Latency    time.Duration
	SizeBytes  int
}

// Stats is the aggregate view over recorded samples.
type Stats struct {
	TotalRequests int64         `json:"totalRequests"`
	Hits          int64         `json:"hits"`
	Misses        int64         `json:"misses"`
	HitRate       float64       `json:"hitRate"`
	MissRate      float64       `json:"missRate"`
	AvgLatencyMs  float64       `json:"avgLatencyMs"`
	P50LatencyMs  float64       `json:"p50LatencyMs"`
	P95LatencyMs  float64       `json:"p95LatencyMs"`
	P99LatencyMs  float64       `json:"p99LatencyMs"`
	Window        time.Duration `json:"-"`
}

// PatternStats is the aggregate view for one key pattern or endpoint.
type PatternStats struct {
	Pattern       string  `json:"pattern"`
	TotalRequests int64   `json:"totalRequests"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	HitRate       float64 `json:"hitRate"`
	AvgLatencyMs  float64 `json:"avgLatencyMs"`
}

// HealthState is the derived health classification.
type HealthState string

const (
	StatusHealthy  HealthState = "healthy"
	StatusWarning  HealthState = "warning"
	StatusDegraded HealthState = "degraded"
)

// HealthStatus is the health report for the cache layer.
type HealthStatus struct {
	Status   HealthState `json:"status"`
	Warnings []string    `json:"warnings"`
}

// Exporter mirrors recorded operations into an external metrics system.
// The Prometheus collector implements this.
type Exporter interface {
	IncHit(pattern string)
	IncMiss(pattern string)
	ObserveLatency(operation string, seconds float64)
}

type aggregate struct {
	requests     int64
	hits         int64
	misses       int64
	totalLatency time.Duration
}

// Collector records cache operation samples and computes statistics.
// Constructed explicitly and injected; there is no package-level instance.
type Collector struct {
	mu        sync.Mutex
	samples   []Sample
	total     aggregate
	patterns  map[string]*aggregate
	endpoints map[string]*aggregate

	retention        time.Duration
	percentileWindow int
	exporter         Exporter

	recordCount int64
}

// Option configures a Collector.
type Option func(*Collector)

// WithRetention overrides the sample retention window.
func WithRetention(d time.Duration) Option {
	return func(c *Collector) { c.retention = d }
}

// WithPercentileWindow overrides how many recent samples feed percentile
// computation.
func WithPercentileWindow(n int) Option {
	return func(c *Collector) { c.percentileWindow = n }
}

// WithExporter mirrors recorded operations into an external system.
func WithExporter(e Exporter) Option {
	return func(c *Collector) { c.exporter = e }
}

// NewCollector creates a metrics collector.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		patterns:         make(map[string]*aggregate),
		endpoints:        make(map[string]*aggregate),
		retention:        24 * time.Hour,
		percentileWindow: 10000,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecordOperation appends a sample and updates the running aggregates.
// endpoint may be empty when the operation was not request-attributed.
func (c *Collector) RecordOperation(operation, key string, hit bool, latency time.Duration, endpoint string) {
	pattern := DerivePattern(key)

	c.mu.Lock()
	c.samples = append(c.samples, Sample{
		Timestamp:  time.Now(),
		Operation:  operation,
		KeyPattern: pattern,
		Endpoint:   endpoint,
		Hit:        hit,
		Latency:    latency,
	})
	c.total.add(hit, latency)
	c.patternAgg(pattern).add(hit, latency)
	if endpoint != "" {
		c.endpointAgg(endpoint).add(hit, latency)
	}
	c.recordCount++
	if c.recordCount%pruneCheckEvery == 0 {
		c.pruneLocked(time.Now())
	}
	c.mu.Unlock()

	if c.exporter != nil {
		if hit {
			c.exporter.IncHit(pattern)
		} else {
			c.exporter.IncMiss(pattern)
		}
		c.exporter.ObserveLatency(operation, latency.Seconds())
	}
}

// Observe implements the kvstore operation observer, so a Collector can be
// plugged directly into a store.
func (c *Collector) Observe(operation, key string, hit bool, latency time.Duration, err error) {
	c.RecordOperation(operation, key, hit, latency, "")
}

// GetOverallStats returns aggregate statistics. Percentiles are computed
// over the most recent bounded window to keep cost flat.
func (c *Collector) GetOverallStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := statsFromAggregate(c.total)
	p50, p95, p99 := c.percentilesLocked()
	stats.P50LatencyMs = p50
	stats.P95LatencyMs = p95
	stats.P99LatencyMs = p99
	stats.Window = c.retention
	return stats
}

// GetPatternStats returns per-pattern statistics. An empty pattern returns
// every tracked pattern.
func (c *Collector) GetPatternStats(pattern string) map[string]PatternStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]PatternStats)
	if pattern != "" {
		if agg, ok := c.patterns[pattern]; ok {
			out[pattern] = patternStatsFrom(pattern, agg)
		}
		return out
	}
	for p, agg := range c.patterns {
		out[p] = patternStatsFrom(p, agg)
	}
	return out
}

// GetEndpointStats returns per-endpoint statistics. An empty endpoint
// returns every tracked endpoint.
func (c *Collector) GetEndpointStats(endpoint string) map[string]PatternStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]PatternStats)
	if endpoint != "" {
		if agg, ok := c.endpoints[endpoint]; ok {
			out[endpoint] = patternStatsFrom(endpoint, agg)
		}
		return out
	}
	for e, agg := range c.endpoints {
		out[e] = patternStatsFrom(e, agg)
	}
	return out
}

// GetTopPatterns returns the busiest patterns by request volume.
func (c *Collector) GetTopPatterns(limit int) []PatternStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := make([]PatternStats, 0, len(c.patterns))
	for p, agg := range c.patterns {
		all = append(all, patternStatsFrom(p, agg))
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].TotalRequests != all[j].TotalRequests {
			return all[i].TotalRequests > all[j].TotalRequests
		}
		return all[i].Pattern < all[j].Pattern
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// GetLowHitRatePatterns returns patterns whose hit rate falls below the
// threshold, skipping patterns with too few samples to be meaningful.
func (c *Collector) GetLowHitRatePatterns(threshold float64, limit int) []PatternStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var low []PatternStats
	for p, agg := range c.patterns {
		if agg.requests < lowTrafficFloor {
			continue
		}
		ps := patternStatsFrom(p, agg)
		if ps.HitRate < threshold {
			low = append(low, ps)
		}
	}
	sort.Slice(low, func(i, j int) bool {
		if low[i].HitRate != low[j].HitRate {
			return low[i].HitRate < low[j].HitRate
		}
		return low[i].Pattern < low[j].Pattern
	})
	if limit > 0 && len(low) > limit {
		low = low[:limit]
	}
	return low
}

// GetHealthStatus derives the health classification from three
// independent thresholds. A p95 breach warns but never downgrades an
// already-degraded status.
func (c *Collector) GetHealthStatus() HealthStatus {
	c.mu.Lock()
	total := c.total
	_, p95, _ := c.percentilesLocked()
	c.mu.Unlock()

	health := HealthStatus{Status: StatusHealthy, Warnings: []string{}}
	if total.requests == 0 {
		return health
	}

	hitRate := float64(total.hits) / float64(total.requests)
	avgLatency := total.totalLatency / time.Duration(total.requests)

	if hitRate < minHealthyHitRate {
		health.Status = StatusDegraded
		health.Warnings = append(health.Warnings, "hit rate below 50%")
	}
	if avgLatency > maxHealthyAvgLatency {
		health.Status = StatusDegraded
		health.Warnings = append(health.Warnings, "average latency above 50ms")
	}
	if p95 > float64(maxHealthyP95Latency.Milliseconds()) {
		health.Warnings = append(health.Warnings, "p95 latency above 100ms")
		if health.Status == StatusHealthy {
			health.Status = StatusWarning
		}
	}
	return health
}

// ResetStats clears all counters and samples. Used for test isolation and
// operational resets; never called automatically.
func (c *Collector) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = nil
	c.total = aggregate{}
	c.patterns = make(map[string]*aggregate)
	c.endpoints = make(map[string]*aggregate)
	c.recordCount = 0
}

// Prune drops samples older than the retention window.
func (c *Collector) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruneLocked(time.Now())
}

func (c *Collector) pruneLocked(now time.Time) int {
	cutoff := now.Add(-c.retention)
	idx := sort.Search(len(c.samples), func(i int) bool {
		return c.samples[i].Timestamp.After(cutoff)
	})
	if idx == 0 {
		return 0
	}
	pruned := idx
	c.samples = append([]Sample(nil), c.samples[idx:]...)
	return pruned
}

func (c *Collector) percentilesLocked() (p50, p95, p99 float64) {
	window := c.samples
	if len(window) > c.percentileWindow {
		window = window[len(window)-c.percentileWindow:]
	}
	if len(window) == 0 {
		return 0, 0, 0
	}
	latencies := make([]float64, len(window))
	for i, s := range window {
		latencies[i] = float64(s.Latency.Microseconds()) / 1000.0
	}
	sort.Float64s(latencies)
	return percentile(latencies, 0.50), percentile(latencies, 0.95), percentile(latencies, 0.99)
}

// percentile expects sorted input.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted))*p+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func (a *aggregate) add(hit bool, latency time.Duration) {
	a.requests++
	if hit {
		a.hits++
	} else {
		a.misses++
	}
	a.totalLatency += latency
}

func (c *Collector) patternAgg(pattern string) *aggregate {
	agg, ok := c.patterns[pattern]
	if !ok {
		agg = &aggregate{}
		c.patterns[pattern] = agg
	}
	return agg
}

func (c *Collector) endpointAgg(endpoint string) *aggregate {
	agg, ok := c.endpoints[endpoint]
	if !ok {
		agg = &aggregate{}
		c.endpoints[endpoint] = agg
	}
	return agg
}

func statsFromAggregate(a aggregate) Stats {
	stats := Stats{
		TotalRequests: a.requests,
		Hits:          a.hits,
		Misses:        a.misses,
	}
	if a.requests > 0 {
		stats.HitRate = float64(a.hits) / float64(a.requests)
		stats.MissRate = float64(a.misses) / float64(a.requests)
		stats.AvgLatencyMs = float64(a.totalLatency.Microseconds()) / 1000.0 / float64(a.requests)
	}
	return stats
}

func patternStatsFrom(pattern string, a *aggregate) PatternStats {
	ps := PatternStats{
		Pattern:       pattern,
		TotalRequests: a.requests,
		Hits:          a.hits,
		Misses:        a.misses,
	}
	if a.requests > 0 {
		ps.HitRate = float64(a.hits) / float64(a.requests)
		ps.AvgLatencyMs = float64(a.totalLatency.Microseconds()) / 1000.0 / float64(a.requests)
	}
	return ps
}

// DerivePattern reduces a raw key to its pattern: the first two
// colon-delimited segments. Raw keys never reach the sample log.
func DerivePattern(key string) string {
	if key == "" {
		return "(none)"
	}
	parts := strings.SplitN(key, ":", 3)
	if len(parts) <= 2 {
		return key
	}
	return parts[0] + ":" + parts[1]
}

package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivePattern(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"feed:discover:25.20,55.27:none:1:20", "feed:discover"},
		{"user:123", "user:123"},
		{"presence:u1", "presence:u1"},
		{"product:views:pending:p1", "product:views"},
		{"plain", "plain"},
		{"", "(none)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DerivePattern(tt.key), "key %q", tt.key)
	}
}

func TestCollector_HitRate(t *testing.T) {
	c := NewCollector()

	for i := 0; i < 7; i++ {
		c.RecordOperation("get", "feed:discover:x", true, time.Millisecond, "")
	}
	for i := 0; i < 3; i++ {
		c.RecordOperation("get", "feed:discover:x", false, time.Millisecond, "")
	}

	stats := c.GetOverallStats()
	assert.Equal(t, int64(10), stats.TotalRequests)
	assert.Equal(t, int64(7), stats.Hits)
	assert.Equal(t, int64(3), stats.Misses)
	assert.InDelta(t, 0.7, stats.HitRate, 1e-9)
}

func TestCollector_Percentiles(t *testing.T) {
	c := NewCollector()

	// 100 samples with latencies 1ms..100ms.
	for i := 1; i <= 100; i++ {
		c.RecordOperation("get", "user:1", true, time.Duration(i)*time.Millisecond, "")
	}

	stats := c.GetOverallStats()
	assert.InDelta(t, 50.0, stats.P50LatencyMs, 1.5)
	assert.InDelta(t, 95.0, stats.P95LatencyMs, 1.5)
	assert.InDelta(t, 99.0, stats.P99LatencyMs, 1.5)
}

func TestCollector_PerPatternAndEndpoint(t *testing.T) {
	c := NewCollector()

	c.RecordOperation("get", "feed:discover:a", true, time.Millisecond, "GET /feed")
	c.RecordOperation("get", "feed:discover:b", false, time.Millisecond, "GET /feed")
	c.RecordOperation("get", "user:1", true, time.Millisecond, "")

	patterns := c.GetPatternStats("feed:discover")
	require.Contains(t, patterns, "feed:discover")
	assert.Equal(t, int64(2), patterns["feed:discover"].TotalRequests)
	assert.InDelta(t, 0.5, patterns["feed:discover"].HitRate, 1e-9)

	endpoints := c.GetEndpointStats("GET /feed")
	require.Contains(t, endpoints, "GET /feed")
	assert.Equal(t, int64(2), endpoints["GET /feed"].TotalRequests)
}

func TestCollector_TopPatterns(t *testing.T) {
	c := NewCollector()

	for i := 0; i < 5; i++ {
		c.RecordOperation("get", "feed:discover:x", true, time.Millisecond, "")
	}
	for i := 0; i < 2; i++ {
		c.RecordOperation("get", "user:1", true, time.Millisecond, "")
	}

	top := c.GetTopPatterns(1)
	require.Len(t, top, 1)
	assert.Equal(t, "feed:discover", top[0].Pattern)
}

func TestCollector_LowHitRateSkipsLowTraffic(t *testing.T) {
	c := NewCollector()

	// Below the sample floor: never reported regardless of hit rate.
	for i := 0; i < int(lowTrafficFloor)-1; i++ {
		c.RecordOperation("get", "search:results:x", false, time.Millisecond, "")
	}
	assert.Empty(t, c.GetLowHitRatePatterns(0.5, 10))

	// Past the floor with an all-miss profile it is reported.
	for i := 0; i < 5; i++ {
		c.RecordOperation("get", "search:results:x", false, time.Millisecond, "")
	}
	low := c.GetLowHitRatePatterns(0.5, 10)
	require.Len(t, low, 1)
	assert.Equal(t, "search:results", low[0].Pattern)
}

func TestCollector_HealthStates(t *testing.T) {
	t.Run("empty is healthy", func(t *testing.T) {
		c := NewCollector()
		assert.Equal(t, StatusHealthy, c.GetHealthStatus().Status)
	})

	t.Run("low hit rate degrades", func(t *testing.T) {
		c := NewCollector()
		for i := 0; i < 20; i++ {
			c.RecordOperation("get", "user:1", i%5 == 0, time.Millisecond, "")
		}
		health := c.GetHealthStatus()
		assert.Equal(t, StatusDegraded, health.Status)
		assert.Contains(t, health.Warnings, "hit rate below 50%")
	})

	t.Run("slow p95 warns without degrading", func(t *testing.T) {
		c := NewCollector()
		// Healthy hit rate and average, but a slow tail.
		for i := 0; i < 90; i++ {
			c.RecordOperation("get", "user:1", true, time.Millisecond, "")
		}
		for i := 0; i < 10; i++ {
			c.RecordOperation("get", "user:1", true, 200*time.Millisecond, "")
		}
		health := c.GetHealthStatus()
		assert.Equal(t, StatusWarning, health.Status)
		assert.Contains(t, health.Warnings, "p95 latency above 100ms")
	})

	t.Run("slow average degrades", func(t *testing.T) {
		c := NewCollector()
		for i := 0; i < 20; i++ {
			c.RecordOperation("get", "user:1", true, 80*time.Millisecond, "")
		}
		assert.Equal(t, StatusDegraded, c.GetHealthStatus().Status)
	})
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector()
	c.RecordOperation("get", "user:1", true, time.Millisecond, "")
	c.ResetStats()

	stats := c.GetOverallStats()
	assert.Zero(t, stats.TotalRequests)
	assert.Empty(t, c.GetPatternStats(""))
}

type fakeExporter struct {
	hits, misses int
	latencies    int
}

func (f *fakeExporter) IncHit(string)                  { f.hits++ }
func (f *fakeExporter) IncMiss(string)                 { f.misses++ }
func (f *fakeExporter) ObserveLatency(string, float64) { f.latencies++ }

func TestCollector_ExporterMirroring(t *testing.T) {
	exp := &fakeExporter{}
	c := NewCollector(WithExporter(exp))

	c.RecordOperation("get", "user:1", true, time.Millisecond, "")
	c.RecordOperation("get", "user:1", false, time.Millisecond, "")

	assert.Equal(t, 1, exp.hits)
	assert.Equal(t, 1, exp.misses)
	assert.Equal(t, 2, exp.latencies)
}

func TestCollector_ObserveAdaptsStoreSignature(t *testing.T) {
	c := NewCollector()
	c.Observe("get", "feed:discover:x", true, time.Millisecond, nil)
	assert.Equal(t, int64(1), c.GetOverallStats().TotalRequests)
}

// Package metrics implements query-level cache metrics: atomic
// hit/miss/latency accounting plus latency percentiles over recent samples.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/cordal/queryflow/pkg/models"
)

type queryCounters struct {
	hits                  atomic.Uint64
	misses                atomic.Uint64
	firstAccessMillis     atomic.Int64
	lastAccessMillis      atomic.Int64
	cacheLatencySumMillis atomic.Int64
	dbLatencySumMillis    atomic.Int64
}

// Collector accumulates MetricsSample records into aggregate and per-query
// counters, plus a rolling latency ring buffer for percentiles.
type Collector struct {
	totalRequests         atomic.Uint64
	totalHits             atomic.Uint64
	totalMisses           atomic.Uint64
	cacheLatencySumMillis atomic.Int64
	dbLatencySumMillis    atomic.Int64

	mu       sync.RWMutex
	perQuery map[string]*queryCounters

	latency *ringBuffer
}

// NewCollector creates a collector with a 10,000-sample latency ring buffer.
func NewCollector() *Collector {
	return &Collector{
		perQuery: make(map[string]*queryCounters),
		latency:  newRingBuffer(10000),
	}
}

// Record accounts for one executed query.
func (c *Collector) Record(sample models.MetricsSample) {
	c.totalRequests.Add(1)
	if sample.Hit {
		c.totalHits.Add(1)
		c.cacheLatencySumMillis.Add(sample.LatencyMillis)
	} else {
		c.totalMisses.Add(1)
		c.dbLatencySumMillis.Add(sample.LatencyMillis)
	}
	c.latency.add(float64(sample.LatencyMillis))

	qc := c.queryCountersFor(sample.QueryName)
	if sample.Hit {
		qc.hits.Add(1)
		qc.cacheLatencySumMillis.Add(sample.LatencyMillis)
	} else {
		qc.misses.Add(1)
		qc.dbLatencySumMillis.Add(sample.LatencyMillis)
	}
	qc.lastAccessMillis.Store(sample.AtMillis)
	qc.firstAccessMillis.CompareAndSwap(0, sample.AtMillis)
}

func (c *Collector) queryCountersFor(name string) *queryCounters {
	c.mu.RLock()
	qc, ok := c.perQuery[name]
	c.mu.RUnlock()
	if ok {
		return qc
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if qc, ok := c.perQuery[name]; ok {
		return qc
	}
	qc = &queryCounters{}
	c.perQuery[name] = qc
	return qc
}

// Snapshot returns the current aggregate and per-query counters plus
// latency percentiles computed over the retained samples.
func (c *Collector) Snapshot() models.Snapshot {
	totalHits := c.totalHits.Load()
	totalMisses := c.totalMisses.Load()
	totalRequests := c.totalRequests.Load()

	snap := models.Snapshot{
		TotalRequests: totalRequests,
		TotalHits:     totalHits,
		TotalMisses:   totalMisses,
		PerQuery:      make(map[string]models.QuerySnapshot),
	}
	if totalRequests > 0 {
		snap.HitRate = float64(totalHits) / float64(totalRequests)
	}
	if totalHits > 0 {
		snap.AvgCacheResponseTimeMs = float64(c.cacheLatencySumMillis.Load()) / float64(totalHits)
	}
	if totalMisses > 0 {
		snap.AvgDBResponseTimeMs = float64(c.dbLatencySumMillis.Load()) / float64(totalMisses)
	}

	c.mu.RLock()
	for name, qc := range c.perQuery {
		snap.PerQuery[name] = models.QuerySnapshot{
			QueryName:             name,
			Hits:                  qc.hits.Load(),
			Misses:                qc.misses.Load(),
			FirstAccessMillis:     qc.firstAccessMillis.Load(),
			LastAccessMillis:      qc.lastAccessMillis.Load(),
			CacheLatencySumMillis: qc.cacheLatencySumMillis.Load(),
			DBLatencySumMillis:    qc.dbLatencySumMillis.Load(),
		}
	}
	c.mu.RUnlock()

	stats := calculateLatencyStats(c.latency.getAll())
	snap.P50Millis, snap.P90Millis, snap.P95Millis, snap.P99Millis = stats.p50, stats.p90, stats.p95, stats.p99

	return snap
}

// Reset zeroes every counter and drops all retained latency samples.
func (c *Collector) Reset() {
	c.totalRequests.Store(0)
	c.totalHits.Store(0)
	c.totalMisses.Store(0)
	c.cacheLatencySumMillis.Store(0)
	c.dbLatencySumMillis.Store(0)

	c.mu.Lock()
	c.perQuery = make(map[string]*queryCounters)
	c.mu.Unlock()

	c.latency.reset()
}

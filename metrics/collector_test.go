package metrics

import (
	"testing"

	"github.com/cordal/queryflow/pkg/models"
)

func TestCollector_RecordsHitsAndMisses(t *testing.T) {
	c := NewCollector()
	c.Record(models.MetricsSample{QueryName: "trades", Hit: true, LatencyMillis: 5, AtMillis: 1})
	c.Record(models.MetricsSample{QueryName: "trades", Hit: false, LatencyMillis: 50, AtMillis: 2})

	snap := c.Snapshot()
	if snap.TotalRequests != 2 || snap.TotalHits != 1 || snap.TotalMisses != 1 {
		t.Fatalf("expected 2 requests/1 hit/1 miss, got %+v", snap)
	}
	if snap.HitRate != 0.5 {
		t.Fatalf("expected hit rate 0.5, got %v", snap.HitRate)
	}
	if snap.AvgCacheResponseTimeMs != 5 {
		t.Fatalf("expected avg cache response 5ms, got %v", snap.AvgCacheResponseTimeMs)
	}
	if snap.AvgDBResponseTimeMs != 50 {
		t.Fatalf("expected avg db response 50ms, got %v", snap.AvgDBResponseTimeMs)
	}
}

func TestCollector_PerQueryBreakdown(t *testing.T) {
	c := NewCollector()
	c.Record(models.MetricsSample{QueryName: "trades", Hit: true, LatencyMillis: 1, AtMillis: 10})
	c.Record(models.MetricsSample{QueryName: "portfolio", Hit: false, LatencyMillis: 2, AtMillis: 20})

	snap := c.Snapshot()
	if len(snap.PerQuery) != 2 {
		t.Fatalf("expected 2 per-query entries, got %d", len(snap.PerQuery))
	}
	trades := snap.PerQuery["trades"]
	if trades.Hits != 1 || trades.FirstAccessMillis != 10 || trades.LastAccessMillis != 10 {
		t.Fatalf("unexpected trades counters: %+v", trades)
	}
}

func TestCollector_PercentilesOverSamples(t *testing.T) {
	c := NewCollector()
	for i := 1; i <= 100; i++ {
		c.Record(models.MetricsSample{QueryName: "q", Hit: true, LatencyMillis: int64(i), AtMillis: int64(i)})
	}
	snap := c.Snapshot()
	if snap.P50Millis < 49 || snap.P50Millis > 51 {
		t.Fatalf("expected p50 near 50, got %v", snap.P50Millis)
	}
	if snap.P99Millis < 98 {
		t.Fatalf("expected p99 near 99-100, got %v", snap.P99Millis)
	}
}

func TestCollector_ResetZeroesEverything(t *testing.T) {
	c := NewCollector()
	c.Record(models.MetricsSample{QueryName: "trades", Hit: true, LatencyMillis: 5, AtMillis: 1})
	c.Reset()

	snap := c.Snapshot()
	if snap.TotalRequests != 0 || len(snap.PerQuery) != 0 {
		t.Fatalf("expected a fully zeroed snapshot after Reset, got %+v", snap)
	}
}

func TestCollector_EmptySnapshotHasZeroHitRate(t *testing.T) {
	c := NewCollector()
	snap := c.Snapshot()
	if snap.HitRate != 0 {
		t.Fatalf("expected 0 hit rate with no requests, got %v", snap.HitRate)
	}
}

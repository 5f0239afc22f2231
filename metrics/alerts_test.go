package metrics

import (
	"testing"

	"github.com/cordal/queryflow/pkg/models"
)

func newTestAlertManager() *AlertManager {
	return NewAlertManager(NewCollector(), AlertThresholds{MinHitRate: 0.5, MaxP99Latency: 100, MinSampleSize: 5})
}

func TestAlertManager_SuppressedBelowMinSampleSize(t *testing.T) {
	am := newTestAlertManager()
	am.evaluate(models.Snapshot{TotalRequests: 1, HitRate: 0})
	if len(am.Active()) != 0 {
		t.Fatalf("expected no alerts below the minimum sample size, got %v", am.Active())
	}
}

func TestAlertManager_FiresLowHitRate(t *testing.T) {
	am := newTestAlertManager()
	am.evaluate(models.Snapshot{TotalRequests: 10, HitRate: 0.1})

	active := am.Active()
	if len(active) != 1 || active[0].Type != AlertLowHitRate {
		t.Fatalf("expected a single low-hit-rate alert, got %v", active)
	}
}

func TestAlertManager_FiresLatencySpike(t *testing.T) {
	am := newTestAlertManager()
	am.evaluate(models.Snapshot{TotalRequests: 10, HitRate: 0.9, P99Millis: 5000})

	active := am.Active()
	if len(active) != 1 || active[0].Type != AlertLatencySpike {
		t.Fatalf("expected a single latency-spike alert, got %v", active)
	}
}

func TestAlertManager_ClearsResolvedAlert(t *testing.T) {
	am := newTestAlertManager()
	am.evaluate(models.Snapshot{TotalRequests: 10, HitRate: 0.1})
	if len(am.Active()) != 1 {
		t.Fatalf("expected the low-hit-rate alert to fire first")
	}

	am.evaluate(models.Snapshot{TotalRequests: 10, HitRate: 0.9})
	if len(am.Active()) != 0 {
		t.Fatalf("expected the alert to clear once hit rate recovers, got %v", am.Active())
	}
}

func TestAlertManager_ShutdownIsIdempotent(t *testing.T) {
	am := newTestAlertManager()
	am.Shutdown()
	am.Shutdown()
}

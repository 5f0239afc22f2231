package cache

import (
	"testing"
	"time"
)

func TestManager_GetOrCreateIsIdempotent(t *testing.T) {
	m := NewManager(DefaultManagerConfig())
	t.Cleanup(m.Shutdown)

	s1 := m.GetOrCreate("widgets", Config{})
	s2 := m.GetOrCreate("widgets", Config{})
	if s1 != s2 {
		t.Fatal("expected GetOrCreate to return the same store instance for a repeated name")
	}
}

func TestManager_GetReturnsNilForUnknownStore(t *testing.T) {
	m := NewManager(DefaultManagerConfig())
	t.Cleanup(m.Shutdown)
	if m.Get("never-created") != nil {
		t.Fatal("expected nil for a store that was never referenced")
	}
}

func TestManager_InvalidateScopesToNamedStore(t *testing.T) {
	m := NewManager(DefaultManagerConfig())
	t.Cleanup(m.Shutdown)

	widgets := m.GetOrCreate("widgets", Config{})
	widgets.Put("widgets:1", "a", 0)
	gadgets := m.GetOrCreate("gadgets", Config{})
	gadgets.Put("gadgets:1", "b", 0)

	n := m.Invalidate("widgets:*")
	if n != 1 {
		t.Fatalf("expected 1 invalidated entry scoped to widgets, got %d", n)
	}
	if _, ok := gadgets.Get("gadgets:1"); !ok {
		t.Error("expected gadgets:1 to survive an invalidation scoped to widgets")
	}
}

func TestManager_InvalidateLiteralPatternWithNoTrailingWildcard(t *testing.T) {
	m := NewManager(DefaultManagerConfig())
	t.Cleanup(m.Shutdown)

	portfolio := m.GetOrCreate("portfolio", Config{})
	portfolio.Put("portfolio:123", "a", 0)

	n := m.Invalidate("portfolio:123")
	if n != 1 {
		t.Fatalf("expected 1 invalidated entry for an exact, non-wildcard pattern, got %d", n)
	}
	if _, ok := portfolio.Get("portfolio:123"); ok {
		t.Error("expected portfolio:123 to be invalidated")
	}
}

func TestManager_StatisticsCoversEveryStore(t *testing.T) {
	m := NewManager(DefaultManagerConfig())
	t.Cleanup(m.Shutdown)

	m.GetOrCreate("widgets", Config{}).Put("widgets:1", "a", 0)
	m.GetOrCreate("gadgets", Config{}).Put("gadgets:1", "b", 0)

	stats := m.Statistics()
	if len(stats) != 2 {
		t.Fatalf("expected statistics for 2 stores, got %d", len(stats))
	}
	if stats["widgets"].Puts != 1 || stats["gadgets"].Puts != 1 {
		t.Fatalf("expected 1 put recorded per store, got %+v", stats)
	}
}

func TestManager_ScavengerCleansExpiredEntries(t *testing.T) {
	m := NewManager(ManagerConfig{MaxEntries: 10, DefaultTTLSeconds: 300, CleanupPeriodSeconds: 1})
	t.Cleanup(m.Shutdown)

	store := m.GetOrCreate("widgets", Config{MaxEntries: 10, DefaultTTLSeconds: 1})
	store.Put("widgets:1", "a", 1)

	time.Sleep(2200 * time.Millisecond)

	if store.Size() != 0 {
		t.Fatalf("expected the scavenger to clean up the expired entry, got size %d", store.Size())
	}
}

func TestManager_ShutdownIsIdempotent(t *testing.T) {
	m := NewManager(DefaultManagerConfig())
	m.Shutdown()
	m.Shutdown()
}

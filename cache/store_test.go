package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestStore_PutThenGet(t *testing.T) {
	s := NewStore("widgets", Config{MaxEntries: 10, DefaultTTLSeconds: 60}, 1)
	s.Put("widgets:1", "widget", 0)

	v, ok := s.Get("widgets:1")
	if !ok || v != "widget" {
		t.Fatalf("expected a hit with value %q, got %v, %v", "widget", v, ok)
	}
	stats := s.Statistics()
	if stats.Hits != 1 || stats.Puts != 1 {
		t.Fatalf("expected 1 hit and 1 put, got %+v", stats)
	}
}

func TestStore_MissOnUnknownKey(t *testing.T) {
	s := NewStore("widgets", DefaultConfig(), 1)
	if _, ok := s.Get("missing"); ok {
		t.Fatal("expected a miss for an unknown key")
	}
	if s.Statistics().Misses != 1 {
		t.Fatalf("expected 1 recorded miss, got %+v", s.Statistics())
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	s := NewStore("widgets", Config{MaxEntries: 10, DefaultTTLSeconds: 60}, 1)
	s.Put("widgets:2", "widget2", 1)
	time.Sleep(1100 * time.Millisecond)

	if _, ok := s.Get("widgets:2"); ok {
		t.Fatal("expected widgets:2 to have expired")
	}
	stats := s.Statistics()
	if stats.Expirations != 1 {
		t.Fatalf("expected 1 expiration, got %+v", stats)
	}
}

func TestStore_CapacityNeverExceedsMaxEntriesWithManyShards(t *testing.T) {
	s := NewStore("widgets", Config{MaxEntries: 10, DefaultTTLSeconds: 60}, 64)
	for i := 0; i < 200; i++ {
		s.Put(fmt.Sprintf("key-%d", i), i, 0)
	}
	if s.Size() > 10 {
		t.Fatalf("expected size() <= MaxEntries (10) even with 64 shards, got %d", s.Size())
	}
}

func TestStore_LRUEvictsLeastRecentlyUsed(t *testing.T) {
	s := NewStore("widgets", Config{MaxEntries: 2, DefaultTTLSeconds: 60}, 1)
	s.Put("a", 1, 0)
	s.Put("b", 2, 0)
	s.Get("a") // touch a, making b the least-recently-used
	s.Put("c", 3, 0)

	if _, ok := s.Get("b"); ok {
		t.Error("expected b to have been evicted as the LRU entry")
	}
	if _, ok := s.Get("a"); !ok {
		t.Error("expected a to survive since it was touched more recently")
	}
	if _, ok := s.Get("c"); !ok {
		t.Error("expected c to be resident")
	}
	if s.Statistics().Evictions != 1 {
		t.Fatalf("expected 1 eviction, got %+v", s.Statistics())
	}
}

func TestStore_InvalidateWildcardPrefix(t *testing.T) {
	s := NewStore("widgets", DefaultConfig(), 4)
	s.Put("widgets:1", "a", 0)
	s.Put("widgets:2", "b", 0)
	s.Put("other:1", "c", 0)

	n := s.Invalidate("widgets:*")
	if n != 2 {
		t.Fatalf("expected 2 keys invalidated, got %d", n)
	}
	if _, ok := s.Get("other:1"); !ok {
		t.Error("expected other:1 to survive an unrelated prefix invalidation")
	}
}

func TestStore_InvalidateExactMatch(t *testing.T) {
	s := NewStore("widgets", DefaultConfig(), 1)
	s.Put("widgets:1", "a", 0)
	s.Put("widgets:12", "b", 0)

	n := s.Invalidate("widgets:1")
	if n != 1 {
		t.Fatalf("expected exact match to invalidate exactly 1 key, got %d", n)
	}
	if _, ok := s.Get("widgets:12"); !ok {
		t.Error("expected widgets:12 to survive an exact-match invalidation of widgets:1")
	}
}

func TestStore_ClearRemovesEverything(t *testing.T) {
	s := NewStore("widgets", DefaultConfig(), 4)
	s.Put("a", 1, 0)
	s.Put("b", 2, 0)
	s.Clear()
	if s.Size() != 0 {
		t.Fatalf("expected empty store after Clear, got size %d", s.Size())
	}
}

func TestStore_KeysReturnsAllResidentKeys(t *testing.T) {
	s := NewStore("widgets", DefaultConfig(), 4)
	s.Put("a", 1, 0)
	s.Put("b", 2, 0)
	keys := s.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}

func TestStore_NearExpirySortedSoonestFirst(t *testing.T) {
	s := NewStore("widgets", DefaultConfig(), 4)
	s.Put("soon", 1, 1)
	s.Put("later", 2, 100)

	candidates := s.NearExpiry(10*time.Minute, 10)
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Key != "soon" {
		t.Fatalf("expected soon to sort first, got %v", candidates)
	}
}

func TestStore_NearExpiryRespectsHorizon(t *testing.T) {
	s := NewStore("widgets", DefaultConfig(), 1)
	s.Put("soon", 1, 1)
	s.Put("later", 2, 3600)

	candidates := s.NearExpiry(5*time.Second, 10)
	if len(candidates) != 1 || candidates[0].Key != "soon" {
		t.Fatalf("expected only soon within the horizon, got %v", candidates)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore("widgets", Config{MaxEntries: 1000, DefaultTTLSeconds: 60}, 4)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "key"
			s.Put(key, i, 0)
			s.Get(key)
		}(i)
	}
	wg.Wait()
	if _, ok := s.Get("key"); !ok {
		t.Fatal("expected key to be resident after concurrent puts")
	}
}

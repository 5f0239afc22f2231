// Package cache implements the bounded, TTL+LRU CacheStore and the
// CacheManager registry of named stores that sit in front of the query
// executor.
package cache

import (
	"container/list"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cordal/queryflow/pkg/hashring"
	"github.com/cordal/queryflow/pkg/models"
)

// Config is the construction-time configuration for a Store.
type Config struct {
	MaxEntries        int
	DefaultTTLSeconds int64
}

// DefaultConfig mirrors the Manager-level defaults for standalone stores.
func DefaultConfig() Config {
	return Config{MaxEntries: 1000, DefaultTTLSeconds: 300}
}

type lruEntry struct {
	key     string
	entry   models.CacheEntry
	element *list.Element
}

// shard is one independently-locked partition of a Store. Sharding trades
// a single global RWMutex for N smaller locks, each covering a slice of
// the keyspace selected by hashring.ShardIndex, so that concurrent puts to
// different keys don't serialize through one lock.
type shard struct {
	mu         sync.RWMutex
	entries    map[string]*lruEntry
	lru        *list.List
	maxEntries int
}

// Store is a single named cache: a bounded key -> CacheEntry map with TTL
// and LRU eviction.
type Store struct {
	name       string
	defaultTTL int64 // seconds
	shards     []*shard

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64
	puts        atomic.Uint64
}

// NewStore creates a named store. numShards is typically runtime.GOMAXPROCS(0)
// rounded up to a power of two; pass 1 for a single-shard store (tests, or
// small caches where sharding overhead isn't worth it).
func NewStore(name string, cfg Config, numShards int) *Store {
	if numShards < 1 {
		numShards = 1
	}
	if cfg.MaxEntries < 1 {
		cfg.MaxEntries = 1
	}
	// Cap shard count at MaxEntries so the floor division below can never
	// under-count to 0 and get clamped back up past the configured total:
	// numShards * (cfg.MaxEntries / numShards) <= cfg.MaxEntries always holds
	// once numShards <= cfg.MaxEntries.
	if numShards > cfg.MaxEntries {
		numShards = cfg.MaxEntries
	}
	perShard := cfg.MaxEntries / numShards
	s := &Store{
		name:       name,
		defaultTTL: cfg.DefaultTTLSeconds,
		shards:     make([]*shard, numShards),
	}
	for i := range s.shards {
		s.shards[i] = &shard{
			entries:    make(map[string]*lruEntry, perShard),
			lru:        list.New(),
			maxEntries: perShard,
		}
	}
	return s
}

func (s *Store) Name() string { return s.name }

func (s *Store) shardFor(key string) *shard {
	return s.shards[hashring.ShardIndex(key, len(s.shards))]
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// Get returns (value, true) on a live hit, bumping lastAccessMillis and
// hitCount. An entry found but expired is evicted in-line and counted as
// an expiration, and the call returns a miss.
func (s *Store) Get(key string) (any, bool) {
	sh := s.shardFor(key)
	now := nowMillis()

	sh.mu.Lock()
	le, ok := sh.entries[key]
	if !ok {
		sh.mu.Unlock()
		s.misses.Add(1)
		return nil, false
	}
	if le.entry.IsExpired(now) {
		sh.removeUnsafe(le)
		sh.mu.Unlock()
		s.misses.Add(1)
		s.expirations.Add(1)
		return nil, false
	}
	le.entry.LastAccessMillis = now
	le.entry.HitCount++
	sh.lru.MoveToFront(le.element)
	value := le.entry.Value
	sh.mu.Unlock()

	s.hits.Add(1)
	return value, true
}

// Put inserts or overwrites key. ttlSeconds <= 0 uses the store's default TTL.
func (s *Store) Put(key string, value any, ttlSeconds int64) {
	if ttlSeconds <= 0 {
		ttlSeconds = s.defaultTTL
	}
	now := nowMillis()
	sh := s.shardFor(key)

	sh.mu.Lock()
	if le, exists := sh.entries[key]; exists {
		le.entry.Value = value
		le.entry.CreatedAtMillis = now
		le.entry.ExpiresAtMillis = now + ttlSeconds*1000
		le.entry.LastAccessMillis = now
		sh.lru.MoveToFront(le.element)
		sh.mu.Unlock()
		s.puts.Add(1)
		return
	}

	if len(sh.entries) >= sh.maxEntries {
		sh.evictLRUUnsafe(&s.evictions)
	}

	le := &lruEntry{
		key: key,
		entry: models.CacheEntry{
			Value:            value,
			CreatedAtMillis:  now,
			ExpiresAtMillis:  now + ttlSeconds*1000,
			LastAccessMillis: now,
		},
	}
	le.element = sh.lru.PushFront(le)
	sh.entries[key] = le
	sh.mu.Unlock()

	s.puts.Add(1)
}

// Invalidate deletes every key matching pattern (byte-exact literal match,
// with a single optional trailing wildcard) and returns the deletion count.
func (s *Store) Invalidate(pattern string) int {
	prefix, wildcard := splitPattern(pattern)
	count := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		var toDelete []*lruEntry
		for k, le := range sh.entries {
			if matches(k, pattern, prefix, wildcard) {
				toDelete = append(toDelete, le)
			}
		}
		for _, le := range toDelete {
			sh.removeUnsafe(le)
			count++
		}
		sh.mu.Unlock()
	}
	return count
}

func splitPattern(pattern string) (prefix string, wildcard bool) {
	if strings.HasSuffix(pattern, "*") {
		return pattern[:len(pattern)-1], true
	}
	return pattern, false
}

func matches(key, pattern, prefix string, wildcard bool) bool {
	if wildcard {
		return strings.HasPrefix(key, prefix)
	}
	return key == pattern
}

// Clear removes every entry from every shard.
func (s *Store) Clear() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.entries = make(map[string]*lruEntry, sh.maxEntries)
		sh.lru = list.New()
		sh.mu.Unlock()
	}
}

// Size returns the total number of resident entries across all shards.
func (s *Store) Size() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.entries)
		sh.mu.RUnlock()
	}
	return total
}

// Keys returns every resident key across all shards, in no particular
// order. Used only by the admin key-search endpoint, never by the
// invalidation path itself.
func (s *Store) Keys() []string {
	keys := make([]string, 0, s.Size())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k := range sh.entries {
			keys = append(keys, k)
		}
		sh.mu.RUnlock()
	}
	return keys
}

// Statistics returns a snapshot of the store's counters.
func (s *Store) Statistics() models.CacheCounters {
	return models.CacheCounters{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Evictions:   s.evictions.Load(),
		Expirations: s.expirations.Load(),
		Puts:        s.puts.Load(),
	}
}

// ExpiryCandidate is one resident entry's expiry/hotness summary, used by
// the warming package to pick refresh candidates without exposing the
// entry's value.
type ExpiryCandidate struct {
	Key             string
	ExpiresAtMillis int64
	HitCount        uint64
}

// NearExpiry returns up to limit resident keys whose entries expire within
// horizon of now, soonest-to-expire first. Exists so the warming package
// can refresh entries before they lapse.
func (s *Store) NearExpiry(horizon time.Duration, limit int) []ExpiryCandidate {
	now := nowMillis()
	cutoff := now + horizon.Milliseconds()

	var candidates []ExpiryCandidate
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, le := range sh.entries {
			if le.entry.ExpiresAtMillis <= cutoff {
				candidates = append(candidates, ExpiryCandidate{
					Key:             le.key,
					ExpiresAtMillis: le.entry.ExpiresAtMillis,
					HitCount:        le.entry.HitCount,
				})
			}
		}
		sh.mu.RUnlock()
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ExpiresAtMillis < candidates[j].ExpiresAtMillis
	})
	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}
	return candidates
}

// CleanupExpired opportunistically removes expired entries; called by the
// CacheManager scavenger. Returns the number removed.
func (s *Store) CleanupExpired() int {
	now := nowMillis()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		var expired []*lruEntry
		for _, le := range sh.entries {
			if le.entry.IsExpired(now) {
				expired = append(expired, le)
			}
		}
		for _, le := range expired {
			sh.removeUnsafe(le)
			removed++
		}
		sh.mu.Unlock()
	}
	if removed > 0 {
		s.expirations.Add(uint64(removed))
	}
	return removed
}

// removeUnsafe must be called with sh.mu held.
func (sh *shard) removeUnsafe(le *lruEntry) {
	sh.lru.Remove(le.element)
	delete(sh.entries, le.key)
}

// evictLRUUnsafe removes the least recently used entry. Must be called with
// sh.mu held. Ties are broken by insertion order because list.List already
// orders by most-recent-at-front.
func (sh *shard) evictLRUUnsafe(counter *atomic.Uint64) {
	oldest := sh.lru.Back()
	if oldest == nil {
		return
	}
	le := oldest.Value.(*lruEntry)
	sh.lru.Remove(oldest)
	delete(sh.entries, le.key)
	counter.Add(1)
}

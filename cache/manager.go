package cache

import (
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/cordal/queryflow/pkg/models"
)

// ManagerConfig controls defaults for stores the Manager creates and the
// background scavenger cadence.
type ManagerConfig struct {
	MaxEntries           int
	DefaultTTLSeconds    int64
	CleanupPeriodSeconds int64
}

// DefaultManagerConfig is the configuration used when the caller supplies
// nothing: 1000 entries per store, 5 minute TTL, 1 minute scavenge cadence.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{MaxEntries: 1000, DefaultTTLSeconds: 300, CleanupPeriodSeconds: 60}
}

// Manager is the registry of named Stores. A Store is created on first
// reference to its name and lives until Shutdown.
type Manager struct {
	cfg    ManagerConfig
	shards int

	mu     sync.RWMutex
	stores map[string]*Store

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewManager starts the background scavenger immediately.
func NewManager(cfg ManagerConfig) *Manager {
	numShards := shardCount()
	m := &Manager{
		cfg:    cfg,
		shards: numShards,
		stores: make(map[string]*Store),
		stopCh: make(chan struct{}),
	}
	m.wg.Add(1)
	go m.runScavenger()
	return m
}

func shardCount() int {
	n := runtime.GOMAXPROCS(0)
	shards := 1
	for shards < n {
		shards *= 2
	}
	return shards
}

// GetOrCreate returns the named store, creating it with cfg on first reference.
// A zero-value cfg falls back to the manager's own defaults.
func (m *Manager) GetOrCreate(name string, cfg Config) *Store {
	m.mu.RLock()
	s, ok := m.stores[name]
	m.mu.RUnlock()
	if ok {
		return s
	}

	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = m.cfg.MaxEntries
	}
	if cfg.DefaultTTLSeconds <= 0 {
		cfg.DefaultTTLSeconds = m.cfg.DefaultTTLSeconds
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stores[name]; ok {
		return s
	}
	s = NewStore(name, cfg, m.shards)
	m.stores[name] = s
	return s
}

// Get returns the named store, or nil if it has never been referenced.
func (m *Manager) Get(name string) *Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stores[name]
}

// Invalidate broadcasts to every store whose name is the prefix of pattern
// before the first ":", or to every store if pattern carries no such
// cache-name prefix. The store name is used only to select which store(s)
// to target: the pattern passed to Store.Invalidate is the original,
// unmodified pattern, since a store's resident keys were built from the
// same keyPatternTemplate and still carry that same leading segment.
// Returns the summed deletion count.
func (m *Manager) Invalidate(pattern string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cacheName, hasPrefix := splitCacheName(pattern)
	total := 0
	for name, s := range m.stores {
		if hasPrefix && name != cacheName {
			continue
		}
		total += s.Invalidate(pattern)
	}
	return total
}

// splitCacheName recognizes a "cacheName:..." shaped pattern and returns the
// leading store name so Invalidate can scope its broadcast to that store.
// Patterns with no ":" match every store.
func splitCacheName(pattern string) (cacheName string, ok bool) {
	idx := strings.Index(pattern, ":")
	if idx < 0 {
		return "", false
	}
	return pattern[:idx], true
}

// Statistics returns a snapshot of every store's counters, keyed by name.
func (m *Manager) Statistics() map[string]models.CacheCounters {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]models.CacheCounters, len(m.stores))
	for name, s := range m.stores {
		out[name] = s.Statistics()
	}
	return out
}

func (m *Manager) runScavenger() {
	defer m.wg.Done()
	period := time.Duration(m.cfg.CleanupPeriodSeconds) * time.Second
	if period <= 0 {
		period = 60 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.mu.RLock()
			for _, s := range m.stores {
				s.CleanupExpired()
			}
			m.mu.RUnlock()
		}
	}
}

// Shutdown stops the scavenger and waits for it to exit. Idempotent.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}

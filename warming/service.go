// Package warming proactively refreshes cached query results nearest their
// TTL expiry, so a legitimate request never has to pay for a cold load.
package warming

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/cordal/queryflow/cache"
	"github.com/cordal/queryflow/metrics"
	"github.com/cordal/queryflow/pkg/models"
	"github.com/cordal/queryflow/query"
)

// seenParams remembers the params that produced one cache key, learned from
// query.Executor's populate hook, so a later refresh pass can replay the
// same query rather than guess at its arguments.
type seenParams struct {
	descriptor *models.QueryDescriptor
	params     map[string]string
}

// PriorityWarmer re-executes the N cache entries nearest expiry through the
// real query.Executor on a cron schedule, rate-limited against the origin
// database.
type PriorityWarmer struct {
	executor  *query.Executor
	cacheMgr  *cache.Manager
	collector *metrics.Collector
	limiter   *rate.Limiter
	strategy  PriorityBasedStrategy

	mu          sync.Mutex
	descriptors map[string]*models.QueryDescriptor
	seen        map[string]seenParams

	runCount  atomic.Uint64
	lastRunAt atomic.Int64
}

// NewPriorityWarmer builds a warmer limited to ratePerSecond refreshes per
// second (burst allowance burst), and installs itself as executor's
// populate hook so it learns (key -> params) as real traffic flows through.
func NewPriorityWarmer(executor *query.Executor, cacheMgr *cache.Manager, collector *metrics.Collector, ratePerSecond float64, burst int) *PriorityWarmer {
	w := &PriorityWarmer{
		executor:    executor,
		cacheMgr:    cacheMgr,
		collector:   collector,
		limiter:     rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		descriptors: make(map[string]*models.QueryDescriptor),
		seen:        make(map[string]seenParams),
	}
	executor.SetPopulateHook(w.record)
	return w
}

// RegisterQuery makes descriptor eligible for warming. Only descriptors
// with caching enabled are tracked; others are silently ignored since they
// have no TTL to race against.
func (w *PriorityWarmer) RegisterQuery(descriptor *models.QueryDescriptor) {
	if !descriptor.Cache.Enabled {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.descriptors[descriptor.Name] = descriptor
}

func (w *PriorityWarmer) record(descriptor *models.QueryDescriptor, key string, params map[string]string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen[key] = seenParams{descriptor: descriptor, params: params}
}

type candidate struct {
	key        string
	descriptor *models.QueryDescriptor
	params     map[string]string
	score      float64
}

// WarmNearExpiry scores every resident entry expiring within horizon across
// every registered query's cache, then replays the highest-scored
// candidates — up to the rate limiter's current budget — through the real
// executor. Returns the number of entries actually refreshed.
func (w *PriorityWarmer) WarmNearExpiry(ctx context.Context, horizon time.Duration, limitPerQuery int) (int, error) {
	w.runCount.Add(1)
	w.lastRunAt.Store(time.Now().UnixMilli())

	candidates := w.collectCandidates(horizon, limitPerQuery)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	warmed := 0
	for _, c := range candidates {
		select {
		case <-ctx.Done():
			return warmed, ctx.Err()
		default:
		}
		if !w.limiter.Allow() {
			break
		}
		// Drop the resident entry first so Execute misses and reloads from
		// origin instead of serving the still-live cached value.
		if store := w.cacheMgr.Get(c.descriptor.Cache.CacheName); store != nil {
			store.Invalidate(c.key)
		}
		if _, err := w.executor.Execute(ctx, c.descriptor, c.params); err != nil {
			continue
		}
		warmed++
	}
	return warmed, nil
}

func (w *PriorityWarmer) collectCandidates(horizon time.Duration, limitPerQuery int) []candidate {
	w.mu.Lock()
	descriptors := make([]*models.QueryDescriptor, 0, len(w.descriptors))
	for _, d := range w.descriptors {
		descriptors = append(descriptors, d)
	}
	w.mu.Unlock()

	snap := w.collector.Snapshot()
	now := time.Now().UnixMilli()

	var out []candidate
	for _, d := range descriptors {
		store := w.cacheMgr.Get(d.Cache.CacheName)
		if store == nil {
			continue
		}
		avgCost := snap.AvgDBResponseTimeMs
		if qs, ok := snap.PerQuery[d.Name]; ok && qs.Misses > 0 {
			avgCost = float64(qs.DBLatencySumMillis) / float64(qs.Misses)
		}

		for _, ec := range store.NearExpiry(horizon, limitPerQuery) {
			w.mu.Lock()
			sp, known := w.seen[ec.Key]
			w.mu.Unlock()
			if !known {
				continue
			}
			score := w.strategy.Score(ec.ExpiresAtMillis-now, ec.HitCount, avgCost)
			out = append(out, candidate{key: ec.Key, descriptor: sp.descriptor, params: sp.params, score: score})
		}
	}
	return out
}

// Stats reports how many refresh passes have run and when the most recent
// one happened, for observability endpoints.
func (w *PriorityWarmer) Stats() (runCount uint64, lastRunAtMillis int64) {
	return w.runCount.Load(), w.lastRunAt.Load()
}

package query

import (
	"context"
	"time"

	"github.com/cordal/queryflow/cache"
	"github.com/cordal/queryflow/connection"
	"github.com/cordal/queryflow/metrics"
	"github.com/cordal/queryflow/pkg/apierror"
	"github.com/cordal/queryflow/pkg/models"
)

// PopulateHook is notified whenever a cache miss populates an entry,
// carrying the descriptor and params that produced it. The warming package
// uses this to learn which params to replay when refreshing a key nearest
// expiry; nil by default (no-op).
type PopulateHook func(descriptor *models.QueryDescriptor, key string, params map[string]string)

// Executor runs the read-through path: bind params, consult the cache, and
// on miss fall through to the database under single-flight protection.
type Executor struct {
	conns      connection.Provider
	cacheMgr   *cache.Manager
	metrics    *metrics.Collector
	coalescers coalescerRegistry
	onPopulate PopulateHook
}

func NewExecutor(conns connection.Provider, cacheMgr *cache.Manager, mc *metrics.Collector) *Executor {
	return &Executor{
		conns:    conns,
		cacheMgr: cacheMgr,
		metrics:  mc,
	}
}

// SetPopulateHook registers hook to be called after every cache populate.
// A seam the warming package hooks into instead of re-deriving which
// params produced a given key.
func (e *Executor) SetPopulateHook(hook PopulateHook) {
	e.onPopulate = hook
}

// Execute binds params positionally against descriptor.ParameterNames,
// serves from cache when enabled, and otherwise runs the query under
// single-flight, populating the cache and recording a metrics sample.
func (e *Executor) Execute(ctx context.Context, descriptor *models.QueryDescriptor, params map[string]string) ([]connection.Row, error) {
	start := time.Now()

	bound, err := bindParams(descriptor.ParameterNames, params)
	if err != nil {
		return nil, err
	}

	if !descriptor.Cache.Enabled {
		rows, err := e.load(ctx, descriptor, bound, start, "", nil)
		if err != nil && ctx.Err() != nil {
			return nil, apierror.New(apierror.DeadlineExceeded, "deadline exceeded during query load")
		}
		return rows, err
	}

	key := BuildKey(descriptor.Cache.KeyPatternTemplate, descriptor.Name, descriptor.ParameterNames, params)
	store := e.cacheMgr.GetOrCreate(descriptor.Cache.CacheName, cache.Config{
		MaxEntries:        cache.DefaultConfig().MaxEntries,
		DefaultTTLSeconds: descriptor.Cache.TTLSeconds,
	})

	if v, ok := store.Get(key); ok {
		e.metrics.Record(models.MetricsSample{
			QueryName: descriptor.Name, CacheName: descriptor.Cache.CacheName, CacheKey: key,
			Hit: true, LatencyMillis: time.Since(start).Milliseconds(), AtMillis: start.UnixMilli(),
		})
		rows, _ := v.([]connection.Row)
		return rows, nil
	}

	// The loader runs detached from the caller's deadline: a waiter that
	// times out returns DeadlineExceeded, but the in-flight load continues
	// and may still populate the cache for the next caller.
	loadCtx := context.WithoutCancel(ctx)
	co := e.coalescers.get(descriptor.Cache.CacheName)
	ch := co.DoChan(key, func() (any, error) {
		return e.load(loadCtx, descriptor, bound, start, key, params)
	})

	select {
	case <-ctx.Done():
		return nil, apierror.New(apierror.DeadlineExceeded, "deadline exceeded waiting for query load")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		rows, _ := res.Val.([]connection.Row)
		return rows, nil
	}
}

// load acquires a connection, runs the query, and — when key is non-empty —
// populates the cache and records a miss sample. Called either directly
// (caching disabled) or from inside the single-flight loader. params is the
// original request params, forwarded to onPopulate only (nil when caching
// is disabled).
func (e *Executor) load(ctx context.Context, descriptor *models.QueryDescriptor, bound []any, start time.Time, key string, params map[string]string) ([]connection.Row, error) {
	conn, release, err := e.conns.Acquire(ctx, descriptor.DatabaseName)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := conn.Query(ctx, descriptor.SQLText, bound...)
	if err != nil {
		return nil, err
	}

	if key != "" {
		ttl := descriptor.Cache.TTLSeconds
		store := e.cacheMgr.GetOrCreate(descriptor.Cache.CacheName, cache.Config{
			MaxEntries:        cache.DefaultConfig().MaxEntries,
			DefaultTTLSeconds: ttl,
		})
		store.Put(key, rows, ttl)
		e.metrics.Record(models.MetricsSample{
			QueryName: descriptor.Name, CacheName: descriptor.Cache.CacheName, CacheKey: key,
			Hit: false, LatencyMillis: time.Since(start).Milliseconds(), AtMillis: start.UnixMilli(),
		})
		if e.onPopulate != nil {
			e.onPopulate(descriptor, key, params)
		}
	}
	return rows, nil
}

// bindParams maps params onto paramNames in declared order, failing
// BadRequest if a required parameter is missing.
func bindParams(paramNames []string, params map[string]string) ([]any, error) {
	bound := make([]any, len(paramNames))
	for i, name := range paramNames {
		v, ok := params[name]
		if !ok {
			return nil, apierror.BadRequestf("missing required parameter %q", name)
		}
		bound[i] = v
	}
	return bound, nil
}

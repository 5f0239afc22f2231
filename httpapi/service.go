// Package httpapi wires the core components (cache, query, invalidation,
// metrics, bus, warming) behind a single Encore service. The cache and
// invalidation engine are one in-process unit, so one service owns the
// whole dependency graph rather than splitting it across deployables.
package httpapi

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"encore.dev/storage/sqldb"

	"github.com/cordal/queryflow/bus"
	"github.com/cordal/queryflow/cache"
	"github.com/cordal/queryflow/config"
	"github.com/cordal/queryflow/connection"
	"github.com/cordal/queryflow/invalidation"
	"github.com/cordal/queryflow/metrics"
	"github.com/cordal/queryflow/pkg/apierror"
	"github.com/cordal/queryflow/pkg/models"
	"github.com/cordal/queryflow/query"
	"github.com/cordal/queryflow/warming"
)

// Service owns every core component for the lifetime of the process.
//
//encore:service
type Service struct {
	conns     *connection.PgxProvider
	cacheMgr  *cache.Manager
	eventBus  *bus.EventBus
	collector *metrics.Collector
	executor  *query.Executor
	engine    *invalidation.Engine
	warmer    *warming.PriorityWarmer
	alerts    *metrics.AlertManager

	mu      sync.RWMutex
	queries map[string]*models.QueryDescriptor
}

var invalidationDB = sqldb.Named("invalidation_db")

var (
	svc  *Service
	once sync.Once
)

// initService builds the dependency graph once at startup: load the
// declarative query/database config, construct every core component, wire
// each query's cache.invalidateOn and cache.invalidationRules into the
// invalidation engine, and start the warmer. Called automatically by Encore.
func initService() (*Service, error) {
	var initErr error
	once.Do(func() {
		path := os.Getenv("QUERYFLOW_CONFIG_PATH")
		if path == "" {
			path = "queryflow.yaml"
		}
		doc, err := config.Load(path)
		if err != nil {
			initErr = err
			return
		}

		dbConfigs := make([]connection.DatabaseConfig, len(doc.Databases))
		for i, d := range doc.Databases {
			dbConfigs[i] = connection.DatabaseConfig{Name: d.Name, DSN: d.DSN, MaxConns: d.MaxConns, MinConns: d.MinConns}
		}
		conns := connection.NewPgxProvider(dbConfigs)

		cacheMgr := cache.NewManager(cache.DefaultManagerConfig())
		eventBus := bus.New()
		collector := metrics.NewCollector()
		executor := query.NewExecutor(conns, cacheMgr, collector)

		audit, auditErr := invalidation.NewAuditLogger(invalidationDB)
		if auditErr != nil {
			audit = nil // audit trail is optional; invalidation still functions without it
		}
		engine := invalidation.NewEngine(cacheMgr, eventBus, audit)
		engine.SetNotifier(invalidation.NewNotifier())

		warmer := warming.NewPriorityWarmer(executor, cacheMgr, collector, 50, 100)
		alerts := metrics.NewAlertManager(collector, metrics.DefaultThresholds())
		alerts.Start(30 * time.Second)

		s := &Service{
			conns:     conns,
			cacheMgr:  cacheMgr,
			eventBus:  eventBus,
			collector: collector,
			executor:  executor,
			engine:    engine,
			warmer:    warmer,
			alerts:    alerts,
			queries:   make(map[string]*models.QueryDescriptor),
		}
		for i := range doc.Queries {
			s.registerQuery(&doc.Queries[i])
		}

		warming.SetInstance(warmer)
		svc = s
	})
	if initErr != nil {
		return nil, initErr
	}
	return svc, nil
}

// registerQuery indexes descriptor by name, registers it with the warmer,
// and installs its invalidation rules into the engine. invalidateOn and
// invalidationRules are independent, additive registrations: a descriptor
// with both produces one rule per invalidateOn event type (patterns = the
// descriptor's own keyPatternTemplate) plus one rule per explicit
// InvalidationRuleSpec. Overlapping registrations fire twice; the second
// pass deletes nothing new, and rule statistics keep the duplication
// visible.
func (s *Service) registerQuery(descriptor *models.QueryDescriptor) {
	s.mu.Lock()
	s.queries[descriptor.Name] = descriptor
	s.mu.Unlock()

	s.warmer.RegisterQuery(descriptor)

	if !descriptor.Cache.Enabled {
		return
	}
	for _, eventType := range descriptor.Cache.InvalidateOn {
		spec := models.InvalidationRuleSpec{
			EventType: eventType,
			Patterns:  []string{descriptor.Cache.KeyPatternTemplate},
			Async:     true,
		}
		if rule, err := invalidation.NewRule(spec); err == nil {
			s.engine.RegisterRule(rule)
		}
	}
	for _, ruleSpec := range descriptor.Cache.InvalidationRules {
		if rule, err := invalidation.NewRule(ruleSpec); err == nil {
			s.engine.RegisterRule(rule)
		}
	}
}

func (s *Service) descriptor(name string) (*models.QueryDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.queries[name]
	if !ok {
		return nil, apierror.NotFoundf("unknown query %q", name)
	}
	return d, nil
}

// Shutdown stops every background component. Exposed for tests and for a
// future process-lifecycle hook; Encore does not currently call this
// automatically.
func (s *Service) Shutdown() {
	s.alerts.Shutdown()
	s.engine.Shutdown()
	s.eventBus.Shutdown()
	s.cacheMgr.Shutdown()
	if s.conns != nil {
		s.conns.Shutdown()
	}
}

var errServiceNotInitialized = errors.New("httpapi: service not initialized")

func currentService() (*Service, error) {
	if svc == nil {
		return nil, errServiceNotInitialized
	}
	return svc, nil
}

// withDeadline applies an optional client-supplied absolute deadline to ctx.
func withDeadline(ctx context.Context, deadlineMillis int64) (context.Context, context.CancelFunc) {
	if deadlineMillis <= 0 {
		return ctx, func() {}
	}
	return context.WithDeadline(ctx, time.UnixMilli(deadlineMillis))
}

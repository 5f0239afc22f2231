package httpapi

import (
	"context"
	"time"

	"github.com/cordal/queryflow/connection"
	"github.com/cordal/queryflow/metrics"
	"github.com/cordal/queryflow/pkg/apierror"
	"github.com/cordal/queryflow/pkg/models"
	"github.com/cordal/queryflow/pkg/patternmatch"
)

// ExecuteQueryRequest carries the bound parameters for one named query,
// and an optional absolute deadline the executor honors while waiting on
// the cache, single-flight peers, or connection acquisition.
type ExecuteQueryRequest struct {
	Params         map[string]string `json:"params"`
	DeadlineMillis int64             `json:"deadline_millis,omitempty"`
}

// ExecuteQueryResponse carries the materialized rows from executeQuery.
type ExecuteQueryResponse struct {
	Rows []connection.Row `json:"rows"`
}

// ExecuteQuery runs the named query through the read-through cache path.
//
//encore:api public method=POST path=/query/:name
func ExecuteQuery(ctx context.Context, name string, req *ExecuteQueryRequest) (*ExecuteQueryResponse, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	descriptor, err := s.descriptor(name)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withDeadline(ctx, req.DeadlineMillis)
	defer cancel()

	rows, err := s.executor.Execute(ctx, descriptor, req.Params)
	if err != nil {
		return nil, err
	}
	return &ExecuteQueryResponse{Rows: rows}, nil
}

// PublishEventRequest is the wire shape for the event publishing endpoints.
type PublishEventRequest struct {
	EventType string            `json:"event_type"`
	Source    string            `json:"source"`
	Data      map[string]string `json:"data,omitempty"`
}

func (r *PublishEventRequest) toDomainEvent() (*models.CacheEvent, error) {
	if r.EventType == "" {
		return nil, apierror.BadRequestf("event_type is required")
	}
	if r.Source == "" {
		return nil, apierror.BadRequestf("source is required")
	}
	return &models.CacheEvent{
		EventType:       r.EventType,
		Source:          r.Source,
		Data:            r.Data,
		TimestampMillis: time.Now().UnixMilli(),
	}, nil
}

// PublishEvent publishes asynchronously and returns immediately.
//
//encore:api public method=POST path=/events/publish
func PublishEvent(ctx context.Context, req *PublishEventRequest) (*struct{}, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	event, err := req.toDomainEvent()
	if err != nil {
		return nil, err
	}
	s.eventBus.Publish(event)
	return &struct{}{}, nil
}

// PublishEventSync publishes and blocks until every listener has
// completed, so the caller observes all resulting invalidations.
//
//encore:api public method=POST path=/events/publish-sync
func PublishEventSync(ctx context.Context, req *PublishEventRequest) (*struct{}, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	event, err := req.toDomainEvent()
	if err != nil {
		return nil, err
	}
	s.eventBus.PublishSync(event)
	return &struct{}{}, nil
}

// CacheStatsResponse is a per-store counter snapshot.
type CacheStatsResponse struct {
	Stores map[string]models.CacheCounters `json:"stores"`
}

//encore:api public method=GET path=/cache/stats
func CacheStats(ctx context.Context) (*CacheStatsResponse, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	return &CacheStatsResponse{Stores: s.cacheMgr.Statistics()}, nil
}

// RuleStats is one rule's firing history, keyed by event type in the
// response below.
type RuleStats struct {
	Invocations        uint64 `json:"invocations"`
	EntriesInvalidated uint64 `json:"entries_invalidated"`
	LastFiredAtMillis  int64  `json:"last_fired_at_millis"`
}

// InvalidationStatsResponse is a snapshot of every registered rule's
// firing history, grouped by event type.
type InvalidationStatsResponse struct {
	RegisteredEventTypes []string               `json:"registered_event_types"`
	Rules                map[string][]RuleStats `json:"rules"`
}

//encore:api public method=GET path=/invalidation/stats
func InvalidationStats(ctx context.Context) (*InvalidationStatsResponse, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	eventTypes := s.engine.RegisteredEventTypes()
	resp := &InvalidationStatsResponse{
		RegisteredEventTypes: eventTypes,
		Rules:                make(map[string][]RuleStats, len(eventTypes)),
	}
	for _, et := range eventTypes {
		rules := s.engine.Rules(et)
		stats := make([]RuleStats, len(rules))
		for i, r := range rules {
			st := r.Stats()
			stats[i] = RuleStats{Invocations: st.Invocations, EntriesInvalidated: st.EntriesInvalidated, LastFiredAtMillis: st.LastFiredAtMillis}
		}
		resp.Rules[et] = stats
	}
	return resp, nil
}

// QueryMetricsResponse is the aggregate and per-query metrics snapshot.
type QueryMetricsResponse = models.Snapshot

//encore:api public method=GET path=/query/metrics
func QueryMetrics(ctx context.Context) (*QueryMetricsResponse, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	snap := s.collector.Snapshot()
	return &snap, nil
}

// ManualInvalidateRequest carries the patterns for a direct invalidation.
type ManualInvalidateRequest struct {
	Patterns []string `json:"patterns"`
}

// ManualInvalidateResponse carries the summed deletion count.
type ManualInvalidateResponse struct {
	Invalidated int `json:"invalidated"`
}

//encore:api public method=POST path=/invalidation/manual
func ManualInvalidate(ctx context.Context, req *ManualInvalidateRequest) (*ManualInvalidateResponse, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	if len(req.Patterns) == 0 {
		return nil, apierror.BadRequestf("patterns must be non-empty")
	}
	return &ManualInvalidateResponse{Invalidated: s.engine.ManualInvalidate(req.Patterns...)}, nil
}

// CacheKeySearchRequest carries the admin key-search parameters as query
// strings.
type CacheKeySearchRequest struct {
	CacheName string `query:"cache"`
	Pattern   string `query:"pattern"`
}

// CacheKeySearchResponse is an admin-only ad hoc key search result, backed
// by pkg/patternmatch's richer glob/regex matcher. The invalidation path
// keeps its own literal+trailing-wildcard matching and never routes
// through this.
type CacheKeySearchResponse struct {
	Keys []string `json:"keys"`
}

// ActiveAlertsResponse is the snapshot of currently firing threshold alerts.
type ActiveAlertsResponse struct {
	Alerts []metrics.Alert `json:"alerts"`
}

//encore:api public method=GET path=/alerts/active
func ActiveAlerts(ctx context.Context) (*ActiveAlertsResponse, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	return &ActiveAlertsResponse{Alerts: s.alerts.Active()}, nil
}

//encore:api private method=GET path=/cache/keys
func SearchCacheKeys(ctx context.Context, req *CacheKeySearchRequest) (*CacheKeySearchResponse, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	if req.Pattern == "" {
		return nil, apierror.BadRequestf("pattern is required")
	}
	store := s.cacheMgr.Get(req.CacheName)
	if store == nil {
		return &CacheKeySearchResponse{Keys: []string{}}, nil
	}
	matched, err := patternmatch.FilterKeys(req.Pattern, store.Keys())
	if err != nil {
		return nil, apierror.BadRequestf("invalid pattern: %v", err)
	}
	return &CacheKeySearchResponse{Keys: matched}, nil
}

// Package models holds the canonical data types shared across the cache,
// query, invalidation, and metrics packages.
package models

import (
	"time"

	"github.com/cordal/queryflow/pkg/apierror"
)

// CacheEntry is one resident value in a CacheStore.
//
// Invariant: ExpiresAtMillis > CreatedAtMillis. Once now >= ExpiresAtMillis
// a read must behave as a miss even if the entry is still resident.
type CacheEntry struct {
	Value            any
	CreatedAtMillis  int64
	ExpiresAtMillis  int64
	LastAccessMillis int64
	HitCount         uint64
}

func (e *CacheEntry) IsExpired(nowMillis int64) bool {
	return nowMillis >= e.ExpiresAtMillis
}

// CacheCounters are the monotonically non-decreasing counters a CacheStore keeps.
type CacheCounters struct {
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
	Puts        uint64 `json:"puts"`
}

// CacheSpec is the caching configuration embedded in a QueryDescriptor.
type CacheSpec struct {
	Enabled            bool
	CacheName          string
	TTLSeconds         int64 // overrides the store default when > 0
	KeyPatternTemplate string
	InvalidateOn       []string
	InvalidationRules  []InvalidationRuleSpec
}

// Validate enforces the registration-time constraints: cacheName required
// when enabled, ttl >= 0, and every referenced rule must itself validate.
func (s *CacheSpec) Validate() error {
	if !s.Enabled {
		return nil
	}
	if s.CacheName == "" {
		return errRequired("cache.cacheName is required when cache.enabled is true")
	}
	if s.TTLSeconds < 0 {
		return errRequired("cache.ttlSeconds must be >= 0")
	}
	for i := range s.InvalidationRules {
		if err := s.InvalidationRules[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// InvalidationRuleSpec is the declarative configuration for one invalidation rule.
type InvalidationRuleSpec struct {
	EventType string
	Patterns  []string
	Condition string // optional: "key=value" | "key!=value" | "key IN (v1,v2,...)"
	Async     bool
	Delay     time.Duration
}

// Validate enforces: non-empty event type, non-empty patterns, delay >= 0.
// Async is not defaulted here: its zero value means synchronous firing; the
// YAML loader in package config sets it to true when async is omitted.
func (s *InvalidationRuleSpec) Validate() error {
	if s.EventType == "" {
		return errRequired("invalidationRule.eventType is required")
	}
	if len(s.Patterns) == 0 {
		return errRequired("invalidationRule.patterns must be non-empty")
	}
	for _, p := range s.Patterns {
		if p == "" {
			return errRequired("invalidationRule.patterns must not contain empty strings")
		}
	}
	if s.Delay < 0 {
		return errRequired("invalidationRule.delay must be >= 0")
	}
	return nil
}

// QueryDescriptor is consumed from the external configuration loader; the
// core treats it as read-only input to QueryExecutor.
type QueryDescriptor struct {
	Name           string
	DatabaseName   string
	SQLText        string
	ParameterNames []string
	Cache          CacheSpec
}

func (d *QueryDescriptor) Validate() error {
	if d.Name == "" {
		return errRequired("query.name is required")
	}
	if d.DatabaseName == "" {
		return errRequired("query.databaseName is required")
	}
	if d.SQLText == "" {
		return errRequired("query.sqlText is required")
	}
	return d.Cache.Validate()
}

func errRequired(msg string) error { return apierror.BadRequestf("%s", msg) }

// Package invalidation implements event-driven cache invalidation: a rule
// registry keyed by event type, a small condition language, and
// pattern-based bulk deletion against the cache manager, plus an optional
// Postgres audit trail and pubsub fan-out.
package invalidation

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cordal/queryflow/bus"
	"github.com/cordal/queryflow/cache"
	"github.com/cordal/queryflow/pkg/models"
	"github.com/cordal/queryflow/query"
)

// Rule is the runtime form of an InvalidationRuleSpec, with live statistics.
type Rule struct {
	Spec models.InvalidationRuleSpec

	invocations        atomic.Uint64
	entriesInvalidated atomic.Uint64
	lastFiredAtMillis  atomic.Int64
}

// Stats is a read-only snapshot of a rule's firing history.
type Stats struct {
	Invocations        uint64
	EntriesInvalidated uint64
	LastFiredAtMillis  int64
}

func (r *Rule) Stats() Stats {
	return Stats{
		Invocations:        r.invocations.Load(),
		EntriesInvalidated: r.entriesInvalidated.Load(),
		LastFiredAtMillis:  r.lastFiredAtMillis.Load(),
	}
}

// NewRule validates spec and returns a ready-to-register Rule.
func NewRule(spec models.InvalidationRuleSpec) (*Rule, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Rule{Spec: spec}, nil
}

// Engine is the InvalidationEngine: rules indexed by event type, subscribed
// to an EventBus, invalidating against a cache.Manager.
type Engine struct {
	cacheMgr *cache.Manager
	eventBus *bus.EventBus
	audit    *AuditLogger // optional, may be nil
	notifier *Notifier    // optional, may be nil

	mu    sync.RWMutex
	rules map[string][]*Rule

	shuttingDown atomic.Bool
}

// NewEngine subscribes the engine to every event type as rules are
// registered; audit may be nil to disable persistence.
func NewEngine(cacheMgr *cache.Manager, eventBus *bus.EventBus, audit *AuditLogger) *Engine {
	return &Engine{
		cacheMgr: cacheMgr,
		eventBus: eventBus,
		rules:    make(map[string][]*Rule),
		audit:    audit,
	}
}

// SetNotifier makes every rule firing re-publish the triggering event onto
// the processed-events pubsub topic for downstream observers. Optional.
func (e *Engine) SetNotifier(n *Notifier) {
	e.notifier = n
}

// RegisterRule appends rule to the list for its event type and subscribes
// the engine to that event type on first registration.
func (e *Engine) RegisterRule(rule *Rule) {
	e.mu.Lock()
	_, alreadySubscribed := e.rules[rule.Spec.EventType]
	e.rules[rule.Spec.EventType] = append(e.rules[rule.Spec.EventType], rule)
	e.mu.Unlock()

	if !alreadySubscribed {
		e.eventBus.Subscribe(rule.Spec.EventType, e.handle)
	}
}

// Rules returns a read-only snapshot of the rules registered for eventType.
func (e *Engine) Rules(eventType string) []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Rule, len(e.rules[eventType]))
	copy(out, e.rules[eventType])
	return out
}

// RegisteredEventTypes returns the set of event types with at least one rule.
func (e *Engine) RegisteredEventTypes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.rules))
	for et := range e.rules {
		out = append(out, et)
	}
	return out
}

// handle is the EventBus listener. Async rules fan out concurrently off the
// delivering goroutine; sync rules run on it directly. Either way handle
// returns only once every non-delayed firing has completed, so a
// PublishSync caller observes all of its invalidations before the publish
// returns. Delayed rules schedule their work and return immediately.
func (e *Engine) handle(event *models.CacheEvent) {
	var wg sync.WaitGroup
	for _, rule := range e.Rules(event.EventType) {
		if rule.Spec.Async {
			wg.Add(1)
			go func(r *Rule) {
				defer wg.Done()
				e.fire(r, event)
			}(rule)
		} else {
			e.fire(rule, event)
		}
	}
	wg.Wait()
}

func (e *Engine) fire(rule *Rule, event *models.CacheEvent) {
	if rule.Spec.Condition != "" {
		ok, err := evaluateCondition(rule.Spec.Condition, event.Data)
		if err != nil {
			log.Printf("invalidation: unparseable condition %q for event type %q: %v", rule.Spec.Condition, rule.Spec.EventType, err)
			return
		}
		if !ok {
			return
		}
	}

	patterns := make([]string, len(rule.Spec.Patterns))
	for i, tmpl := range rule.Spec.Patterns {
		patterns[i] = query.BuildPattern(tmpl, event.Data)
	}

	do := func() {
		deleted := e.invalidatePatterns(patterns)
		rule.invocations.Add(1)
		rule.entriesInvalidated.Add(uint64(deleted))
		rule.lastFiredAtMillis.Store(time.Now().UnixMilli())
		e.recordAudit(rule, patterns, deleted, event)
		e.notifyProcessed(event)
	}

	if rule.Spec.Delay > 0 {
		time.AfterFunc(rule.Spec.Delay, func() {
			if e.shuttingDown.Load() {
				return
			}
			do()
		})
		return
	}
	do()
}

func (e *Engine) invalidatePatterns(patterns []string) int {
	total := 0
	for _, p := range patterns {
		total += e.cacheMgr.Invalidate(p)
	}
	return total
}

func (e *Engine) recordAudit(rule *Rule, patterns []string, deleted int, event *models.CacheEvent) {
	if e.audit == nil {
		return
	}
	go e.audit.InsertAsync(AuditRecord{
		EventType:   rule.Spec.EventType,
		Patterns:    patterns,
		TriggeredBy: event.Source,
		Deleted:     deleted,
		AtMillis:    time.Now().UnixMilli(),
	})
}

func (e *Engine) notifyProcessed(event *models.CacheEvent) {
	if e.notifier == nil {
		return
	}
	requestID := uuid.New().String()
	go e.notifier.Publish(context.Background(), event, requestID)
}

// ManualInvalidate bypasses rule matching entirely and invalidates the
// given patterns directly, returning the summed deletion count.
func (e *Engine) ManualInvalidate(patterns ...string) int {
	return e.invalidatePatterns(patterns)
}

// Shutdown suppresses the effect of any delayed invalidation that fires
// after this call returns; pending timers are not cancelled, only their
// cache-mutating effect is skipped.
func (e *Engine) Shutdown() {
	e.shuttingDown.Store(true)
}

// evaluateCondition implements the rule condition language:
// "key=value" | "key!=value" | "key IN (v1,v2,...)". A missing key evaluates
// to false; anything else is a parse error.
func evaluateCondition(condition string, data map[string]string) (bool, error) {
	condition = strings.TrimSpace(condition)

	if idx := strings.Index(condition, "!="); idx >= 0 {
		key := strings.TrimSpace(condition[:idx])
		want := strings.TrimSpace(condition[idx+2:])
		v, ok := data[key]
		if !ok {
			return false, nil
		}
		return v != want, nil
	}

	if idx := strings.Index(condition, "="); idx >= 0 {
		key := strings.TrimSpace(condition[:idx])
		want := strings.TrimSpace(condition[idx+1:])
		v, ok := data[key]
		if !ok {
			return false, nil
		}
		return v == want, nil
	}

	if idx := strings.Index(condition, " IN "); idx >= 0 {
		key := strings.TrimSpace(condition[:idx])
		rest := strings.TrimSpace(condition[idx+4:])
		rest = strings.TrimPrefix(rest, "(")
		rest = strings.TrimSuffix(rest, ")")
		v, ok := data[key]
		if !ok {
			return false, nil
		}
		for _, candidate := range strings.Split(rest, ",") {
			if strings.TrimSpace(candidate) == v {
				return true, nil
			}
		}
		return false, nil
	}

	return false, strconv.ErrSyntax
}

package warming

import (
	"context"
	"log"
	"sync"
	"time"

	"encore.dev/cron"
)

var (
	instanceMu sync.RWMutex
	instance   *PriorityWarmer
)

// SetInstance registers the running PriorityWarmer so the Encore cron job
// below has something to drive. Encore cron endpoints are package-level
// functions with no room for constructor arguments, hence the seam.
func SetInstance(w *PriorityWarmer) {
	instanceMu.Lock()
	instance = w
	instanceMu.Unlock()
}

// A 5-minute cadence keeps short-TTL query results from lapsing between
// passes without hammering the origin.
var _ = cron.NewJob("cache-refresh", cron.JobConfig{
	Title:    "Refresh near-expiry cache entries",
	Schedule: "*/5 * * * *",
	Endpoint: RefreshNearExpiry,
})

// RefreshNearExpiry re-executes the cache entries nearest expiry across
// every registered query, rate-limited against the origin database.
//
//encore:api private
func RefreshNearExpiry(ctx context.Context) error {
	instanceMu.RLock()
	w := instance
	instanceMu.RUnlock()
	if w == nil {
		return nil
	}

	warmed, err := w.WarmNearExpiry(ctx, 2*time.Minute, 50)
	if err != nil {
		log.Printf("warming: refresh pass failed: %v", err)
		return err
	}
	log.Printf("warming: refreshed %d near-expiry entries", warmed)
	return nil
}

// Package middleware provides HTTP middleware shared across the query API
// surface: request logging (logging.go) and per-client rate limiting
// (this file).
package middleware

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// ClientLimiter rate-limits requests per client key (typically IP or API
// key) using a token bucket per key, backed by golang.org/x/time/rate.
// Buckets are created lazily on first sight of a key.
type ClientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewClientLimiter builds a limiter allowing rps requests/second per client,
// with bursts up to burst.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	return &ClientLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether a request for key may proceed now.
func (c *ClientLimiter) Allow(key string) bool {
	return c.limiterFor(key).Allow()
}

func (c *ClientLimiter) limiterFor(key string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.limiters[key]
	if !ok {
		l = rate.NewLimiter(c.rps, c.burst)
		c.limiters[key] = l
	}
	return l
}

// EvictStaleKeys removes tracked clients whose bucket has refilled to its
// full burst, returning the number removed, keeping the map from growing
// without bound across long-lived server processes. Callers typically run
// this from a periodic ticker.
func (c *ClientLimiter) EvictStaleKeys() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, l := range c.limiters {
		// A limiter sitting at full burst has not been touched recently
		// enough to be worth tracking; drop it and let Allow recreate it.
		if l.Tokens() >= float64(c.burst) {
			delete(c.limiters, key)
			evicted++
		}
	}
	return evicted
}

// TrackedKeys returns the number of distinct clients currently tracked.
func (c *ClientLimiter) TrackedKeys() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.limiters)
}

// KeyFunc extracts a rate-limit key from an inbound request.
type KeyFunc func(*http.Request) string

// KeyByIP rate-limits by the client's remote address, preferring
// X-Forwarded-For / X-Real-IP when the service sits behind a proxy.
func KeyByIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

// KeyByHeader rate-limits by an arbitrary header value, e.g. an API key.
func KeyByHeader(headerName string) KeyFunc {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// RateLimit wraps next with per-client rate limiting. Requests over the
// limit receive 429 Too Many Requests.
func RateLimit(next http.Handler, limiter *ClientLimiter, keyFn KeyFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := keyFn(r)
		if key == "" || limiter.Allow(key) {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	})
}

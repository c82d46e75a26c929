// ratelimit.go implements the per-caller generation rate limiter.
package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdleExpiry is how long an idle caller's limiter survives before
// the sweeper drops it.
const limiterIdleExpiry = 10 * time.Minute

// RateLimiter applies a per-caller token bucket to paid requests. Each
// caller gets their own bucket, so one busy caller cannot starve the rest.
//
// Thread Safety: all methods are safe for concurrent use.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*callerLimiter
	limit    rate.Limit
	burst    int
}

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests per caller
// with the given burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*callerLimiter),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
}

// Allow reports whether the caller may proceed and consumes a token when
// it may.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	entry, ok := r.limiters[key]
	if !ok {
		entry = &callerLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	r.mu.Unlock()

	return entry.limiter.Allow()
}

// Sweep drops limiters idle longer than limiterIdleExpiry and reports how
// many were removed. Callers run this periodically; a dropped caller
// simply gets a fresh full bucket on their next request.
func (r *RateLimiter) Sweep() int {
	cutoff := time.Now().Add(-limiterIdleExpiry)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, entry := range r.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(r.limiters, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked callers.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

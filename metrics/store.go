// Package metrics provides the in-memory counter store behind the status
// endpoint.
package metrics

import (
	"sync"
	"time"
)

// Store aggregates service counters.
//
// This is deliberately in-memory only: counters reset on restart, and the
// status endpoint reports them as since-start values alongside uptime.
//
// Thread Safety: all methods are safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	generationsStarted   int64
	generationsSucceeded int64
	generationsFailed    int64
	imagesServed         int64
	creditRefusals       int64
	rateLimitRefusals    int64
	creditsPurchased     int64

	startTime time.Time
	version   string
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	GenerationsStarted   int64         `json:"generationsStarted"`
	GenerationsSucceeded int64         `json:"generationsSucceeded"`
	GenerationsFailed    int64         `json:"generationsFailed"`
	ImagesServed         int64         `json:"imagesServed"`
	CreditRefusals       int64         `json:"creditRefusals"`
	RateLimitRefusals    int64         `json:"rateLimitRefusals"`
	CreditsPurchased     int64         `json:"creditsPurchased"`
	Uptime               time.Duration `json:"-"`
	UptimeSeconds        int64         `json:"uptimeSeconds"`
	Version              string        `json:"version"`
}

// NewStore creates a counter store. startTime anchors the uptime report.
func NewStore(version string, startTime time.Time) *Store {
	return &Store{
		startTime: startTime,
		version:   version,
	}
}

// GenerationStarted records an accepted generation request.
func (s *Store) GenerationStarted() {
	s.mu.Lock()
	s.generationsStarted++
	s.mu.Unlock()
}

// GenerationFinished records the outcome of a started generation.
func (s *Store) GenerationFinished(succeeded bool) {
	s.mu.Lock()
	if succeeded {
		s.generationsSucceeded++
	} else {
		s.generationsFailed++
	}
	s.mu.Unlock()
}

// ImageServed records a stored image delivered to a caller. Client-side
// cache hits never reach the server, so image serves are the closest
// observable proxy for how often finished outputs are reused.
func (s *Store) ImageServed() {
	s.mu.Lock()
	s.imagesServed++
	s.mu.Unlock()
}

// CreditRefusal records a request refused for insufficient credits.
func (s *Store) CreditRefusal() {
	s.mu.Lock()
	s.creditRefusals++
	s.mu.Unlock()
}

// RateLimitRefusal records a request refused by the rate limiter.
func (s *Store) RateLimitRefusal() {
	s.mu.Lock()
	s.rateLimitRefusals++
	s.mu.Unlock()
}

// CreditsPurchased records credits added through a completed checkout.
func (s *Store) CreditsPurchased(amount int64) {
	s.mu.Lock()
	s.creditsPurchased += amount
	s.mu.Unlock()
}

// Snapshot returns a consistent copy of every counter.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := time.Since(s.startTime)
	return Snapshot{
		GenerationsStarted:   s.generationsStarted,
		GenerationsSucceeded: s.generationsSucceeded,
		GenerationsFailed:    s.generationsFailed,
		ImagesServed:         s.imagesServed,
		CreditRefusals:       s.creditRefusals,
		RateLimitRefusals:    s.rateLimitRefusals,
		CreditsPurchased:     s.creditsPurchased,
		Uptime:               uptime,
		UptimeSeconds:        int64(uptime.Seconds()),
		Version:              s.version,
	}
}

// Package ratelimit implements a per-key sliding-window rate limiter.
// Thread-safe. No background goroutines — expired entries are pruned
// lazily on each Allow call. State is process-local and resets on
// restart; durable cross-instance limiting is out of scope.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// DefaultKey groups all unauthenticated callers into one bucket.
const DefaultKey = "default"

// ErrRateLimited is returned when a key has exhausted its window.
type ErrRateLimited struct {
	MaxRequests int
	Window      time.Duration
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per %s", e.MaxRequests, e.Window)
}

// Config configures the sliding-window limiter.
type Config struct {
	MaxRequests int           // Requests allowed per window. 0 = unlimited (Allow always succeeds).
	Window      time.Duration // Trailing window length. 0 = defaults to one minute.
}

// Limiter tracks request timestamps per key within a trailing window.
// Each key gets an independent window; one caller cannot exhaust another's quota.
type Limiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	max      int
	window   time.Duration

	now func() time.Time // Injectable clock for tests.
}

// NewLimiter creates a sliding-window limiter.
// If MaxRequests is 0, Allow always succeeds (unlimited).
func NewLimiter(cfg Config) *Limiter {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		requests: make(map[string][]time.Time),
		max:      cfg.MaxRequests,
		window:   window,
		now:      time.Now,
	}
}

// Allow checks whether the key is within its window budget.
// Records the request on success. Returns *ErrRateLimited when the key
// already has MaxRequests timestamps inside the trailing window.
func (l *Limiter) Allow(key string) error {
	// Unlimited mode.
	if l.max <= 0 {
		return nil
	}
	if key == "" {
		key = DefaultKey
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	// Prune timestamps that fell out of the window.
	kept := l.requests[key][:0]
	for _, ts := range l.requests[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.max {
		l.requests[key] = kept
		return &ErrRateLimited{MaxRequests: l.max, Window: l.window}
	}

	l.requests[key] = append(kept, now)
	return nil
}

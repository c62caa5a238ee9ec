// Package ratelimit implements a process-local fixed-window request
// limiter. State is an in-memory map of key to request timestamps;
// stale entries are pruned lazily on each check rather than by a
// background sweeper.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter counts requests per key within a sliding fixed window.
type Limiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	window  time.Duration
	max     int
	now     func() time.Time
}

// New constructs a Limiter allowing max requests per window.
func New(window time.Duration, max int) *Limiter {
	return &Limiter{
		entries: make(map[string][]time.Time),
		window:  window,
		max:     max,
		now:     time.Now,
	}
}

// Allow records a request for key and reports whether it is within the
// configured budget.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	valid := l.entries[key][:0]
	for _, at := range l.entries[key] {
		if at.After(windowStart) {
			valid = append(valid, at)
		}
	}

	if len(valid) >= l.max {
		l.entries[key] = valid
		return false
	}

	l.entries[key] = append(valid, now)
	return true
}

// Reset drops all recorded state for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

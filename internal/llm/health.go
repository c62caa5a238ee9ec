package llm

import (
	"context"
	"sync"
	"time"
)

const (
	defaultRecheckInterval = 5 * time.Minute
	defaultFailureLimit    = 3
)

// HealthMonitor caches the outcome of API-key probes so that a broken
// upstream key short-circuits requests instead of burning quota. The
// key is re-probed after the recheck interval elapses, or immediately
// while failures are accumulating.
type HealthMonitor struct {
	mu                  sync.Mutex
	probe               func(ctx context.Context) error
	lastChecked         time.Time
	lastErr             error
	consecutiveFailures int
	recheckInterval     time.Duration
	failureLimit        int
	now                 func() time.Time
}

// NewHealthMonitor constructs a monitor over the given probe, typically
// (*Client).Ping.
func NewHealthMonitor(probe func(ctx context.Context) error) *HealthMonitor {
	return &HealthMonitor{
		probe:           probe,
		recheckInterval: defaultRecheckInterval,
		failureLimit:    defaultFailureLimit,
		now:             time.Now,
	}
}

// Healthy reports whether requests should proceed. It probes the key
// when the cached verdict is stale and returns false only after the
// failure limit is reached.
func (m *HealthMonitor) Healthy(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	stale := m.lastChecked.IsZero() ||
		now.Sub(m.lastChecked) > m.recheckInterval ||
		m.consecutiveFailures > 0

	if stale {
		m.lastChecked = now
		if err := m.probe(ctx); err != nil {
			m.lastErr = err
			m.consecutiveFailures++
		} else {
			m.lastErr = nil
			m.consecutiveFailures = 0
		}
	}

	return m.consecutiveFailures < m.failureLimit
}

// LastError returns the most recent probe failure, if any.
func (m *HealthMonitor) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

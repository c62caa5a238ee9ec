package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHealthyCachesVerdict(t *testing.T) {
	probes := 0
	monitor := NewHealthMonitor(func(ctx context.Context) error {
		probes++
		return nil
	})

	if !monitor.Healthy(context.Background()) {
		t.Fatal("expected healthy")
	}
	if !monitor.Healthy(context.Background()) {
		t.Fatal("expected healthy")
	}
	if probes != 1 {
		t.Fatalf("probe ran %d times within the recheck interval, want 1", probes)
	}
}

func TestHealthyReprobesAfterInterval(t *testing.T) {
	probes := 0
	monitor := NewHealthMonitor(func(ctx context.Context) error {
		probes++
		return nil
	})
	current := time.Now()
	monitor.now = func() time.Time { return current }

	monitor.Healthy(context.Background())
	current = current.Add(defaultRecheckInterval + time.Second)
	monitor.Healthy(context.Background())

	if probes != 2 {
		t.Fatalf("probe ran %d times, want 2", probes)
	}
}

func TestHealthyTripsAfterFailureLimit(t *testing.T) {
	probeErr := errors.New("invalid key")
	monitor := NewHealthMonitor(func(ctx context.Context) error {
		return probeErr
	})

	// Failures below the limit still let requests through.
	for i := 0; i < defaultFailureLimit-1; i++ {
		if !monitor.Healthy(context.Background()) {
			t.Fatalf("tripped after %d failures, limit is %d", i+1, defaultFailureLimit)
		}
	}
	if monitor.Healthy(context.Background()) {
		t.Fatal("expected unhealthy after failure limit")
	}
	if !errors.Is(monitor.LastError(), probeErr) {
		t.Fatalf("LastError = %v, want %v", monitor.LastError(), probeErr)
	}
}

func TestHealthyRecovers(t *testing.T) {
	fail := true
	monitor := NewHealthMonitor(func(ctx context.Context) error {
		if fail {
			return errors.New("boom")
		}
		return nil
	})

	for i := 0; i < defaultFailureLimit; i++ {
		monitor.Healthy(context.Background())
	}
	fail = false
	// Accumulated failures force an immediate re-probe.
	if !monitor.Healthy(context.Background()) {
		t.Fatal("expected recovery after successful probe")
	}
}

package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platebook/importer-backend/internal/logger"
)

func TestIsHealthyAllProbesPass(t *testing.T) {
	m := NewMonitor(logger.NewNop(), time.Minute)
	m.RegisterProbe("postgres", func(ctx context.Context) error { return nil })
	m.RegisterProbe("redis", func(ctx context.Context) error { return nil })

	if !m.IsHealthy(context.Background()) {
		t.Fatal("expected healthy with all probes passing")
	}
}

func TestIsHealthyAnyProbeFails(t *testing.T) {
	m := NewMonitor(logger.NewNop(), time.Minute)
	m.RegisterProbe("postgres", func(ctx context.Context) error { return nil })
	m.RegisterProbe("redis", func(ctx context.Context) error {
		return errors.New("connection refused")
	})

	if m.IsHealthy(context.Background()) {
		t.Fatal("expected unhealthy when a probe fails")
	}

	checks := m.Check(context.Background())
	if len(checks) != 2 {
		t.Fatalf("Check returned %d entries, want 2", len(checks))
	}
	// Sorted by name: postgres, redis.
	if checks[0].Name != "postgres" || !checks[0].Healthy {
		t.Fatalf("postgres check = %+v", checks[0])
	}
	if checks[1].Name != "redis" || checks[1].Healthy || checks[1].Error == "" {
		t.Fatalf("redis check = %+v", checks[1])
	}
}

func TestProbesAreCachedWithinInterval(t *testing.T) {
	var calls atomic.Int32
	m := NewMonitor(logger.NewNop(), time.Minute)
	m.RegisterProbe("postgres", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	for i := 0; i < 10; i++ {
		m.IsHealthy(context.Background())
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("probe called %d times within interval, want 1", got)
	}
}

func TestCacheExpiresAfterInterval(t *testing.T) {
	var calls atomic.Int32
	m := NewMonitor(logger.NewNop(), 10*time.Millisecond)
	m.RegisterProbe("redis", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	m.IsHealthy(context.Background())
	time.Sleep(20 * time.Millisecond)
	m.IsHealthy(context.Background())

	if got := calls.Load(); got != 2 {
		t.Fatalf("probe called %d times across intervals, want 2", got)
	}
}

func TestNewProbeForcesRefresh(t *testing.T) {
	m := NewMonitor(logger.NewNop(), time.Minute)
	m.RegisterProbe("postgres", func(ctx context.Context) error { return nil })
	if !m.IsHealthy(context.Background()) {
		t.Fatal("expected healthy")
	}

	m.RegisterProbe("redis", func(ctx context.Context) error {
		return errors.New("redis down")
	})
	if m.IsHealthy(context.Background()) {
		t.Fatal("registering a failing probe must invalidate the cached verdict")
	}
}

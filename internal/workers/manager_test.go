package workers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/platebook/importer-backend/internal/logger"
)

type fakeWorker struct {
	name     string
	startErr error

	mu      sync.Mutex
	running bool
	starts  int
	stops   int
}

func (w *fakeWorker) Name() string { return w.name }

func (w *fakeWorker) Start(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.starts++
	if w.startErr != nil {
		return w.startErr
	}
	w.running = true
	return nil
}

func (w *fakeWorker) Stop(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stops++
	w.running = false
	return nil
}

func (w *fakeWorker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func TestManagerStartsAllInOrder(t *testing.T) {
	m := NewManager(logger.NewNop())
	a := &fakeWorker{name: "notes"}
	b := &fakeWorker{name: "image"}
	for _, w := range []*fakeWorker{a, b} {
		if err := m.Register(w); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	status := m.Status()
	if !status["notes"] || !status["image"] {
		t.Fatalf("status = %v", status)
	}
	if err := m.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if a.Running() || b.Running() {
		t.Fatal("workers still running after StopAll")
	}
}

func TestManagerAbortsAndRollsBackOnStartFailure(t *testing.T) {
	m := NewManager(logger.NewNop())
	ok := &fakeWorker{name: "notes"}
	bad := &fakeWorker{name: "image", startErr: errors.New("redis down")}
	later := &fakeWorker{name: "source"}
	for _, w := range []*fakeWorker{ok, bad, later} {
		if err := m.Register(w); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	if err := m.StartAll(context.Background()); err == nil {
		t.Fatal("StartAll must fail when a worker fails")
	}
	if later.starts != 0 {
		t.Fatal("workers after the failure must not be started")
	}
	if ok.stops != 1 {
		t.Fatalf("already-started worker stops = %d, want 1", ok.stops)
	}
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	m := NewManager(logger.NewNop())
	if err := m.Register(&fakeWorker{name: "notes"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(&fakeWorker{name: "notes"}); err == nil {
		t.Fatal("duplicate worker name must error")
	}
}

func TestManagerRejectsRegisterAfterStart(t *testing.T) {
	m := NewManager(logger.NewNop())
	if err := m.Register(&fakeWorker{name: "notes"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	defer func() { _ = m.StopAll(context.Background()) }()
	if err := m.Register(&fakeWorker{name: "late"}); err == nil {
		t.Fatal("Register after StartAll must error")
	}
}

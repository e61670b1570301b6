package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/platebook/importer-backend/internal/logger"
)

/*
Manager owns the worker fleet. Startup is sequential in registration order and
aborts on the first failure, stopping whatever already started; a half-started
fleet must not keep consuming jobs. Shutdown stops everything concurrently
and waits for all workers to drain.
*/
type Manager struct {
	log *logger.Logger

	mu      sync.Mutex
	workers []Worker
	started bool
}

func NewManager(log *logger.Logger) *Manager {
	return &Manager{log: log.With("component", "WorkerManager")}
}

// Register appends a worker to the start order. Must be called before
// StartAll.
func (m *Manager) Register(w Worker) error {
	if w == nil {
		return fmt.Errorf("worker is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("cannot register %q after StartAll", w.Name())
	}
	for _, existing := range m.workers {
		if existing.Name() == w.Name() {
			return fmt.Errorf("worker %q already registered", w.Name())
		}
	}
	m.workers = append(m.workers, w)
	return nil
}

func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("workers already started")
	}
	m.started = true
	workers := make([]Worker, len(m.workers))
	copy(workers, m.workers)
	m.mu.Unlock()

	for i, w := range workers {
		if err := w.Start(ctx); err != nil {
			m.log.Error("Worker failed to start, rolling back fleet",
				"worker", w.Name(), "error", err)
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			m.stopWorkers(stopCtx, workers[:i])
			cancel()
			m.mu.Lock()
			m.started = false
			m.mu.Unlock()
			return fmt.Errorf("start worker %q: %w", w.Name(), err)
		}
		m.log.Info("Worker started", "worker", w.Name())
	}
	return nil
}

func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	workers := make([]Worker, len(m.workers))
	copy(workers, m.workers)
	m.started = false
	m.mu.Unlock()

	return m.stopWorkers(ctx, workers)
}

// stopWorkers stops every worker concurrently and waits for all of them;
// a worker that misses the deadline is reported but does not block the rest.
func (m *Manager) stopWorkers(ctx context.Context, workers []Worker) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(workers))
	for _, w := range workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			if err := w.Stop(ctx); err != nil {
				m.log.Warn("Worker stop failed", "worker", w.Name(), "error", err)
				errCh <- err
				return
			}
			m.log.Info("Worker stopped", "worker", w.Name())
		}(w)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		return err
	}
	return nil
}

// Status reports each worker's running state in registration order.
func (m *Manager) Status() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := make(map[string]bool, len(m.workers))
	for _, w := range m.workers {
		status[w.Name()] = w.Running()
	}
	return status
}

package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/logger"
	"github.com/platebook/importer-backend/internal/queue"
)

// Worker is the non-generic surface the manager drives.
type Worker interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Running() bool
}

// SetupFunc runs before the pipeline, after the payload is decoded. Used for
// per-job bookkeeping such as flipping a record to processing.
type SetupFunc[T any] func(ctx context.Context, ac *ActionContext, data T, deps *Deps) (T, error)

// TerminalFailureFunc runs when a job has failed for the last time: the error
// is non-retryable or the attempt budget is spent. It must not raise; it gets
// the payload as decoded at the start of the final attempt.
type TerminalFailureFunc[T any] func(ctx context.Context, job *queue.Job, data T, err error)

// WorkerConfig assembles one queue worker.
type WorkerConfig[T any] struct {
	Name        string
	Queue       queue.Queue
	Concurrency int
	Pipeline    *Pipeline[T]

	OnSetup           SetupFunc[T]
	OnTerminalFailure TerminalFailureFunc[T]
}

/*
BaseWorker pulls jobs from one queue and runs each through its pipeline.
Health gating happens per job: while any dependency probe fails, jobs are
refused with a retryable error so they back off instead of burning attempts
against a dead database.
*/
type BaseWorker[T any] struct {
	cfg  WorkerConfig[T]
	deps *Deps
	log  *logger.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewBaseWorker[T any](cfg WorkerConfig[T], deps *Deps) (*BaseWorker[T], error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("worker name is empty")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("worker %q has no queue", cfg.Name)
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("worker %q has no pipeline", cfg.Name)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &BaseWorker[T]{
		cfg:  cfg,
		deps: deps,
		log:  deps.Log.With("worker", cfg.Name, "queue", cfg.Queue.Name()),
	}, nil
}

func (w *BaseWorker[T]) Name() string  { return w.cfg.Name }
func (w *BaseWorker[T]) Running() bool { return w.running.Load() }

func (w *BaseWorker[T]) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return fmt.Errorf("worker %q already running", w.cfg.Name)
	}
	pullCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	w.log.Info("Worker starting",
		"concurrency", w.cfg.Concurrency,
		"actions", w.cfg.Pipeline.ActionNames(),
	)
	go func() {
		defer close(w.done)
		defer w.running.Store(false)
		if err := w.cfg.Queue.Pull(pullCtx, w.cfg.Concurrency, w.handle); err != nil {
			w.log.Error("Worker pull loop exited with error", "error", err)
		}
	}()
	return nil
}

func (w *BaseWorker[T]) Stop(ctx context.Context) error {
	if !w.running.Load() {
		return nil
	}
	w.log.Info("Worker stopping")
	w.cancel()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker %q did not drain before deadline: %w", w.cfg.Name, ctx.Err())
	}
}

func (w *BaseWorker[T]) handle(ctx context.Context, job *queue.Job) (retErr error) {
	queueName := w.cfg.Queue.Name()

	var data T
	if w.deps.Health != nil && !w.deps.Health.IsHealthy(ctx) {
		w.log.Warn("Deferring job, dependencies unhealthy", "job_id", job.ID)
		return w.finish(ctx, job, data, errs.ServiceUnhealthy(queueName))
	}

	if err := json.Unmarshal(job.Payload, &data); err != nil {
		// A payload that never decodes will never decode; don't retry it.
		return errs.FatalWrap(err, errs.TypeWorker, "decode job payload")
	}

	ac := &ActionContext{
		JobID:      job.ID,
		QueueName:  queueName,
		WorkerName: w.cfg.Name,
		Attempt:    job.Attempt,
		StartedAt:  time.Now().UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job panicked", "job_id", job.ID, "panic", r)
			retErr = &errs.Error{
				Type:         errs.TypeWorker,
				Severity:     errs.SeverityCritical,
				Message:      fmt.Sprintf("panic in worker %s: %v", w.cfg.Name, r),
				NonRetryable: true,
			}
			w.settleMetrics(job, retErr)
			if w.cfg.OnTerminalFailure != nil {
				w.cfg.OnTerminalFailure(ctx, job, data, retErr)
			}
		}
	}()

	if w.cfg.OnSetup != nil {
		next, err := w.cfg.OnSetup(ctx, ac, data, w.deps)
		if err != nil {
			return w.finish(ctx, job, data, err)
		}
		data = next
	}

	_, err := w.cfg.Pipeline.Run(ctx, ac, data, w.deps)
	return w.finish(ctx, job, data, err)
}

// finish routes the job outcome: metrics, and the terminal-failure hook when
// the queue is about to dead-letter. A health-gate deferral is never terminal
// regardless of the attempt count — the queue refunds the attempt and
// reschedules, so the hook must not fire.
func (w *BaseWorker[T]) finish(ctx context.Context, job *queue.Job, data T, err error) error {
	w.settleMetrics(job, err)
	if err == nil || errs.IsDeferral(err) {
		return err
	}
	if !errs.ShouldRetry(err, job.Attempt, w.deps.Retry) && w.cfg.OnTerminalFailure != nil {
		w.cfg.OnTerminalFailure(ctx, job, data, err)
	}
	return err
}

func (w *BaseWorker[T]) settleMetrics(job *queue.Job, err error) {
	if w.deps.Metrics == nil {
		return
	}
	queueName := w.cfg.Queue.Name()
	switch {
	case err == nil:
		w.deps.Metrics.JobSettled(queueName, "completed")
	case errs.IsDeferral(err) || errs.ShouldRetry(err, job.Attempt, w.deps.Retry):
		w.deps.Metrics.JobSettled(queueName, "retried")
	default:
		w.deps.Metrics.JobSettled(queueName, "failed")
	}
}

package workers

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/logger"
)

// Observer is notified around each action. The metrics adapter implements it;
// tests use it to assert sequencing.
type Observer interface {
	ActionStarted(ac *ActionContext, action string)
	ActionCompleted(ac *ActionContext, action string, d time.Duration, err error)
}

/*
Pipeline runs a fixed action sequence over one payload value. The payload is
threaded through: each action receives the previous action's output. The
pipeline stops at the first error; whether that error retries the whole job is
the queue's decision, so a retried job re-runs the sequence from the top and
every action has to tolerate its own earlier side effects.
*/
type Pipeline[T any] struct {
	name      string
	actions   []Action[T]
	log       *logger.Logger
	errors    *errs.Handler
	observers []Observer
}

func NewPipeline[T any](name string, actions []Action[T], log *logger.Logger, handler *errs.Handler) *Pipeline[T] {
	return &Pipeline[T]{
		name:    name,
		actions: actions,
		log:     log.With("pipeline", name),
		errors:  handler,
	}
}

func (p *Pipeline[T]) AddObserver(o Observer) {
	if o != nil {
		p.observers = append(p.observers, o)
	}
}

func (p *Pipeline[T]) ActionNames() []string {
	names := make([]string, len(p.actions))
	for i, a := range p.actions {
		names[i] = a.Name()
	}
	return names
}

func (p *Pipeline[T]) Run(ctx context.Context, ac *ActionContext, data T, deps *Deps) (T, error) {
	tracer := otel.Tracer("importer/pipeline")
	for _, action := range p.actions {
		name := action.Name()
		if err := action.ValidateInput(data); err != nil {
			return data, p.fail(ac, name, err)
		}

		actionCtx, span := tracer.Start(ctx, p.name+"."+name)
		span.SetAttributes(
			attribute.String("job.id", ac.JobID),
			attribute.String("job.queue", ac.QueueName),
			attribute.Int("job.attempt", ac.Attempt),
		)

		for _, o := range p.observers {
			o.ActionStarted(ac, name)
		}
		start := time.Now()
		next, err := action.Execute(actionCtx, ac, data, deps)
		elapsed := time.Since(start)
		for _, o := range p.observers {
			o.ActionCompleted(ac, name, elapsed, err)
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return data, p.fail(ac, name, err)
		}
		span.End()
		data = next

		p.log.Debug("Action completed",
			"action", name,
			"job_id", ac.JobID,
			"duration", elapsed,
		)
	}
	return data, nil
}

func (p *Pipeline[T]) fail(ac *ActionContext, action string, err error) error {
	return p.errors.Handle(err, map[string]any{
		"queue":   ac.QueueName,
		"action":  action,
		"job_id":  ac.JobID,
		"attempt": ac.Attempt,
	})
}

package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Queue names, one per downstream pipeline. The set is closed; workers and
// the fan-out action both reference these constants rather than literals.
const (
	QueueNotes          = "notes"
	QueueIngredients    = "ingredients"
	QueueInstruction    = "instruction"
	QueueImage          = "image"
	QueueCategorization = "categorization"
	QueueSource         = "source"
)

// Names returns the closed queue-name set in worker start order.
func Names() []string {
	return []string{
		QueueNotes,
		QueueIngredients,
		QueueInstruction,
		QueueImage,
		QueueCategorization,
		QueueSource,
	}
}

// Job is the envelope pulled from a queue. Attempt counts delivery attempts
// and is 1-based while a handler is running; only the queue mutates it.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

// PushOptions tunes a single enqueue. Priority > 0 jumps the job to the
// front of the queue; Delay holds it back until the delay elapses.
type PushOptions struct {
	Priority int
	Delay    time.Duration
}

// Handler processes one job. A nil return acks the job; an error is passed
// through the retry policy to decide between reschedule and dead-letter.
type Handler func(ctx context.Context, job *Job) error

// Queue is the job-stream abstraction workers consume. Ack/nack are internal
// to Pull: the queue settles each job from the handler's return value.
type Queue interface {
	Name() string
	Push(ctx context.Context, payload any, opts *PushOptions) (string, error)
	// Pull consumes jobs with up to concurrency handlers in flight, blocking
	// until ctx is cancelled and all in-flight handlers have returned.
	Pull(ctx context.Context, concurrency int, h Handler) error
	Depth(ctx context.Context) (int64, error)
	Close() error
}

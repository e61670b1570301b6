package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/logger"
)

// RedisQueue is a list-backed queue. Layout per queue name q:
//
//	importq:{q}:wait    list of job IDs, consumed from the right
//	importq:{q}:active  list of job IDs currently held by handlers
//	importq:{q}:delayed zset of job IDs scored by ready-at (unix ms)
//	importq:{q}:failed  list of dead-lettered job IDs
//	importq:{q}:jobs    hash of job ID -> envelope JSON
//
// Settling is handler-driven: nil return acks, an error consults the retry
// policy and either reschedules with backoff or dead-letters the job.
type RedisQueue struct {
	rdb   *goredis.Client
	name  string
	log   *logger.Logger
	retry errs.RetryConfig

	pollTimeout time.Duration
}

func NewRedisQueue(rdb *goredis.Client, name string, log *logger.Logger, retry errs.RetryConfig) *RedisQueue {
	return &RedisQueue{
		rdb:         rdb,
		name:        name,
		log:         log.With("component", "RedisQueue", "queue", name),
		retry:       retry,
		pollTimeout: time.Second,
	}
}

func (q *RedisQueue) Name() string { return q.name }

func (q *RedisQueue) key(suffix string) string {
	return fmt.Sprintf("importq:%s:%s", q.name, suffix)
}

func (q *RedisQueue) Push(ctx context.Context, payload any, opts *PushOptions) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", errs.Wrap(err, errs.TypeWorker, errs.SeverityHigh, "marshal job payload")
	}
	job := &Job{
		ID:          uuid.New().String(),
		Queue:       q.name,
		Payload:     raw,
		Attempt:     0,
		MaxAttempts: q.retry.MaxRetries,
		EnqueuedAt:  time.Now().UTC(),
	}
	if opts != nil {
		job.Priority = opts.Priority
	}
	if err := q.storeJob(ctx, job); err != nil {
		return "", err
	}

	switch {
	case opts != nil && opts.Delay > 0:
		readyAt := float64(time.Now().Add(opts.Delay).UnixMilli())
		if err := q.rdb.ZAdd(ctx, q.key("delayed"), goredis.Z{Score: readyAt, Member: job.ID}).Err(); err != nil {
			return "", errs.Wrap(err, errs.TypeRedis, errs.SeverityHigh, "enqueue delayed job")
		}
	case opts != nil && opts.Priority > 0:
		// Consumers pop from the right, so RPUSH puts the job at the front.
		if err := q.rdb.RPush(ctx, q.key("wait"), job.ID).Err(); err != nil {
			return "", errs.Wrap(err, errs.TypeRedis, errs.SeverityHigh, "enqueue priority job")
		}
	default:
		if err := q.rdb.LPush(ctx, q.key("wait"), job.ID).Err(); err != nil {
			return "", errs.Wrap(err, errs.TypeRedis, errs.SeverityHigh, "enqueue job")
		}
	}
	q.log.Debug("Job enqueued", "job_id", job.ID, "delay", optsDelay(opts), "priority", job.Priority)
	return job.ID, nil
}

func optsDelay(opts *PushOptions) time.Duration {
	if opts == nil {
		return 0
	}
	return opts.Delay
}

func (q *RedisQueue) storeJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errs.Wrap(err, errs.TypeWorker, errs.SeverityHigh, "marshal job envelope")
	}
	if err := q.rdb.HSet(ctx, q.key("jobs"), job.ID, string(data)).Err(); err != nil {
		return errs.Wrap(err, errs.TypeRedis, errs.SeverityHigh, "store job envelope")
	}
	return nil
}

func (q *RedisQueue) loadJob(ctx context.Context, id string) (*Job, error) {
	raw, err := q.rdb.HGet(ctx, q.key("jobs"), id).Result()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (q *RedisQueue) Pull(ctx context.Context, concurrency int, h Handler) error {
	if concurrency < 1 {
		concurrency = 1
	}
	slots := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for {
		if ctx.Err() != nil {
			break
		}
		if err := q.promoteDelayed(ctx); err != nil && ctx.Err() == nil {
			q.log.Warn("Promoting delayed jobs failed", "error", err)
		}

		id, err := q.rdb.BRPopLPush(ctx, q.key("wait"), q.key("active"), q.pollTimeout).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			q.log.Warn("Queue poll failed", "error", err)
			continue
		}

		job, err := q.claim(ctx, id)
		if err != nil {
			q.log.Error("Dropping undecodable job", "job_id", id, "error", err)
			q.discard(ctx, id)
			continue
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			// Shutdown raced the pop; put the job back for the next worker.
			q.requeueFront(context.Background(), job.ID)
			wg.Wait()
			return nil
		}
		wg.Add(1)
		go func(job *Job) {
			defer wg.Done()
			defer func() { <-slots }()
			// In-flight jobs run to completion even when Pull's ctx is
			// cancelled: the handler gets a non-cancellable context so a
			// shutdown never aborts a pipeline mid-sequence.
			q.settle(context.Background(), job, h(context.WithoutCancel(ctx), job))
		}(job)
	}

	wg.Wait()
	return nil
}

// claim bumps the attempt counter and persists it so handlers and the retry
// policy see a 1-based attempt number.
func (q *RedisQueue) claim(ctx context.Context, id string) (*Job, error) {
	job, err := q.loadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Attempt++
	if err := q.storeJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (q *RedisQueue) settle(ctx context.Context, job *Job, handlerErr error) {
	if handlerErr == nil {
		q.ack(ctx, job)
		return
	}
	if errs.IsDeferral(handlerErr) {
		// Health-gate deferral: give the attempt back before rescheduling.
		job.Attempt--
		if err := q.storeJob(ctx, job); err != nil {
			q.log.Warn("Deferral: restoring attempt failed", "job_id", job.ID, "error", err)
		}
		q.rescheduleWithBackoff(ctx, job)
		return
	}
	if errs.ShouldRetry(handlerErr, job.Attempt, q.retry) {
		q.rescheduleWithBackoff(ctx, job)
		return
	}
	q.deadLetter(ctx, job, handlerErr)
}

func (q *RedisQueue) ack(ctx context.Context, job *Job) {
	if err := q.rdb.LRem(ctx, q.key("active"), 1, job.ID).Err(); err != nil {
		q.log.Warn("Ack: removing from active failed", "job_id", job.ID, "error", err)
	}
	if err := q.rdb.HDel(ctx, q.key("jobs"), job.ID).Err(); err != nil {
		q.log.Warn("Ack: deleting envelope failed", "job_id", job.ID, "error", err)
	}
	q.log.Debug("Job acked", "job_id", job.ID, "attempt", job.Attempt)
}

func (q *RedisQueue) rescheduleWithBackoff(ctx context.Context, job *Job) {
	delay := errs.Backoff(job.Attempt, q.retry)
	readyAt := float64(time.Now().Add(delay).UnixMilli())
	if err := q.rdb.LRem(ctx, q.key("active"), 1, job.ID).Err(); err != nil {
		q.log.Warn("Retry: removing from active failed", "job_id", job.ID, "error", err)
	}
	if err := q.rdb.ZAdd(ctx, q.key("delayed"), goredis.Z{Score: readyAt, Member: job.ID}).Err(); err != nil {
		q.log.Error("Retry: rescheduling failed, job is lost from the queue", "job_id", job.ID, "error", err)
		return
	}
	q.log.Info("Job rescheduled", "job_id", job.ID, "attempt", job.Attempt, "next_in", delay)
}

func (q *RedisQueue) deadLetter(ctx context.Context, job *Job, cause error) {
	if err := q.rdb.LRem(ctx, q.key("active"), 1, job.ID).Err(); err != nil {
		q.log.Warn("Dead-letter: removing from active failed", "job_id", job.ID, "error", err)
	}
	if err := q.rdb.LPush(ctx, q.key("failed"), job.ID).Err(); err != nil {
		q.log.Error("Dead-letter push failed", "job_id", job.ID, "error", err)
	}
	q.log.Warn("Job dead-lettered",
		"job_id", job.ID,
		"attempt", job.Attempt,
		"max_attempts", job.MaxAttempts,
		"error", cause,
	)
}

func (q *RedisQueue) requeueFront(ctx context.Context, id string) {
	if err := q.rdb.LRem(ctx, q.key("active"), 1, id).Err(); err != nil {
		q.log.Warn("Requeue: removing from active failed", "job_id", id, "error", err)
	}
	if err := q.rdb.RPush(ctx, q.key("wait"), id).Err(); err != nil {
		q.log.Error("Requeue failed", "job_id", id, "error", err)
	}
}

func (q *RedisQueue) discard(ctx context.Context, id string) {
	_ = q.rdb.LRem(ctx, q.key("active"), 1, id).Err()
	_ = q.rdb.HDel(ctx, q.key("jobs"), id).Err()
}

// promoteDelayed moves every due member of the delayed zset onto the wait
// list. Runs before each blocking pop; cheap when the zset is empty.
func (q *RedisQueue) promoteDelayed(ctx context.Context) error {
	nowMs := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := q.rdb.ZRangeByScore(ctx, q.key("delayed"), &goredis.ZRangeBy{
		Min: "-inf",
		Max: nowMs,
	}).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		removed, err := q.rdb.ZRem(ctx, q.key("delayed"), id).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			// Another consumer promoted it first.
			continue
		}
		if err := q.rdb.LPush(ctx, q.key("wait"), id).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	waiting, err := q.rdb.LLen(ctx, q.key("wait")).Result()
	if err != nil {
		return 0, err
	}
	delayed, err := q.rdb.ZCard(ctx, q.key("delayed")).Result()
	if err != nil {
		return 0, err
	}
	return waiting + delayed, nil
}

// Close is a no-op: the redis client is owned by the service container.
func (q *RedisQueue) Close() error { return nil }

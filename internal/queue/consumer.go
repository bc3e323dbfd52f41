package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Handler executes one job. A non-nil error triggers retry with backoff
// until attempts are exhausted.
type Handler func(ctx context.Context, job Job) error

// ErrObsolete signals that the job no longer applies to current state, for
// example a publish job drained for a post that has since been rescheduled.
// The job is discarded without retry and its id is freed immediately, so a
// fresh job for the same id can be enqueued when it becomes due again.
var ErrObsolete = errors.New("queue: job obsolete")

// ExhaustedFunc runs once when a job has failed its final attempt, after the
// job is recorded failed. Used to surface terminal state (status transition,
// owner notification). Optional.
type ExhaustedFunc func(ctx context.Context, job Job, cause error)

const popTimeout = 5 * time.Second

// Run consumes the queue with the configured worker concurrency until ctx is
// done. Each worker blocks on BLPOP so idle queues cost nothing.
func (q *Queue) Run(ctx context.Context, handler Handler, exhausted ExhaustedFunc) {
	var wg sync.WaitGroup
	for i := 0; i < q.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.consume(ctx, handler, exhausted)
		}()
	}
	wg.Wait()
}

func (q *Queue) consume(ctx context.Context, handler Handler, exhausted ExhaustedFunc) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := q.rdb.BLPop(ctx, popTimeout, readyKey(q.cfg.Name)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			q.log.Error().Err(err).Msg("pop failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) != 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			q.log.Error().Err(err).Msg("dropping undecodable job")
			continue
		}
		q.execute(ctx, job, handler, exhausted)
	}
}

func (q *Queue) execute(ctx context.Context, job Job, handler Handler, exhausted ExhaustedFunc) {
	key := jobKey(q.cfg.Name, job.ID)
	if err := q.rdb.Set(ctx, key, statusActive, q.cfg.PendingTTL).Err(); err != nil {
		q.log.Warn().Err(err).Str("job_id", job.ID).Msg("mark active failed")
	}

	err := q.runHandler(ctx, job, handler)
	if err == nil {
		q.finalize(ctx, job, statusCompleted, nil)
		q.log.Info().Str("job_id", job.ID).Int("attempt", job.Attempt).Msg("job completed")
		return
	}

	if errors.Is(err, ErrObsolete) {
		if derr := q.rdb.Del(ctx, key).Err(); derr != nil {
			q.log.Warn().Err(derr).Str("job_id", job.ID).Msg("free obsolete job id failed")
		}
		q.log.Info().Str("job_id", job.ID).Msg("obsolete job discarded, id freed")
		return
	}

	if !shouldRetry(job.Attempt, job.MaxAttempts) {
		q.finalize(ctx, job, statusFailed, err)
		q.log.Error().Err(err).Str("job_id", job.ID).Int("attempt", job.Attempt).
			Msg("job failed, attempts exhausted")
		if exhausted != nil {
			exhausted(ctx, job, err)
		}
		return
	}

	base := job.BackoffBase
	if base <= 0 {
		base = q.cfg.BackoffBase
	}
	delay := nextBackoff(base, job.Attempt)
	job.Attempt++
	raw, merr := json.Marshal(job)
	if merr != nil {
		q.log.Error().Err(merr).Str("job_id", job.ID).Msg("re-marshal for retry failed")
		return
	}
	if zerr := q.rdb.ZAdd(ctx, delayedKey(q.cfg.Name), redis.Z{
		Score:  float64(time.Now().Add(delay).Unix()),
		Member: raw,
	}).Err(); zerr != nil {
		q.log.Error().Err(zerr).Str("job_id", job.ID).Msg("schedule retry failed")
		return
	}
	if serr := q.rdb.Set(ctx, key, statusQueued, q.cfg.PendingTTL).Err(); serr != nil {
		q.log.Warn().Err(serr).Str("job_id", job.ID).Msg("mark queued failed")
	}
	q.log.Warn().Err(err).Str("job_id", job.ID).Int("attempt", job.Attempt-1).
		Dur("retry_in", delay).Msg("job failed, retry scheduled")
}

// runHandler isolates handler panics so a bad job cannot take the worker
// goroutine down.
func (q *Queue) runHandler(ctx context.Context, job Job, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errorFromPanic(r)
			q.log.Error().Str("job_id", job.ID).Interface("panic", r).Msg("handler panicked")
		}
	}()
	return handler(ctx, job)
}

func errorFromPanic(r any) error {
	if e, ok := r.(error); ok {
		return e
	}
	return errors.New("handler panic")
}

type terminalRecord struct {
	JobID      string    `json:"job_id"`
	Attempt    int       `json:"attempt"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// finalize records terminal state: the dedup key takes the terminal status
// with a retention TTL, and a bounded audit record is pushed to the matching
// retention list.
func (q *Queue) finalize(ctx context.Context, job Job, status string, cause error) {
	rec := terminalRecord{JobID: job.ID, Attempt: job.Attempt, FinishedAt: time.Now().UTC()}
	list := doneKey(q.cfg.Name)
	keep := q.cfg.RetentionCompleted
	if status == statusFailed {
		list = failedKey(q.cfg.Name)
		keep = q.cfg.RetentionFailed
		if cause != nil {
			rec.Error = cause.Error()
		}
	}
	raw, _ := json.Marshal(rec)

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(q.cfg.Name, job.ID), status, q.cfg.RetentionTTL)
	pipe.LPush(ctx, list, raw)
	if keep > 0 {
		pipe.LTrim(ctx, list, 0, keep-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Warn().Err(err).Str("job_id", job.ID).Msg("record terminal state failed")
	}
}

// Package queue implements named Redis-backed work queues with idempotent
// job ids, bounded worker concurrency, and delayed retries. A job id is
// derived from business data (publish-post-42, generate-7-2024-06-01-09:00)
// so re-enqueueing the same logical work is a no-op while the job is queued,
// active, or still inside terminal retention.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Queue names used by the pipeline.
const (
	Generation      = "generation"
	Publishing      = "publishing"
	ExternalPublish = "external-publish"
)

// Job statuses recorded at the per-job dedup key.
const (
	statusQueued    = "queued"
	statusActive    = "active"
	statusCompleted = "completed"
	statusFailed    = "failed"
)

// Job is the wire envelope carried through Redis.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	BackoffBase time.Duration   `json:"backoff_base,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

// Options tune a single enqueue call.
type Options struct {
	// Delay postpones first execution; used to spread bursts of
	// simultaneously-due jobs over a small random window.
	Delay time.Duration
	// BackoffBase overrides the queue's default retry backoff.
	BackoffBase time.Duration
}

type Config struct {
	Name               string
	Concurrency        int
	MaxAttempts        int
	BackoffBase        time.Duration
	RetentionCompleted int64
	RetentionFailed    int64
	RetentionTTL       time.Duration

	// PendingTTL bounds how long a job id stays reserved while the job is
	// queued or active. A worker that dies between pop and finalize leaves
	// the key behind with no one to clear it; without an expiry that orphan
	// would reject every later re-enqueue of the same id and the fallback
	// path could never recover the work. Defaults to the full retry ladder
	// plus execution slack.
	PendingTTL time.Duration
}

type Queue struct {
	rdb *redis.Client
	cfg Config
	log zerolog.Logger
}

func New(rdb *redis.Client, cfg Config, log zerolog.Logger) *Queue {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Second
	}
	if cfg.RetentionTTL <= 0 {
		cfg.RetentionTTL = time.Hour
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = pendingHorizon(cfg.BackoffBase, cfg.MaxAttempts)
	}
	return &Queue{
		rdb: rdb,
		cfg: cfg,
		log: log.With().Str("component", "queue").Str("queue", cfg.Name).Logger(),
	}
}

func (q *Queue) Name() string { return q.cfg.Name }

func readyKey(name string) string   { return "queue:" + name + ":ready" }
func delayedKey(name string) string { return "queue:" + name + ":delayed" }
func failedKey(name string) string  { return "queue:" + name + ":failed" }
func doneKey(name string) string    { return "queue:" + name + ":completed" }
func jobKey(name, id string) string { return "queue:" + name + ":job:" + id }

// Enqueue adds a job unless its id is already queued, active, or still in
// terminal retention. A duplicate is a success (false, nil), logged at info.
// The reservation carries a pending TTL so a copy lost to a worker crash
// frees the id once the retry horizon has passed.
func (q *Queue) Enqueue(ctx context.Context, jobID string, payload any, opts Options) (bool, error) {
	created, err := q.rdb.SetNX(ctx, jobKey(q.cfg.Name, jobID), statusQueued, q.cfg.PendingTTL+opts.Delay).Result()
	if err != nil {
		return false, fmt.Errorf("reserve job id: %w", err)
	}
	if !created {
		status, _ := q.rdb.Get(ctx, jobKey(q.cfg.Name, jobID)).Result()
		q.log.Info().Str("job_id", jobID).Str("status", status).Msg("duplicate enqueue ignored")
		return false, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		q.rdb.Del(ctx, jobKey(q.cfg.Name, jobID))
		return false, fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:          jobID,
		Queue:       q.cfg.Name,
		Payload:     body,
		Attempt:     1,
		MaxAttempts: q.cfg.MaxAttempts,
		BackoffBase: opts.BackoffBase,
		EnqueuedAt:  time.Now().UTC(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		q.rdb.Del(ctx, jobKey(q.cfg.Name, jobID))
		return false, fmt.Errorf("marshal job: %w", err)
	}

	if opts.Delay > 0 {
		err = q.rdb.ZAdd(ctx, delayedKey(q.cfg.Name), redis.Z{
			Score:  float64(time.Now().Add(opts.Delay).Unix()),
			Member: raw,
		}).Err()
	} else {
		err = q.rdb.RPush(ctx, readyKey(q.cfg.Name), raw).Err()
	}
	if err != nil {
		q.rdb.Del(ctx, jobKey(q.cfg.Name, jobID))
		return false, fmt.Errorf("push job: %w", err)
	}

	q.log.Debug().Str("job_id", jobID).Dur("delay", opts.Delay).Msg("job enqueued")
	return true, nil
}

// Depth reports queue backlog sizes for the stats endpoint.
type Depth struct {
	Ready   int64 `json:"ready"`
	Delayed int64 `json:"delayed"`
	Failed  int64 `json:"failed"`
}

func (q *Queue) Stats(ctx context.Context) (Depth, error) {
	var d Depth
	pipe := q.rdb.Pipeline()
	ready := pipe.LLen(ctx, readyKey(q.cfg.Name))
	delayed := pipe.ZCard(ctx, delayedKey(q.cfg.Name))
	failed := pipe.LLen(ctx, failedKey(q.cfg.Name))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return d, err
	}
	d.Ready = ready.Val()
	d.Delayed = delayed.Val()
	d.Failed = failed.Val()
	return d, nil
}

// ListFailed returns up to count retained failed-job records, newest first.
func (q *Queue) ListFailed(ctx context.Context, count int64) ([]string, error) {
	if count <= 0 {
		count = 50
	}
	return q.rdb.LRange(ctx, failedKey(q.cfg.Name), 0, count-1).Result()
}

// Connect opens and verifies a Redis client from a redis:// URL.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

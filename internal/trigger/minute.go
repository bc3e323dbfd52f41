package trigger

import (
	"context"
	"time"

	"postflow/internal/queue"
	"postflow/internal/worker"

	"github.com/rs/zerolog"
)

// MinutePublish drains the current minute's cached post ids into the
// publishing queue. The lease is scoped to the minute with a short TTL; the
// critical section is just a drain plus enqueues.
type MinutePublish struct {
	locks    Locker
	cache    Cache
	pub      Enqueuer
	leaseTTL time.Duration
	log      zerolog.Logger
}

func NewMinutePublish(locks Locker, cache Cache, pub Enqueuer, leaseTTL time.Duration, log zerolog.Logger) *MinutePublish {
	return &MinutePublish{
		locks:    locks,
		cache:    cache,
		pub:      pub,
		leaseTTL: leaseTTL,
		log:      log.With().Str("trigger", "minute-publish").Logger(),
	}
}

func (t *MinutePublish) Tick(ctx context.Context, now time.Time) error {
	minute := now.UTC().Truncate(time.Minute)
	lockKey := "lock:minute-publish:" + minute.Format("2006-01-02-15-04")
	l, err := t.locks.Acquire(ctx, []string{lockKey}, t.leaseTTL)
	if err != nil {
		return err
	}
	defer t.locks.Release(ctx, l)

	ids, err := t.cache.DrainMinute(ctx, minute)
	if err != nil {
		// Cache failures are soft: the fallback trigger re-reads the store
		// within the minute.
		t.log.Error().Err(err).Msg("minute drain failed, fallback path covers it")
		return nil
	}
	for _, id := range ids {
		if _, err := t.pub.Enqueue(ctx, worker.PublishJobID(id), worker.PublishPayload{PostID: id}, queue.Options{}); err != nil {
			t.log.Error().Err(err).Int64("post_id", id).Msg("publish enqueue failed")
		}
	}
	if len(ids) > 0 {
		t.log.Info().Int("posts", len(ids)).Str("minute", minute.Format("2006-01-02-15-04")).
			Msg("due posts enqueued from cache")
	}
	return nil
}

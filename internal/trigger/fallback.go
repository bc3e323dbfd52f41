package trigger

import (
	"context"
	"fmt"
	"time"

	"postflow/internal/queue"
	"postflow/internal/worker"

	"github.com/rs/zerolog"
)

const fallbackLockKey = "lock:post-publishing-check"

// FallbackPublish is the safety net under the cache path: every minute it
// asks the authoritative store directly for overdue scheduled posts and
// enqueues the same publish-post job id the minute trigger would. Both paths
// firing in the same minute dedup on the job id; the redundancy is
// deliberate defense against cache staleness or loss.
type FallbackPublish struct {
	locks    Locker
	store    Store
	pub      Enqueuer
	leaseTTL time.Duration
	log      zerolog.Logger
}

func NewFallbackPublish(locks Locker, store Store, pub Enqueuer, leaseTTL time.Duration, log zerolog.Logger) *FallbackPublish {
	return &FallbackPublish{
		locks:    locks,
		store:    store,
		pub:      pub,
		leaseTTL: leaseTTL,
		log:      log.With().Str("trigger", "fallback-publish").Logger(),
	}
}

func (t *FallbackPublish) Tick(ctx context.Context, now time.Time) error {
	l, err := t.locks.Acquire(ctx, []string{fallbackLockKey}, t.leaseTTL)
	if err != nil {
		return err
	}
	defer t.locks.Release(ctx, l)

	posts, err := t.store.FindDuePosts(ctx, now.UTC())
	if err != nil {
		return fmt.Errorf("query due posts: %w", err)
	}
	for _, p := range posts {
		if _, err := t.pub.Enqueue(ctx, worker.PublishJobID(p.ID), worker.PublishPayload{PostID: p.ID}, queue.Options{}); err != nil {
			t.log.Error().Err(err).Int64("post_id", p.ID).Msg("fallback enqueue failed")
		}
	}
	if len(posts) > 0 {
		t.log.Info().Int("posts", len(posts)).Msg("overdue posts enqueued from store")
	}
	return nil
}

package trigger

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"postflow/internal/queue"
	"postflow/internal/worker"

	"github.com/rs/zerolog"
)

// HourlyGeneration walks the enabled schedule preferences once per hour and
// enqueues a generation job for every owner slot in the current hour that
// has no post yet. The lease is scoped to the hour, so two instances in the
// same hour contend but different hours never block each other.
type HourlyGeneration struct {
	locks    Locker
	store    Store
	gen      Enqueuer
	leaseTTL time.Duration
	spread   time.Duration
	log      zerolog.Logger
}

func NewHourlyGeneration(locks Locker, store Store, gen Enqueuer, leaseTTL, spread time.Duration, log zerolog.Logger) *HourlyGeneration {
	return &HourlyGeneration{
		locks:    locks,
		store:    store,
		gen:      gen,
		leaseTTL: leaseTTL,
		spread:   spread,
		log:      log.With().Str("trigger", "hourly-generation").Logger(),
	}
}

func (t *HourlyGeneration) Tick(ctx context.Context, now time.Time) error {
	now = now.UTC()
	hourKey := "lock:hourly-generation:" + now.Format("2006-01-02-15")
	l, err := t.locks.Acquire(ctx, []string{hourKey}, t.leaseTTL)
	if err != nil {
		return err
	}
	defer t.locks.Release(ctx, l)

	day := now.Weekday()
	prefs, err := t.store.ListEnabledPreferences(ctx, day)
	if err != nil {
		return fmt.Errorf("list preferences: %w", err)
	}

	enqueued := 0
	for _, pref := range prefs {
		for _, ct := range pref.TimesFor(day) {
			if ct.Hour != now.Hour() {
				continue
			}
			at := time.Date(now.Year(), now.Month(), now.Day(), ct.Hour, ct.Minute, 0, 0, time.UTC)

			// Idempotence guard against reruns within the hour: a post
			// already occupying the slot means generation already happened.
			existing, err := t.store.FindPostByOwnerAndTime(ctx, pref.OwnerID, at)
			if err != nil {
				t.log.Error().Err(err).Int64("owner_id", pref.OwnerID).
					Msg("slot check failed, skipping owner slot")
				continue
			}
			if existing != nil {
				continue
			}

			var opts queue.Options
			if t.spread > 0 {
				opts.Delay = rand.N(t.spread)
			}
			created, err := t.gen.Enqueue(ctx,
				worker.GenerationJobID(pref.OwnerID, at),
				worker.GenerationPayload{OwnerID: pref.OwnerID, PublishAt: at},
				opts)
			if err != nil {
				t.log.Error().Err(err).Int64("owner_id", pref.OwnerID).
					Msg("generation enqueue failed")
				continue
			}
			if created {
				enqueued++
			}
		}
	}
	t.log.Info().Int("owners", len(prefs)).Int("enqueued", enqueued).Msg("generation tick done")
	return nil
}

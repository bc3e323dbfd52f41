// Package trigger contains the periodic drivers of the publishing pipeline.
// Every instance runs identical timers; a short-lived lease decides which
// instance does the work on a given tick. Losing the lease race is routine,
// not an error.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postflow/internal/domain"
	"postflow/internal/lease"
	"postflow/internal/queue"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Locker is the lease surface triggers coordinate through.
type Locker interface {
	Acquire(ctx context.Context, keys []string, ttl time.Duration) (*lease.Lease, error)
	Release(ctx context.Context, l *lease.Lease)
}

// Store is the slice of the authoritative store triggers read.
type Store interface {
	FindDuePosts(ctx context.Context, now time.Time) ([]domain.Post, error)
	FindPostByOwnerAndTime(ctx context.Context, ownerID int64, at time.Time) (*domain.Post, error)
	ListEnabledPreferences(ctx context.Context, day time.Weekday) ([]domain.SchedulePreference, error)
}

// Cache is the time-window cache surface triggers drive.
type Cache interface {
	RefreshWindow(ctx context.Context, now time.Time) error
	DrainMinute(ctx context.Context, t time.Time) ([]int64, error)
}

// Enqueuer matches queue.Queue's enqueue surface.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string, payload any, opts queue.Options) (bool, error)
}

// TickFunc runs one trigger tick at the given wall time.
type TickFunc func(ctx context.Context, now time.Time) error

// Runner drives trigger ticks on cron schedules. A tick error never crashes
// the process: contention logs at info, everything else at error, and the
// next tick proceeds normally.
type Runner struct {
	cron *cron.Cron
	ctx  context.Context
	log  zerolog.Logger
}

func NewRunner(ctx context.Context, log zerolog.Logger) *Runner {
	return &Runner{
		cron: cron.New(),
		ctx:  ctx,
		log:  log.With().Str("component", "trigger").Logger(),
	}
}

// Add registers a tick on a standard 5-field cron spec.
func (r *Runner) Add(spec, name string, tick TickFunc) error {
	_, err := r.cron.AddFunc(spec, func() {
		r.runTick(name, tick)
	})
	if err != nil {
		return fmt.Errorf("register trigger %s: %w", name, err)
	}
	return nil
}

func (r *Runner) runTick(name string, tick TickFunc) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Str("trigger", name).Msg("tick panicked")
		}
	}()
	err := tick(r.ctx, time.Now().UTC())
	switch {
	case err == nil:
	case errors.Is(err, lease.ErrContention):
		r.log.Info().Str("trigger", name).Msg("tick owned by another instance")
	default:
		r.log.Error().Err(err).Str("trigger", name).Msg("tick failed")
	}
}

func (r *Runner) Start() { r.cron.Start() }

// Stop halts scheduling and waits for in-flight ticks.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

// HourlySpec builds a cron spec firing at a fixed minute past every hour.
func HourlySpec(minute int) string {
	return fmt.Sprintf("%d * * * *", minute)
}

// EveryMinuteSpec fires each minute.
const EveryMinuteSpec = "* * * * *"

package queue

import (
	"context"
	"errors"
	"strconv"
	"time"

	"postflow/internal/lease"

	"github.com/redis/go-redis/v9"
)

const moveBatch = 100

// StartDelayedMover periodically promotes due delayed jobs to the ready list.
// A per-queue lease keeps concurrent instances from double-scanning; a missed
// round is caught on the next tick. Blocks until ctx is done.
func (q *Queue) StartDelayedMover(ctx context.Context, locks *lease.Manager, interval, leaseTTL time.Duration) {
	tkr := time.NewTicker(interval)
	defer tkr.Stop()
	lockKey := "lock:delayed-mover:" + q.cfg.Name
	for {
		select {
		case <-ctx.Done():
			return
		case <-tkr.C:
			l, err := locks.Acquire(ctx, []string{lockKey}, leaseTTL)
			if err != nil {
				if !errors.Is(err, lease.ErrContention) {
					q.log.Warn().Err(err).Msg("mover lease acquire failed")
				}
				continue
			}
			moved, err := q.moveDue(ctx, moveBatch)
			if err != nil {
				q.log.Error().Err(err).Msg("move delayed jobs failed")
			} else if moved > 0 {
				q.log.Debug().Int("count", moved).Msg("delayed jobs promoted")
			}
			locks.Release(ctx, l)
		}
	}
}

func (q *Queue) moveDue(ctx context.Context, limit int) (int, error) {
	now := time.Now().Unix()
	items, err := q.rdb.ZRangeByScore(ctx, delayedKey(q.cfg.Name), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}
	pipe := q.rdb.TxPipeline()
	for _, m := range items {
		pipe.ZRem(ctx, delayedKey(q.cfg.Name), m)
		pipe.RPush(ctx, readyKey(q.cfg.Name), m)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(items), nil
}

// Package cache keeps a two-tier, time-windowed view of upcoming scheduled
// posts in Redis: an hourly bucket of post metadata and per-minute sets of
// post ids. It is derived state, never authoritative; losing it delays a
// publish at worst, because the fallback trigger re-reads the store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"postflow/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Entry is the serialized per-post value stored in an hour bucket.
type Entry struct {
	ID           int64     `json:"id"`
	OwnerID      int64     `json:"ownerId"`
	Title        string    `json:"title"`
	ScheduledFor time.Time `json:"scheduledFor"`
}

// ScheduleSource is the slice of the authoritative store the cache rebuilds
// from.
type ScheduleSource interface {
	FindScheduledInWindow(ctx context.Context, from, to time.Time) ([]domain.Post, error)
}

type Window struct {
	rdb *redis.Client
	src ScheduleSource
	log zerolog.Logger
}

func NewWindow(rdb *redis.Client, src ScheduleSource, log zerolog.Logger) *Window {
	return &Window{
		rdb: rdb,
		src: src,
		log: log.With().Str("component", "cache").Logger(),
	}
}

// RefreshWindow rebuilds the hour bucket and minute sets for the hour
// starting at now. All writes run in one transactional pipeline so no reader
// observes a half-populated window.
func (w *Window) RefreshWindow(ctx context.Context, now time.Time) error {
	from := now.UTC()
	to := from.Add(time.Hour)

	posts, err := w.src.FindScheduledInWindow(ctx, from, to)
	if err != nil {
		return fmt.Errorf("query scheduled window: %w", err)
	}

	hourKey := HourKey(from)
	pipe := w.rdb.TxPipeline()
	pipe.Del(ctx, hourKey)
	minuteKeys := make(map[string]struct{})
	for _, p := range posts {
		due, ok := p.DueMinute()
		if !ok {
			continue
		}
		b, err := json.Marshal(Entry{
			ID:           p.ID,
			OwnerID:      p.OwnerID,
			Title:        p.Title,
			ScheduledFor: p.ScheduledFor.UTC(),
		})
		if err != nil {
			continue
		}
		pipe.HSet(ctx, hourKey, strconv.FormatInt(p.ID, 10), b)
		mk := MinuteKey(due)
		pipe.SAdd(ctx, mk, strconv.FormatInt(p.ID, 10))
		minuteKeys[mk] = struct{}{}
	}
	pipe.Expire(ctx, hourKey, entryTTL)
	for mk := range minuteKeys {
		pipe.Expire(ctx, mk, entryTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write hour window: %w", err)
	}

	w.log.Info().Str("hour", hourKey).Int("posts", len(posts)).Msg("cache window refreshed")
	return nil
}

// AddOne upserts a single post into the current window. A post due outside
// [now, now+1h) is a no-op; a later hourly refresh will pick it up.
func (w *Window) AddOne(ctx context.Context, now time.Time, p domain.Post) error {
	due, ok := p.DueMinute()
	if !ok {
		return nil
	}
	from := now.UTC()
	if due.Before(from.Truncate(time.Minute)) || !due.Before(from.Add(time.Hour)) {
		return nil
	}

	b, err := json.Marshal(Entry{
		ID:           p.ID,
		OwnerID:      p.OwnerID,
		Title:        p.Title,
		ScheduledFor: p.ScheduledFor.UTC(),
	})
	if err != nil {
		return err
	}
	hourKey := HourKey(from)
	mk := MinuteKey(due)
	id := strconv.FormatInt(p.ID, 10)

	pipe := w.rdb.TxPipeline()
	pipe.HSet(ctx, hourKey, id, b)
	pipe.Expire(ctx, hourKey, entryTTL)
	pipe.SAdd(ctx, mk, id)
	pipe.Expire(ctx, mk, entryTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// drainScript reads and deletes a minute set in one step, so concurrent
// drains of the same minute return disjoint results.
const drainScript = `
	local members = redis.call('SMEMBERS', KEYS[1])
	redis.call('DEL', KEYS[1])
	return members`

// DrainMinute atomically consumes the minute set for the minute containing t
// and returns the post ids that were present. A second drain of the same
// minute returns nothing.
func (w *Window) DrainMinute(ctx context.Context, t time.Time) ([]int64, error) {
	raw, err := w.rdb.Eval(ctx, drainScript, []string{MinuteKey(t)}).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("drain minute set: %w", err)
	}
	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			w.log.Warn().Str("member", s).Msg("dropping non-numeric minute-set member")
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ListKeys returns all live cache keys, for operational diagnosis.
func (w *Window) ListKeys(ctx context.Context) ([]string, error) {
	var keys []string
	for _, pattern := range []string{hourPrefix + "*", minutePrefix + "*"} {
		iter := w.rdb.Scan(ctx, 0, pattern, 200).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// DumpBucket returns the raw field→entry mapping of one hour bucket.
func (w *Window) DumpBucket(ctx context.Context, key string) (map[string]string, error) {
	return w.rdb.HGetAll(ctx, key).Result()
}

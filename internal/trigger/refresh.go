package trigger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const refreshLockKey = "lock:post-cache-refresh"

// CacheRefresh rebuilds the hour window from the authoritative store. It is
// scheduled one minute after generation so freshly generated posts are in
// the window, and it runs once at startup to warm the cache.
type CacheRefresh struct {
	locks    Locker
	cache    Cache
	leaseTTL time.Duration
	log      zerolog.Logger
}

func NewCacheRefresh(locks Locker, cache Cache, leaseTTL time.Duration, log zerolog.Logger) *CacheRefresh {
	return &CacheRefresh{
		locks:    locks,
		cache:    cache,
		leaseTTL: leaseTTL,
		log:      log.With().Str("trigger", "cache-refresh").Logger(),
	}
}

func (t *CacheRefresh) Tick(ctx context.Context, now time.Time) error {
	l, err := t.locks.Acquire(ctx, []string{refreshLockKey}, t.leaseTTL)
	if err != nil {
		return err
	}
	defer t.locks.Release(ctx, l)

	// A refresh miss is self-healing: the next hourly tick rebuilds, and the
	// fallback trigger covers the gap meanwhile. Log, don't propagate.
	if err := t.cache.RefreshWindow(ctx, now); err != nil {
		t.log.Error().Err(err).Msg("cache refresh failed, fallback path covers the window")
	}
	return nil
}

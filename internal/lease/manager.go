// Package lease provides short-lived mutual-exclusion leases over Redis.
// A lease is an atomic SET NX with a holder token; release is a token-checked
// delete so an expired-and-reacquired key is never deleted by a stale holder.
package lease

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrContention means another instance holds at least one requested key.
// Routine under multi-instance deployment; callers skip the tick.
var ErrContention = errors.New("lease: resource held by another instance")

const (
	acquireAttempts = 3
	retryBase       = 200 * time.Millisecond
)

// Lease is a transient exclusive claim over one or more resource keys.
// It self-expires after TTL; Release earlier is best-effort.
type Lease struct {
	Keys  []string
	Token string
	TTL   time.Duration
}

type Manager struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewManager(rdb *redis.Client, log zerolog.Logger) *Manager {
	return &Manager{rdb: rdb, log: log.With().Str("component", "lease").Logger()}
}

// Acquire claims every key or none. On contention it retries a bounded number
// of times with jitter, then returns ErrContention. TTL should comfortably
// exceed the caller's critical section.
func (m *Manager) Acquire(ctx context.Context, keys []string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	var lastErr error
	for attempt := 1; attempt <= acquireAttempts; attempt++ {
		ok, err := m.tryAcquire(ctx, keys, token, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lease{Keys: keys, Token: token, TTL: ttl}, nil
		}
		lastErr = ErrContention
		if attempt < acquireAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter(retryBase)):
			}
		}
	}
	return nil, lastErr
}

func (m *Manager) tryAcquire(ctx context.Context, keys []string, token string, ttl time.Duration) (bool, error) {
	acquired := make([]string, 0, len(keys))
	for _, key := range keys {
		ok, err := m.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			m.releaseKeys(ctx, acquired, token)
			return false, err
		}
		if !ok {
			m.releaseKeys(ctx, acquired, token)
			return false, nil
		}
		acquired = append(acquired, key)
	}
	return true, nil
}

// releaseScript deletes a lease key only while this holder's token is still
// the value, so an expired lease reacquired elsewhere is left alone.
const releaseScript = `
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	else
		return 0
	end`

// Release gives the lease up early. Idempotent and best-effort: a lease that
// expires on its own is equally correct.
func (m *Manager) Release(ctx context.Context, l *Lease) {
	if l == nil {
		return
	}
	m.releaseKeys(ctx, l.Keys, l.Token)
}

func (m *Manager) releaseKeys(ctx context.Context, keys []string, token string) {
	for _, key := range keys {
		if err := m.rdb.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
			m.log.Warn().Err(err).Str("key", key).Msg("lease release failed, relying on TTL expiry")
		}
	}
}

// jitter spreads d over [d/2, 3d/2) so contending instances don't retry in
// lockstep.
func jitter(d time.Duration) time.Duration {
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(d)))
}

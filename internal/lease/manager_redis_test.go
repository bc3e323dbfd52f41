package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewManager(rdb, zerolog.Nop()), mr
}

func TestAcquireMutualExclusion(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	keys := []string{"lock:post-publishing-check"}

	l1, err := m.Acquire(ctx, keys, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, l1)

	// The second holder burns its bounded retries and loses.
	l2, err := m.Acquire(ctx, keys, time.Minute)
	assert.ErrorIs(t, err, ErrContention)
	assert.Nil(t, l2)
}

func TestReleaseAllowsReacquire(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	keys := []string{"lock:post-cache-refresh"}

	l1, err := m.Acquire(ctx, keys, time.Minute)
	require.NoError(t, err)
	m.Release(ctx, l1)

	l2, err := m.Acquire(ctx, keys, time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, l1.Token, l2.Token)
}

func TestStaleReleaseLeavesNewHolderAlone(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()
	keys := []string{"lock:post-cache-refresh"}

	l1, err := m.Acquire(ctx, keys, time.Minute)
	require.NoError(t, err)
	m.Release(ctx, l1)

	l2, err := m.Acquire(ctx, keys, time.Minute)
	require.NoError(t, err)

	// The first holder releasing again must not delete the second's claim.
	m.Release(ctx, l1)
	val, err := mr.Get(keys[0])
	require.NoError(t, err)
	assert.Equal(t, l2.Token, val)
}

func TestAcquireAllOrNothing(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("lock:minute-publish:2024-06-01-14-32", "someone-else"))

	l, err := m.Acquire(ctx, []string{
		"lock:hourly-generation:2024-06-01-14",
		"lock:minute-publish:2024-06-01-14-32",
	}, time.Minute)
	assert.ErrorIs(t, err, ErrContention)
	assert.Nil(t, l)

	// The key claimed before the conflict was rolled back.
	assert.False(t, mr.Exists("lock:hourly-generation:2024-06-01-14"))
}

func TestLeaseExpiresOnItsOwn(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()
	keys := []string{"lock:post-publishing-check"}

	_, err := m.Acquire(ctx, keys, 20*time.Second)
	require.NoError(t, err)

	mr.FastForward(21 * time.Second)

	l2, err := m.Acquire(ctx, keys, 20*time.Second)
	require.NoError(t, err)
	assert.NotNil(t, l2)
}

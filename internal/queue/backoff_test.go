package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoffDoubles(t *testing.T) {
	base := 5 * time.Second
	assert.Equal(t, 5*time.Second, nextBackoff(base, 1))
	assert.Equal(t, 10*time.Second, nextBackoff(base, 2))
	assert.Equal(t, 20*time.Second, nextBackoff(base, 3))
	assert.Equal(t, 40*time.Second, nextBackoff(base, 4))
}

func TestNextBackoffClampsAttempt(t *testing.T) {
	assert.Equal(t, time.Minute, nextBackoff(time.Minute, 0))
	assert.Equal(t, time.Minute, nextBackoff(time.Minute, -3))
}

func TestPendingHorizonCoversRetryLadder(t *testing.T) {
	// Three attempts at 5s base wait 5s then 10s between attempts.
	assert.Equal(t, executionSlack+15*time.Second, pendingHorizon(5*time.Second, 3))
	// A single-attempt queue still gets the execution slack.
	assert.Equal(t, executionSlack, pendingHorizon(time.Minute, 1))
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, shouldRetry(1, 3))
	assert.True(t, shouldRetry(2, 3))
	assert.False(t, shouldRetry(3, 3))
	assert.False(t, shouldRetry(4, 3))
}

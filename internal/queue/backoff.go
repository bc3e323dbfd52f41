package queue

import "time"

// nextBackoff doubles the base delay for each completed attempt:
// attempt 1 → base, attempt 2 → 2×base, attempt 3 → 4×base.
func nextBackoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := 1 << (attempt - 1)
	return time.Duration(factor) * base
}

// shouldRetry reports whether a failed execution gets another attempt.
func shouldRetry(attempt, maxAttempts int) bool {
	return attempt < maxAttempts
}

// executionSlack pads the pending horizon for pop-to-finalize time and
// enqueue spread delays.
const executionSlack = 10 * time.Minute

// pendingHorizon is the longest a job id can legitimately stay live: every
// inter-attempt backoff in the ladder plus execution slack. A job key older
// than this belonged to a worker that died mid-flight.
func pendingHorizon(base time.Duration, maxAttempts int) time.Duration {
	total := executionSlack
	for attempt := 1; attempt < maxAttempts; attempt++ {
		total += nextBackoff(base, attempt)
	}
	return total
}

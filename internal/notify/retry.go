package notify

import (
	"math/rand"
	"time"
)

const (
	// DefaultMaxAttempts is the delivery attempt budget for org
	// webhook events.
	DefaultMaxAttempts = 5

	// retryBase is the delay after the first failed attempt.
	retryBase = 30 * time.Second

	// retryFactor multiplies the delay between consecutive attempts.
	retryFactor = 6

	// retryCap bounds the delay. Invitation and parse notifications
	// lose their value after a day; a flapping endpoint still hears
	// about them within hours.
	retryCap = 3 * time.Hour

	// retryJitter is the ± fraction of jitter applied to every delay.
	retryJitter = 0.2
)

// NextRetryDelay computes the backoff before the next attempt.
// attemptCount is 0-indexed: 0 after the first failure. The schedule is
// geometric (30s, 3m, 18m, 1h48m, then capped), jittered so endpoints
// that failed together do not retry together.
func NextRetryDelay(attemptCount int) time.Duration {
	if attemptCount < 0 {
		attemptCount = 0
	}

	delay := retryBase
	for i := 0; i < attemptCount && delay < retryCap; i++ {
		delay *= retryFactor
	}
	if delay > retryCap {
		delay = retryCap
	}

	jitter := (rand.Float64()*2 - 1) * retryJitter * float64(delay)
	return delay + time.Duration(jitter)
}

// NextRetryAt is the wall-clock time of the next attempt.
func NextRetryAt(attemptCount int) time.Time {
	return time.Now().UTC().Add(NextRetryDelay(attemptCount))
}

// IsExhausted reports whether the attempt budget is spent.
func IsExhausted(attemptCount, maxAttempts int) bool {
	return attemptCount >= maxAttempts
}

package queue

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy describes the per-queue backoff applied between attempts
// of a retryable failure. It is an explicit, independently testable
// policy value rather than behavior buried in the dispatch loop.
type RetryPolicy struct {
	// MaxAttempts bounds the total number of executions, including the
	// first one.
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// Factor is the exponential growth factor between retries.
	Factor float64
}

// DefaultRetryPolicy returns the policy used by queues without an
// explicit override.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Factor:      2,
	}
}

// Delay returns the backoff before the next execution, given how many
// attempts have already run. Jitter keeps concurrent retries from
// synchronizing: delay = base * factor^(attempts-1) * (0.5 + rand/2).
func (p RetryPolicy) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	base := p.BaseDelay
	if base <= 0 {
		base = 2 * time.Second
	}

	factor := p.Factor
	if factor < 1 {
		factor = 2
	}

	backoff := float64(base) * math.Pow(factor, float64(attempts-1))
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(backoff * jitter)
}

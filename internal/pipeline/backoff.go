package pipeline

import (
	"math"
	"time"
)

// BackoffPolicy computes capped exponential delays between retry attempts.
// Used inside the per-payload retry loop, as inter-chunk pacing in concurrent
// batch execution, and (at attempt 1) as the fixed inter-item pacing delay in
// sequential execution that reduces nonce contention.
type BackoffPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// NewBackoffPolicy creates a backoff policy with the given schedule.
func NewBackoffPolicy(initial, max time.Duration, multiplier float64) *BackoffPolicy {
	return &BackoffPolicy{
		InitialDelay: initial,
		MaxDelay:     max,
		Multiplier:   multiplier,
	}
}

// Delay returns the pause before retrying after the given attempt number
// (1-based): min(initial × multiplier^(attempt−1), max). Delays are
// monotonically non-decreasing in the attempt number and never exceed
// MaxDelay.
func (b *BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt-1))
	if d > float64(b.MaxDelay) {
		return b.MaxDelay
	}
	return time.Duration(d)
}

package download

import (
	"math/rand/v2"
	"time"
)

// RetryPolicy controls the per-task retry loop.
//
// A policy is fixed for the lifetime of a run.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts per task, the first included.
	MaxAttempts int

	// BaseDelay is multiplied by 2^attempt to get the backoff delay.
	BaseDelay time.Duration

	// MaxDelay caps every delay, jitter included.
	MaxDelay time.Duration

	// JitterMax bounds the random delay added to each backoff: [0, JitterMax).
	JitterMax time.Duration

	// ExponentCap stops the exponential growth after this many doublings.
	ExponentCap int
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		JitterMax:   300 * time.Millisecond,
		ExponentCap: 5,
	}
}

// DelayFor returns how long to wait after the given failed attempt (1-based).
//
//	delay = min(MaxDelay, BaseDelay * 2^min(attempt, ExponentCap) + jitter)
//
// With the default policy attempt 1 waits about 1s, attempt 2 about 2s,
// attempt 3 about 4s, attempt 4 about 8s and later attempts 10s.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	var jitter time.Duration
	if p.JitterMax > 0 {
		jitter = rand.N(p.JitterMax)
	}
	return p.delay(attempt, jitter)
}

func (p RetryPolicy) delay(attempt int, jitter time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	exp := min(attempt, p.ExponentCap)
	if exp < 0 {
		exp = 0
	}

	// Saturate instead of overflowing for large caps.
	delay := p.BaseDelay
	for i := 0; i < exp && (p.MaxDelay <= 0 || delay < p.MaxDelay); i++ {
		delay *= 2
	}
	delay += jitter

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

package queue

import (
	"math/rand/v2"
	"time"
)

// RetryPolicy implements exponential_then_daily: base·2^(n-1) with jitter for
// the first ExponentialAttempts attempts, then a flat DailyInterval forever.
type RetryPolicy struct {
	Base                time.Duration
	ExponentialAttempts int
	DailyInterval       time.Duration
	// Jitter is the fraction of the exponential delay that is randomized.
	Jitter float64

	rand func() float64
}

// DefaultRetryPolicy mirrors the queue defaults in config.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:                10 * time.Second,
		ExponentialAttempts: 10,
		DailyInterval:       24 * time.Hour,
		Jitter:              0.2,
	}
}

// NextDelay returns the wait before the retry that follows the given
// 1-based attempt.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > p.ExponentialAttempts {
		return p.DailyInterval
	}
	delay := p.Base
	for i := 1; i < attempt && delay < p.DailyInterval; i++ {
		delay *= 2
	}
	if delay <= 0 || delay > p.DailyInterval {
		delay = p.DailyInterval
	}
	if p.Jitter <= 0 {
		return delay
	}
	random := p.rand
	if random == nil {
		random = rand.Float64
	}
	spread := float64(delay) * p.Jitter
	return delay - time.Duration(spread) + time.Duration(2*spread*random())
}

package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func ExponentialBackoff(baseDelay, maxDelay time.Duration, jitter bool) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = baseDelay
	exp.MaxInterval = maxDelay
	exp.Multiplier = 2.0
	exp.MaxElapsedTime = 0
	if jitter {
		exp.RandomizationFactor = 0.5
	} else {
		exp.RandomizationFactor = 0
	}
	exp.Reset()
	return exp
}

// Delay returns the nominal (un-jittered) delay before the next attempt.
// attempt is 1-based: the delay after the first failure is BaseDelay.
func Delay(attempt int, policy Policy) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	duration := float64(policy.BaseDelay) * math.Pow(2, float64(attempt-1))
	if duration > float64(policy.MaxDelay) {
		return policy.MaxDelay
	}
	return time.Duration(duration)
}

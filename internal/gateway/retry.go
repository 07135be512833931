package gateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the retry loop around transient upstream failures.
// Delays double from BaseDelay up to MaxDelay with ±50% jitter so that
// concurrent chunks hitting the same throttle do not retry in lockstep.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the retry bounds used when none are configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

// withRetry runs fn, retrying transient errors per the policy. Non-transient
// errors return immediately after the first attempt.
func withRetry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.BaseDelay
	bo.MaxInterval = policy.MaxDelay
	bo.Multiplier = 2.0
	bo.RandomizationFactor = 0.5
	bo.MaxElapsedTime = 0 // attempts are bounded by count, not wall clock

	attempts := uint64(0)
	if policy.MaxAttempts > 1 {
		attempts = uint64(policy.MaxAttempts - 1)
	}

	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, attempts), ctx))
}

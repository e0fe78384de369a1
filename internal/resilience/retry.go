package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/curatd/curatd/internal/domain/policy"
)

// Retry runs fn under the policy's attempt budget and backoff curve. Each
// attempt gets its own context bounded by the policy timeout. Permanent
// errors stop the loop immediately; everything else is retried until the
// attempt budget is spent or ctx is canceled.
//
// It returns the number of attempts made and the error from the last one.
func Retry(ctx context.Context, p policy.RetryPolicy, fn func(context.Context) error) (int, error) {
	return RetryNotify(ctx, p, fn, nil)
}

// RetryNotify is Retry with a callback invoked before each backoff sleep,
// carrying the attempt's error and the upcoming delay.
func RetryNotify(ctx context.Context, p policy.RetryPolicy, fn func(context.Context) error, notify func(err error, next time.Duration)) (int, error) {
	attempts := 0
	op := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
		defer cancel()

		err := fn(attemptCtx)
		if err != nil && policy.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var retries uint64
	if p.MaxAttempts > 1 {
		retries = uint64(p.MaxAttempts - 1)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(curveFor(p), retries), ctx)

	var err error
	if notify == nil {
		err = backoff.Retry(op, bo)
	} else {
		err = backoff.RetryNotify(op, bo, notify)
	}
	return attempts, err
}

// curveFor builds the library backoff matching the policy curve:
// initial_interval * backoff_coefficient^(attempt-1), capped at max_interval.
func curveFor(p policy.RetryPolicy) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.RandomizationFactor = 0 // no jitter, delays follow policy.Interval exactly
	bo.Multiplier = p.BackoffCoefficient
	bo.MaxInterval = p.MaxInterval
	bo.MaxElapsedTime = 0 // the attempt budget bounds the loop, not wall time
	return bo
}

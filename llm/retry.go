package llm

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures bounded retry with exponential backoff. This is
// the per-call safety net for transient provider failures; sustained
// rate limiting is handled by the caller, which sees the RateLimitError
// once retries here are exhausted.
type RetryPolicy struct {
	MaxRetries        int     // retry attempts beyond the initial call
	BaseDelay         float64 // seconds
	MaxDelay          float64 // seconds
	BackoffMultiplier float64
	Jitter            bool
	OnRetry           func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns the default per-call policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         1.0,
		MaxDelay:          30.0,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Delay calculates the delay for attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := math.Min(p.BaseDelay*math.Pow(p.BackoffMultiplier, float64(attempt)), p.MaxDelay)
	if p.Jitter {
		// +/- 50%
		delay = delay * (0.5 + rand.Float64())
	}
	return time.Duration(delay * float64(time.Second))
}

// Retry executes fn under the policy. Only retryable errors are retried;
// a provider retry-after hint overrides the computed delay unless it
// exceeds MaxDelay, in which case the error is returned immediately so
// the caller's own backoff engine can take over.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if !IsRetryable(err) {
			return zero, err
		}

		delay := policy.Delay(attempt)
		if hint, ok := RetryAfterHint(err); ok {
			hinted := time.Duration(hint * float64(time.Second))
			if hinted > time.Duration(policy.MaxDelay*float64(time.Second)) {
				return zero, err
			}
			delay = hinted
		}

		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		select {
		case <-ctx.Done():
			return zero, &TimeoutError{ClientError: ClientError{Message: "request cancelled during retry", Cause: ctx.Err()}}
		case <-time.After(delay):
		}

		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
	}

	return zero, err
}

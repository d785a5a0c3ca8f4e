package statesync

import (
	"context"
	"time"
)

// RetryPolicy bounds automatic retries of failed fetches and mutations.
// The zero value never retries.
type RetryPolicy struct {
	// Count is the number of retries after the first failed attempt.
	Count int
	// Delay returns the wait before retry number attempt (1-based).
	// nil => min(1s * 2^(attempt-1), 30s).
	Delay func(attempt int, err error) time.Duration
	// ShouldRetry filters errors; nil => every error is retried.
	ShouldRetry func(attempt int, err error) bool
}

func (p RetryPolicy) allows(attempt int, err error) bool {
	if attempt > p.Count {
		return false
	}
	if p.ShouldRetry != nil {
		return p.ShouldRetry(attempt, err)
	}
	return true
}

func (p RetryPolicy) delay(attempt int, err error) time.Duration {
	if p.Delay != nil {
		return p.Delay(attempt, err)
	}
	return backoff(attempt)
}

func backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		return defaultRetryMax
	}
	return min(defaultRetryBase<<(attempt-1), defaultRetryMax)
}

// attemptObserver is told about each failure and whether another attempt follows.
type attemptObserver func(attempt int, err error, retryIn time.Duration, willRetry bool)

// withRetry runs call until it succeeds, the policy gives up, or ctx ends.
// It returns the last error on failure.
func withRetry[T any](ctx context.Context, p RetryPolicy, obs attemptObserver, call func(context.Context) (T, error)) (T, error) {
	for attempt := 1; ; attempt++ {
		v, err := safeCall(ctx, call)
		if err == nil {
			return v, nil
		}
		retry := ctx.Err() == nil && p.allows(attempt, err)
		var d time.Duration
		if retry {
			d = p.delay(attempt, err)
		}
		if obs != nil {
			obs(attempt, err, d, retry)
		}
		if !retry {
			return v, err
		}
		if sleepCtx(ctx, d) != nil {
			return v, err
		}
	}
}

// safeCall turns a panic in call into a *PanicError.
func safeCall[T any](ctx context.Context, call func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, &PanicError{Value: r}
		}
	}()
	return call(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package provider

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	maxAttempts  = 3
	backoffBase  = 500 * time.Millisecond
	backoffLimit = 8 * time.Second
)

// withRetry runs fn up to maxAttempts times, backing off exponentially with
// jitter on retryable errors. A RateLimitError's advertised delay wins over
// the computed backoff. Context cancellation stops the loop immediately and
// surfaces as ProviderUnavailableError so callers degrade instead of
// treating it as a transport fault.
func withRetry(ctx context.Context, name string, fn func() (*ChatResponse, error)) (*ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoffDelay(attempt, lastErr)); err != nil {
				return nil, &ProviderUnavailableError{Provider: name, Reason: "canceled"}
			}
		}

		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, &ProviderUnavailableError{Provider: name, Reason: "canceled"}
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// backoffDelay computes the wait before the given attempt (1-based).
func backoffDelay(attempt int, lastErr error) time.Duration {
	var rateErr *RateLimitError
	if errors.As(lastErr, &rateErr) && rateErr.RetryAfter > 0 {
		return rateErr.RetryAfter
	}

	delay := backoffBase << (attempt - 1)
	if delay > backoffLimit {
		delay = backoffLimit
	}
	// Full jitter keeps concurrent retries from synchronizing.
	return time.Duration(rand.Int63n(int64(delay))) + delay/2
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

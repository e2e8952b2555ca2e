package github

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/mooring-labs/searchlink/internal/logger"
)

type retryOptions struct {
	notify func(err error, wait time.Duration)
}

// RetryOption configures FetchWithRetry.
type RetryOption func(*retryOptions)

// WithRetryNotify registers a callback invoked before each retry wait with
// the failure and the wait duration about to be honored.
func WithRetryNotify(notify func(err error, wait time.Duration)) RetryOption {
	return func(o *retryOptions) {
		o.notify = notify
	}
}

// FetchWithRetry runs fetch and retries it when it fails with a
// RateLimitError, honoring the server-specified wait between attempts. A
// budget of n allows n retries, so at most n+1 attempts. A wait of zero or
// less retries immediately.
//
// When the budget is exhausted the last rate-limit error is returned
// unchanged. Any other failure propagates immediately without retry.
func FetchWithRetry[T any](ctx context.Context, budget int, fetch func(context.Context) (T, error), opts ...RetryOption) (T, error) {
	options := &retryOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if budget < 0 {
		budget = 0
	}

	var lastErr error
	operation := func() (T, error) {
		result, err := fetch(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var rateLimitErr *RateLimitError
		if errors.As(err, &rateLimitErr) {
			wait := rateLimitErr.RetryAfter
			if wait < 0 {
				wait = 0
			}
			return result, errors.Join(err, &backoff.RetryAfterError{Duration: wait})
		}
		return result, backoff.Permanent(err)
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&backoff.ZeroBackOff{}),
		backoff.WithMaxTries(uint(budget)+1),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Infof("GitHub rate limited, retrying in %s", wait)
			if options.notify != nil {
				options.notify(err, wait)
			}
		}),
	)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return result, err
	}
	if lastErr != nil {
		return result, lastErr
	}
	return result, err
}

// Package retry wraps fallible operations with bounded retry and exponential
// backoff. Operations passed in must be idempotent or side-effect-safe under
// re-invocation; both the dispatcher and the CRM synchronizer rely on that.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// ShouldRetryFunc decides whether a failed attempt is worth repeating.
// attempt is 1-based.
type ShouldRetryFunc func(err error, attempt int) bool

// Options controls a retry loop.
type Options struct {
	// MaxAttempts is the total number of invocations, including the first.
	MaxAttempts int
	// BaseDelay is the wait after the first failure; attempt N waits
	// BaseDelay * 2^(N-1), capped at MaxDelay.
	BaseDelay time.Duration
	// MaxDelay caps the backoff. Zero means 30s.
	MaxDelay time.Duration
	// ShouldRetry defaults to retrying every error.
	ShouldRetry ShouldRetryFunc
}

// ExhaustedError tags the final error with the attempt count once every
// attempt has been spent.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do invokes op until it succeeds, ShouldRetry declines, the context is
// canceled, or MaxAttempts is exhausted. The backoff sleep blocks only this
// call, never the caller's other work.
func Do(ctx context.Context, opts Options, op func(ctx context.Context) error) error {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if opts.ShouldRetry != nil && !opts.ShouldRetry(lastErr, attempt) {
			return lastErr
		}
		if attempt == opts.MaxAttempts {
			break
		}

		timer := time.NewTimer(backoff(opts, attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		}
	}

	return &ExhaustedError{Attempts: opts.MaxAttempts, Err: lastErr}
}

func backoff(opts Options, attempt int) time.Duration {
	d := float64(opts.BaseDelay) * math.Pow(2, float64(attempt-1))
	if d > float64(opts.MaxDelay) {
		d = float64(opts.MaxDelay)
	}
	return time.Duration(d)
}

package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexhub/outreach-backend/internal/retry"
)

func fastOpts(maxAttempts int) retry.Options {
	return retry.Options{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
	}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fastOpts(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := retry.Do(context.Background(), fastOpts(3), func(ctx context.Context) error {
		calls++
		return boom
	})

	assert.Equal(t, 3, calls)

	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, boom)
}

func TestDoShouldRetryDeclines(t *testing.T) {
	calls := 0
	boom := errors.New("permanent")
	opts := fastOpts(5)
	opts.ShouldRetry = func(err error, attempt int) bool { return false }

	err := retry.Do(context.Background(), opts, func(ctx context.Context) error {
		calls++
		return boom
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, boom)

	var exhausted *retry.ExhaustedError
	assert.False(t, errors.As(err, &exhausted), "declined retry must not be tagged as exhausted")
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	opts := retry.Options{MaxAttempts: 10, BaseDelay: time.Hour}
	err := retry.Do(ctx, opts, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "cancel during backoff must stop further attempts")
}

func TestDoSingleAttemptSuccess(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fastOpts(0), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

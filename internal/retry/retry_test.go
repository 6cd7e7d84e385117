package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("dial tcp: connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnNonRetryableError(t *testing.T) {
	t.Parallel()

	permanent := errors.New("access denied")
	calls := 0
	err := Retry(context.Background(), fastConfig(5), func() error {
		calls++
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), fastConfig(2), func() error {
		calls++
		return errors.New("i/o timeout")
	})

	require.ErrorIs(t, err, ErrMaxAttemptsExceeded)
	assert.Equal(t, 2, calls)
}

func TestRetry_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastConfig(3), func() error { return nil })
	require.ErrorIs(t, err, ErrContextCancelled)
}

func TestBackoff_CapsAtMaxDelay(t *testing.T) {
	t.Parallel()

	cfg := withDefaults(Config{InitialDelay: time.Second, MaxDelay: 3 * time.Second})

	assert.Equal(t, time.Second, backoff(cfg, 1))
	assert.Equal(t, 2*time.Second, backoff(cfg, 2))
	assert.Equal(t, 3*time.Second, backoff(cfg, 3))
}

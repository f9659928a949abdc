package pattern

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetry(t *testing.T) {
	boom := errors.New("boom")
	fatal := errors.New("fatal")
	cases := []struct {
		name      string
		failFirst int
		failErr   error
		opts      []RetryOption
		wantErr   error
		wantCalls int
	}{
		{name: "first_try", failFirst: 0, wantCalls: 1},
		{name: "succeeds_after_failures", failFirst: 2, failErr: boom, opts: []RetryOption{WithMaxAttempts(5)}, wantCalls: 3},
		{name: "exhausted", failFirst: 10, failErr: boom, opts: []RetryOption{WithMaxAttempts(3)}, wantErr: boom, wantCalls: 3},
		{name: "not_retriable", failFirst: 10, failErr: fatal, opts: []RetryOption{WithShouldRetry(func(err error) bool { return !errors.Is(err, fatal) })}, wantErr: fatal, wantCalls: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			opts := append([]RetryOption{WithInitialDelay(time.Millisecond), WithMaxDelay(2 * time.Millisecond)}, tc.opts...)
			err := Retry(context.Background(), func(attempt int) error {
				calls++
				require.Equal(t, calls, attempt)
				if calls <= tc.failFirst {
					return tc.failErr
				}
				return nil
			}, opts...)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tc.wantCalls, calls)
		})
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := Retry(ctx, func(int) error { return errors.New("never") }, WithInfiniteAttempts(), WithInitialDelay(5*time.Millisecond))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := NewRetryConfig(WithInitialDelay(100*time.Millisecond), WithMaxDelay(time.Second), WithMultiplier(2), WithJitter(0))
	require.Equal(t, 100*time.Millisecond, cfg.Backoff(1, nil))
	require.Equal(t, 200*time.Millisecond, cfg.Backoff(2, nil))
	require.Equal(t, 400*time.Millisecond, cfg.Backoff(3, nil))
	require.Equal(t, time.Second, cfg.Backoff(10, nil))

	fixed := NewRetryConfig(WithInitialDelay(time.Second), WithMultiplier(1), WithJitter(0))
	require.Equal(t, time.Second, fixed.Backoff(7, nil))

	jittered := NewRetryConfig(WithInitialDelay(time.Second), WithMultiplier(1), WithJitter(0.5))
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		d := jittered.Backoff(1, rng)
		require.GreaterOrEqual(t, d, 500*time.Millisecond)
		require.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestRetryConfig_Exhausted(t *testing.T) {
	require.False(t, NewRetryConfig(WithInfiniteAttempts()).Exhausted(1_000_000))
	bounded := NewRetryConfig(WithMaxAttempts(2))
	require.False(t, bounded.Exhausted(2))
	require.True(t, bounded.Exhausted(3))
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

package resilience

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRefused = errors.New("connection refused")

func TestRetryBoundedMakesRPlusOneAttempts(t *testing.T) {
	attempts := 0
	notified := 0
	err := Retry(context.Background(), RetryPolicy{Interval: time.Millisecond, MaxRetries: 3},
		func(int) error {
			attempts++
			return errRefused
		},
		func(error, time.Duration) { notified++ })

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, errRefused)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 3, notified)
}

func TestRetryStopsOnSuccess(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryPolicy{Interval: time.Millisecond, MaxRetries: 5},
		func(attempt int) error {
			attempts = attempt
			if attempt < 3 {
				return errRefused
			}
			return nil
		}, nil)

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryUnboundedUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Retry(ctx, RetryPolicy{Interval: time.Millisecond}, func(int) error {
		attempts++
		if attempts == 50 {
			cancel()
		}
		return errRefused
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 50, attempts)
}

func TestRetryCancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Retry(ctx, RetryPolicy{Interval: time.Hour, MaxRetries: 3}, func(int) error { return errRefused }, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func newTestBreaker() (*CircuitBreaker, *time.Time) {
	now := time.Unix(1700000000, 0)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		Name:             "test",
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb, now := newTestBreaker()
	fail := func(context.Context) error { return errRefused }
	ok := func(context.Context) error { return nil }

	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errRefused)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errRefused)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	*now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Execute(context.Background(), ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker()
	fail := func(context.Context) error { return errRefused }

	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	*now = now.Add(2 * time.Minute)

	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errRefused)
	assert.Equal(t, StateOpen, cb.State())

	*now = now.Add(30 * time.Second)
	assert.ErrorIs(t, cb.Execute(context.Background(), fail), ErrCircuitOpen, "reopening restarts the recovery timeout")
}

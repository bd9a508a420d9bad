package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/venicegeo/fusion/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          50 * time.Millisecond,
	})

	boom := errors.New("boom")
	fail := func(ctx context.Context) error { return boom }

	require.ErrorIs(t, cb.Execute(context.Background(), fail), boom)
	assert.Equal(t, resilience.StateClosed, cb.CurrentState())

	require.ErrorIs(t, cb.Execute(context.Background(), fail), boom)
	assert.Equal(t, resilience.StateOpen, cb.CurrentState())

	err := cb.Execute(context.Background(), fail)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          10 * time.Millisecond,
	})

	boom := errors.New("boom")
	require.Error(t, cb.Execute(context.Background(), func(ctx context.Context) error { return boom }))
	assert.Equal(t, resilience.StateOpen, cb.CurrentState())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Execute(context.Background(), func(ctx context.Context) error { return nil }))
	assert.Equal(t, resilience.StateClosed, cb.CurrentState())
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := resilience.Retry(context.Background(), resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		Multiplier:     1,
	}, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsWhenRetryIfReturnsFalse(t *testing.T) {
	permanent := errors.New("permanent")
	attempts := 0
	err := resilience.Retry(context.Background(), resilience.RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		RetryIf:        func(error) bool { return false },
	}, func(ctx context.Context) error {
		attempts++
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/finchlabs/finch/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOpts() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return &ProviderError{Provider: "mock", Retryable: true, Err: errors.New("transient")}
		}
		return nil
	}, fastOpts())

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	fatal := &ProviderError{Provider: "mock", Retryable: false, Err: errors.New("bad request")}

	err := WithRetry(context.Background(), func() error {
		attempts++
		return fatal
	}, fastOpts())

	assert.Equal(t, 1, attempts, "non-retryable errors fail immediately")
	var provErr *ProviderError
	assert.ErrorAs(t, err, &provErr)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), func() error {
		attempts++
		return &ProviderError{Provider: "mock", Retryable: true, Err: errors.New("still down")}
	}, fastOpts())

	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, ErrMaxRetries)
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, func() error {
		return &ProviderError{Provider: "mock", Retryable: true, Err: errors.New("down")}
	}, fastOpts())

	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit sentinel", ErrRateLimit, true},
		{"rate limit typed", &RateLimitError{Provider: "mock"}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"retryable provider error", &ProviderError{Retryable: true, Err: errors.New("x")}, true},
		{"fatal provider error", &ProviderError{Retryable: false, Err: errors.New("x")}, false},
		{"budget exceeded", &BudgetExceededError{Scope: BudgetScopeUser, UserID: "u"}, false},
		{"circuit open", &CircuitOpenError{Provider: "mock", RetryAfter: time.Minute}, false},
		{"plain error", errors.New("nope"), false},
		{"not found", ErrNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

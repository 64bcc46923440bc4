// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEvent = errors.New("duplicate event")

	// Provider errors.
	ErrRateLimit  = errors.New("rate limit exceeded")
	ErrMaxRetries = errors.New("max retries exceeded")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// BudgetScope distinguishes the global daily budget from a per-user budget.
type BudgetScope string

// Budget scopes.
const (
	BudgetScopeGlobal BudgetScope = "global"
	BudgetScopeUser   BudgetScope = "user"
)

// ProviderError wraps a failure returned by a language-model backend.
// Retryable failures (rate limits, transient unavailability) still count
// toward the circuit breaker.
type ProviderError struct {
	Err        error
	Provider   string
	StatusCode int
	Retryable  bool
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s failed (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// RateLimitError indicates the provider rejected a call for rate reasons.
// Always retryable.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration // Zero when the provider gave no hint
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %s rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("provider %s rate limited", e.Provider)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimit
}

// BudgetExceededError indicates a daily spend ceiling was reached. Never
// retryable within the same day.
type BudgetExceededError struct {
	Scope  BudgetScope
	UserID string // Set only for the per-user scope
}

func (e *BudgetExceededError) Error() string {
	if e.Scope == BudgetScopeUser {
		return fmt.Sprintf("daily budget exceeded for user %s", e.UserID)
	}
	return "global daily budget exceeded"
}

// CircuitOpenError indicates the breaker for a provider is open. Retryable
// once the breaker's open timeout elapses.
type CircuitOpenError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for provider %s, retry after %s", e.Provider, e.RetryAfter)
}

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var budgetErr *BudgetExceededError
	if errors.As(err, &budgetErr) {
		return false
	}

	var circuitErr *CircuitOpenError
	if errors.As(err, &circuitErr) {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Retryable
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}

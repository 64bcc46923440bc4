// Package provider implements the uniform capability interface over
// language-model backends used for transaction parsing and categorization.
// It supports Anthropic and OpenAI backends plus a deterministic mock, with
// per-call timeouts, rate limiting, and classified retryable errors.
package provider

import (
	"context"
	"time"

	"github.com/finchlabs/finch/internal/model"

	"github.com/shopspring/decimal"
)

// Usage reports token consumption for one billable call.
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
}

// CategoryResult is the outcome of a categorization call.
type CategoryResult struct {
	Category   model.Category
	Confidence float64
}

// ParseContext carries event metadata that helps a backend interpret text.
type ParseContext struct {
	PostedAt  time.Time
	AppSource string
	Locale    string
	Timezone  string
}

// Client is the uniform capability set implemented by every backend.
type Client interface {
	// Name identifies the backend for cost tracking and circuit breaking.
	Name() string
	ParseTransaction(ctx context.Context, text string, pctx ParseContext) (model.ParsedTransaction, Usage, error)
	Categorize(ctx context.Context, merchant, payee string, amount decimal.Decimal, direction model.Direction) (CategoryResult, Usage, error)
	HealthCheck(ctx context.Context) bool
}

// Config holds configuration for a single backend.
type Config struct {
	Name        string // "mock", "anthropic", or "openai"
	APIKey      string
	Model       string
	BaseURL     string // Overridable for tests; empty means the real API
	MaxTokens   int
	RateLimit   int // Requests per minute
	Temperature float64
	Timeout     time.Duration
	MockLatency time.Duration
}

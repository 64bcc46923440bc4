package provider

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/finchlabs/finch/internal/model"

	"github.com/shopspring/decimal"
)

// MockClient is a deterministic Client implementation used for testing and
// as a safety fallback when no real backend is configured. Outputs depend
// only on the input text.
type MockClient struct {
	parseErr      error
	categorizeErr error
	calls         []MockCall
	latency       time.Duration
	healthy       bool
	mu            sync.Mutex
}

// MockCall records one request made to the mock.
type MockCall struct {
	Method string
	Input  string
}

// newMockClient creates a mock with the configured artificial latency.
func newMockClient(cfg Config) *MockClient {
	return &MockClient{
		latency: cfg.MockLatency,
		healthy: true,
	}
}

// NewMockClient creates a mock for use in tests.
func NewMockClient() *MockClient {
	return &MockClient{healthy: true}
}

// FailParseWith makes subsequent ParseTransaction calls return err.
func (m *MockClient) FailParseWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parseErr = err
}

// FailCategorizeWith makes subsequent Categorize calls return err.
func (m *MockClient) FailCategorizeWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categorizeErr = err
}

// SetHealthy controls the HealthCheck result.
func (m *MockClient) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// Calls returns a copy of the recorded calls.
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// Name identifies the backend.
func (m *MockClient) Name() string {
	return "mock"
}

var mockAmountPattern = regexp.MustCompile(`(?i)(?:₹|rs\.?|inr)\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)

// ParseTransaction produces a deterministic parse from keyword checks.
func (m *MockClient) ParseTransaction(ctx context.Context, text string, _ ParseContext) (model.ParsedTransaction, Usage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: "parse", Input: text})
	err := m.parseErr
	latency := m.latency
	m.mu.Unlock()

	if err := sleepCtx(ctx, latency); err != nil {
		return model.ParsedTransaction{}, Usage{}, err
	}
	if err != nil {
		return model.ParsedTransaction{}, Usage{}, err
	}

	usage := Usage{Model: "mock", InputTokens: len(text) / 4, OutputTokens: 60}
	lower := strings.ToLower(text)

	if strings.Contains(lower, "otp") || strings.Contains(lower, "password") {
		return model.ParsedTransaction{
			IsTransaction: false,
			Confidence:    0.99,
			Reason:        "authentication message",
		}, usage, nil
	}

	parsed := model.ParsedTransaction{
		IsTransaction: true,
		Currency:      "INR",
		Confidence:    0.9,
	}

	if match := mockAmountPattern.FindStringSubmatch(text); match != nil {
		if amount, parseErr := decimal.NewFromString(strings.ReplaceAll(match[1], ",", "")); parseErr == nil {
			parsed.Amount = amount
		}
	}
	if parsed.Amount.IsZero() {
		parsed.IsTransaction = false
		parsed.Confidence = 0.7
		parsed.Reason = "no amount found"
		return parsed, usage, nil
	}

	if strings.Contains(lower, "credited") || strings.Contains(lower, "received") {
		parsed.Direction = model.DirectionCredit
	} else {
		parsed.Direction = model.DirectionDebit
	}

	return parsed, usage, nil
}

// Categorize produces a deterministic category from keyword checks.
func (m *MockClient) Categorize(ctx context.Context, merchant, payee string, _ decimal.Decimal, direction model.Direction) (CategoryResult, Usage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: "categorize", Input: merchant + "|" + payee})
	err := m.categorizeErr
	latency := m.latency
	m.mu.Unlock()

	if err := sleepCtx(ctx, latency); err != nil {
		return CategoryResult{}, Usage{}, err
	}
	if err != nil {
		return CategoryResult{}, Usage{}, err
	}

	usage := Usage{Model: "mock", InputTokens: 40, OutputTokens: 10}
	lower := strings.ToLower(merchant + " " + payee)

	var category model.Category
	switch {
	case strings.Contains(lower, "coffee") || strings.Contains(lower, "restaurant"):
		category = model.CategoryFoodDining
	case strings.Contains(lower, "store") || strings.Contains(lower, "mart"):
		category = model.CategoryShopping
	case direction == model.DirectionCredit:
		category = model.CategoryTransfer
	default:
		category = model.CategoryOther
	}

	return CategoryResult{Category: category, Confidence: 0.7}, usage, nil
}

// HealthCheck reports the configured health state.
func (m *MockClient) HealthCheck(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

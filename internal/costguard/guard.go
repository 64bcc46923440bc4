// Package costguard bounds provider spend with day-keyed budget counters
// and guards flaky backends with per-provider circuit breakers. It is an
// injected component: every consumer receives an explicit *Guard so tests
// can build isolated instances.
package costguard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/finchlabs/finch/internal/common"
	"github.com/finchlabs/finch/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuditStore persists usage audit records, satisfied by storage.SQLiteStorage.
type AuditStore interface {
	SaveProviderUsage(ctx context.Context, record *model.UsageRecord) error
}

// Config holds budget and breaker settings. All fields are overridable via
// environment-level configuration.
type Config struct {
	// GlobalDailyBudget caps total spend per UTC day across all users.
	GlobalDailyBudget decimal.Decimal
	// UserDailyBudget caps spend per user per UTC day.
	UserDailyBudget decimal.Decimal
	// InputTokenRate is the cost per 1000 input tokens.
	InputTokenRate decimal.Decimal
	// OutputTokenRate is the cost per 1000 output tokens.
	OutputTokenRate decimal.Decimal
	// FailureThreshold is the consecutive-failure count that opens a breaker.
	FailureThreshold int
	// OpenTimeout is how long an open breaker blocks calls before admitting
	// a half-open probe.
	OpenTimeout time.Duration
	// CounterRetention bounds how long expired day counters are kept.
	CounterRetention time.Duration
}

func (c Config) withDefaults() Config {
	if c.GlobalDailyBudget.IsZero() {
		c.GlobalDailyBudget = decimal.NewFromInt(100)
	}
	if c.UserDailyBudget.IsZero() {
		c.UserDailyBudget = decimal.NewFromInt(5)
	}
	if c.InputTokenRate.IsZero() {
		c.InputTokenRate = decimal.RequireFromString("0.003")
	}
	if c.OutputTokenRate.IsZero() {
		c.OutputTokenRate = decimal.RequireFromString("0.015")
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 5 * time.Minute
	}
	if c.CounterRetention <= 0 {
		c.CounterRetention = 48 * time.Hour
	}
	return c
}

// Guard enforces budgets and circuit breaking for provider calls. Safe for
// concurrent use by many parse attempts in flight.
type Guard struct {
	cfg      Config
	store    AuditStore
	logger   *slog.Logger
	counters *budgetCounters
	breakers map[string]*breaker
	now      func() time.Time
	mu       sync.Mutex
}

// New creates a guard. The audit store may be nil, in which case usage is
// still counted but not audited.
func New(cfg Config, store AuditStore, logger *slog.Logger) *Guard {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		cfg:      cfg,
		store:    store,
		logger:   logger,
		counters: newBudgetCounters(cfg.CounterRetention),
		breakers: make(map[string]*breaker),
		now:      time.Now,
	}
}

// CheckBudget verifies a provider call is allowed right now: the breaker
// must not be open and neither daily budget may be exhausted. No external
// call is made.
func (g *Guard) CheckBudget(_ context.Context, userID, providerName string) error {
	now := g.now()

	allowed, retryAfter := g.breakerFor(providerName).allow(now, g.cfg.OpenTimeout)
	if !allowed {
		return &common.CircuitOpenError{Provider: providerName, RetryAfter: retryAfter}
	}

	day := dayOf(now)
	if g.counters.get(globalKey(day)).GreaterThanOrEqual(g.cfg.GlobalDailyBudget) {
		return &common.BudgetExceededError{Scope: common.BudgetScopeGlobal}
	}
	if g.counters.get(userKey(userID, day)).GreaterThanOrEqual(g.cfg.UserDailyBudget) {
		return &common.BudgetExceededError{Scope: common.BudgetScopeUser, UserID: userID}
	}
	return nil
}

// RecordUsage computes the cost of a successful call at the fixed per-1000-
// token rates, accumulates it into both counters, appends an audit record,
// and closes the provider's breaker. Returns the computed cost.
func (g *Guard) RecordUsage(ctx context.Context, userID, providerName, modelName string, inputTokens, outputTokens int) (decimal.Decimal, error) {
	now := g.now()
	thousand := decimal.NewFromInt(1000)
	cost := decimal.NewFromInt(int64(inputTokens)).Div(thousand).Mul(g.cfg.InputTokenRate).
		Add(decimal.NewFromInt(int64(outputTokens)).Div(thousand).Mul(g.cfg.OutputTokenRate))

	day := dayOf(now)
	g.counters.add([]string{globalKey(day), userKey(userID, day)}, cost, now)

	g.breakerFor(providerName).recordSuccess()

	if g.store != nil {
		record := &model.UsageRecord{
			ID:           uuid.NewString(),
			Provider:     providerName,
			Model:        modelName,
			UserID:       userID,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			Cost:         cost,
			CreatedAt:    now,
		}
		if err := g.store.SaveProviderUsage(ctx, record); err != nil {
			// The spend is already counted; losing one audit row must not
			// fail the parse.
			g.logger.Error("failed to append usage audit record",
				"provider", providerName,
				"user_id", userID,
				"error", err)
		}
	}

	return cost, nil
}

// RecordFailure bumps the breaker's consecutive-failure counter, flipping
// it open when the threshold is reached.
func (g *Guard) RecordFailure(providerName string) {
	opened := g.breakerFor(providerName).recordFailure(g.now(), g.cfg.FailureThreshold)
	if opened {
		g.logger.Warn("circuit breaker opened",
			"provider", providerName,
			"failure_threshold", g.cfg.FailureThreshold,
			"open_timeout", g.cfg.OpenTimeout)
	}
}

// SpendToday returns the accumulated spend for a user today, plus the
// global figure. Intended for operator visibility.
func (g *Guard) SpendToday(userID string) (userSpend, globalSpend decimal.Decimal) {
	day := dayOf(g.now())
	return g.counters.get(userKey(userID, day)), g.counters.get(globalKey(day))
}

func (g *Guard) breakerFor(providerName string) *breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.breakers[providerName]
	if !ok {
		b = &breaker{}
		g.breakers[providerName] = b
	}
	return b
}

// String summarizes breaker states for logs.
func (g *Guard) String() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	summary := "costguard{"
	first := true
	for name, b := range g.breakers {
		state, failures := b.snapshot()
		if !first {
			summary += " "
		}
		summary += fmt.Sprintf("%s:state=%d,failures=%d", name, state, failures)
		first = false
	}
	return summary + "}"
}

// Package engine implements the parsing orchestrator: the single entry
// point composing the cache, heuristic extractor, cost guard, provider, and
// category rules into the cache -> heuristic -> provider pipeline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finchlabs/finch/internal/common"
	"github.com/finchlabs/finch/internal/model"
	"github.com/finchlabs/finch/internal/provider"
	"github.com/finchlabs/finch/internal/rules"
	"github.com/finchlabs/finch/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Provenance values recorded on parse outcomes.
const (
	ProvenanceCache     = "cache"
	ProvenanceHeuristic = "heuristic"
)

// Config tunes the orchestrator.
type Config struct {
	// HighConfidence is the heuristic confidence at or above which the
	// provider is skipped entirely.
	HighConfidence float64
	// ProviderTimeout bounds each provider call. A timed-out call counts
	// as a retryable failure for the circuit breaker.
	ProviderTimeout time.Duration
	// Retry controls backoff for transient provider failures. Zero values
	// fall back to the WithRetry defaults.
	Retry service.RetryOptions
}

func (c Config) withDefaults() Config {
	if c.HighConfidence == 0 {
		c.HighConfidence = 0.85
	}
	if c.ProviderTimeout == 0 {
		c.ProviderTimeout = 20 * time.Second
	}
	return c
}

// Outcome describes the result of one parse attempt.
type Outcome struct {
	Transaction *model.Transaction // Set only when a transaction was created
	Provenance  string
	Result      model.ParsedTransaction
	Status      model.ParseStatus
}

// Orchestrator drives events through the parse pipeline. Each event's parse
// is independent and may run concurrently with others.
type Orchestrator struct {
	storage   service.Storage
	cache     ResultCache
	extractor Extractor
	rules     *rules.Engine
	provider  provider.Client
	guard     Guard
	logger    *slog.Logger
	cfg       Config
}

// New creates an orchestrator.
func New(cfg Config, storage service.Storage, resultCache ResultCache, extractor Extractor, ruleEngine *rules.Engine, client provider.Client, guard Guard, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg.withDefaults(),
		storage:   storage,
		cache:     resultCache,
		extractor: extractor,
		rules:     ruleEngine,
		provider:  client,
		guard:     guard,
		logger:    logger,
	}
}

// ProcessEvent runs one event through cache, heuristic, and provider. It
// marks the event PARSED, SKIPPED, or FAILED and returns the outcome.
// Budget and circuit-breaker errors propagate so sweeps can back off.
func (o *Orchestrator) ProcessEvent(ctx context.Context, event *model.Event) (Outcome, error) {
	fingerprint := event.Fingerprint
	if fingerprint == "" {
		fingerprint = event.GenerateFingerprint()
	}

	// 1. Cache.
	if entry, found, err := o.cache.Get(ctx, fingerprint); err == nil && found {
		o.logger.Debug("cache hit",
			"event_id", event.ID,
			"provenance", entry.Provenance)
		return o.finalize(ctx, event, entry.Result, ProvenanceCache)
	} else if err != nil {
		// A broken cache degrades to a miss, never a failed parse.
		o.logger.Warn("cache lookup failed", "event_id", event.ID, "error", err)
	}

	// 2. Heuristic.
	extracted := o.extractor.Extract(event.TextRedacted)
	if extracted.Confidence >= o.cfg.HighConfidence {
		if err := o.cache.Set(ctx, fingerprint, extracted, ProvenanceHeuristic); err != nil {
			o.logger.Warn("cache write failed", "event_id", event.ID, "error", err)
		}
		return o.finalize(ctx, event, extracted, ProvenanceHeuristic)
	}

	// An event already mid-parse elsewhere should not trigger a second
	// provider call. The re-check leaves a small race window by design.
	fresh, err := o.storage.GetEventByID(ctx, event.ID)
	if err == nil && fresh.ParseStatus != model.StatusPending {
		return Outcome{Status: fresh.ParseStatus, Provenance: ProvenanceCache}, nil
	}

	// 3. Provider, gated by the cost guard.
	if err := o.guard.CheckBudget(ctx, event.UserID, o.provider.Name()); err != nil {
		o.markFailed(ctx, event, extracted.Confidence, err)
		return Outcome{Status: model.StatusFailed, Result: extracted}, err
	}

	var parsed model.ParsedTransaction
	var usage provider.Usage
	err = common.WithRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
		defer cancel()

		var callErr error
		parsed, usage, callErr = o.provider.ParseTransaction(callCtx, event.TextRedacted, provider.ParseContext{
			PostedAt:  event.PostedAt,
			AppSource: event.AppSource,
			Locale:    event.Locale,
			Timezone:  event.Timezone,
		})
		return callErr
	}, o.cfg.Retry)
	if err != nil {
		o.guard.RecordFailure(o.provider.Name())
		o.markFailed(ctx, event, extracted.Confidence, err)
		return Outcome{Status: model.StatusFailed, Result: extracted}, err
	}

	if _, usageErr := o.guard.RecordUsage(ctx, event.UserID, o.provider.Name(), usage.Model, usage.InputTokens, usage.OutputTokens); usageErr != nil {
		o.logger.Warn("failed to record provider usage", "event_id", event.ID, "error", usageErr)
	}

	if cacheErr := o.cache.Set(ctx, fingerprint, parsed, o.provider.Name()); cacheErr != nil {
		o.logger.Warn("cache write failed", "event_id", event.ID, "error", cacheErr)
	}

	return o.finalize(ctx, event, parsed, o.provider.Name())
}

// SweepStats summarizes one pass over pending events.
type SweepStats struct {
	Processed int
	Parsed    int
	Skipped   int
	Failed    int
}

// ProcessPending sweeps a user's pending events oldest first, up to limit.
// An empty userID sweeps all users. Budget and circuit-breaker errors abort
// the sweep so callers can back off instead of busy-looping.
func (o *Orchestrator) ProcessPending(ctx context.Context, userID string, limit int) (SweepStats, error) {
	events, err := o.storage.GetPendingEvents(ctx, userID, limit)
	if err != nil {
		return SweepStats{}, fmt.Errorf("failed to load pending events: %w", err)
	}

	var stats SweepStats
	for i := range events {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		outcome, processErr := o.ProcessEvent(ctx, &events[i])
		stats.Processed++

		switch outcome.Status {
		case model.StatusParsed:
			stats.Parsed++
		case model.StatusSkipped:
			stats.Skipped++
		case model.StatusFailed:
			stats.Failed++
		}

		if processErr != nil && shouldAbortSweep(processErr) {
			return stats, processErr
		}
	}
	return stats, nil
}

// RetryFailed resets all of a user's FAILED events to PENDING and clears
// their error messages. Returns the number of events reset.
func (o *Orchestrator) RetryFailed(ctx context.Context, userID string) (int, error) {
	count, err := o.storage.ResetFailedEvents(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to retry events: %w", err)
	}

	if count > 0 {
		o.logger.Info("reset failed events for retry", "user_id", userID, "count", count)
	}
	return count, nil
}

// finalize folds a parse result into the event's terminal status, creating
// a Transaction when the result is a real transaction.
func (o *Orchestrator) finalize(ctx context.Context, event *model.Event, parsed model.ParsedTransaction, provenance string) (Outcome, error) {
	outcome := Outcome{Result: parsed, Provenance: provenance}

	if !parsed.IsTransaction {
		if err := o.storage.UpdateEventStatus(ctx, event.ID, model.StatusSkipped, parsed.Confidence, ""); err != nil {
			return outcome, fmt.Errorf("failed to mark event skipped: %w", err)
		}
		outcome.Status = model.StatusSkipped
		return outcome, nil
	}

	decision := o.rules.Categorize(ctx, parsed, &guardedCategorizer{
		provider: o.provider,
		guard:    o.guard,
		userID:   event.UserID,
		timeout:  o.cfg.ProviderTimeout,
	})

	occurredAt := parsed.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = event.PostedAt
	}
	currency := parsed.Currency
	if currency == "" {
		currency = "INR"
	}

	txn := &model.Transaction{
		ID:             uuid.NewString(),
		EventID:        event.ID,
		UserID:         event.UserID,
		Amount:         parsed.Amount,
		Currency:       currency,
		Direction:      parsed.Direction,
		Instrument:     parsed.Instrument,
		Merchant:       parsed.Merchant,
		Payee:          parsed.Payee,
		BankHint:       parsed.BankHint,
		ReferenceID:    parsed.ReferenceID,
		Category:       decision.Category,
		CategorySource: decision.Source,
		Confidence:     parsed.Confidence,
		OccurredAt:     occurredAt,
	}

	if existing, lookupErr := o.storage.GetTransactionByEventID(ctx, event.ID); lookupErr == nil && existing != nil {
		// A previous attempt already produced the transaction; only the
		// event status was left behind.
		txn = existing
	} else if err := o.storage.SaveTransaction(ctx, txn); err != nil {
		o.markFailed(ctx, event, parsed.Confidence, err)
		return outcome, fmt.Errorf("failed to save transaction: %w", err)
	}

	if err := o.storage.UpdateEventStatus(ctx, event.ID, model.StatusParsed, parsed.Confidence, ""); err != nil {
		return outcome, fmt.Errorf("failed to mark event parsed: %w", err)
	}

	o.logger.Info("event parsed",
		"event_id", event.ID,
		"user_id", event.UserID,
		"provenance", provenance,
		"category", txn.Category,
		"confidence", parsed.Confidence)

	outcome.Status = model.StatusParsed
	outcome.Transaction = txn
	return outcome, nil
}

func (o *Orchestrator) markFailed(ctx context.Context, event *model.Event, confidence float64, cause error) {
	if err := o.storage.UpdateEventStatus(ctx, event.ID, model.StatusFailed, confidence, cause.Error()); err != nil {
		o.logger.Error("failed to mark event failed", "event_id", event.ID, "error", err)
	}
}

func shouldAbortSweep(err error) bool {
	var budgetErr *common.BudgetExceededError
	var circuitErr *common.CircuitOpenError
	return errors.As(err, &budgetErr) || errors.As(err, &circuitErr)
}

// guardedCategorizer runs a provider categorize call under the same budget
// and breaker accounting as a parse call.
type guardedCategorizer struct {
	provider provider.Client
	guard    Guard
	userID   string
	timeout  time.Duration
}

func (g *guardedCategorizer) Categorize(ctx context.Context, merchant, payee string, amount decimal.Decimal, direction model.Direction) (model.Category, float64, error) {
	if err := g.guard.CheckBudget(ctx, g.userID, g.provider.Name()); err != nil {
		return "", 0, err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, usage, err := g.provider.Categorize(callCtx, merchant, payee, amount, direction)
	if err != nil {
		g.guard.RecordFailure(g.provider.Name())
		return "", 0, err
	}

	_, _ = g.guard.RecordUsage(ctx, g.userID, g.provider.Name(), usage.Model, usage.InputTokens, usage.OutputTokens)
	return result.Category, result.Confidence, nil
}

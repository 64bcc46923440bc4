package engine

import (
	"context"

	"github.com/finchlabs/finch/internal/model"

	"github.com/shopspring/decimal"
)

// ResultCache is the parse-cache capability the orchestrator needs,
// satisfied by cache.ParseCache.
type ResultCache interface {
	Get(ctx context.Context, fingerprint string) (*model.CachedParseResult, bool, error)
	Set(ctx context.Context, fingerprint string, result model.ParsedTransaction, provenance string) error
}

// Extractor is the zero-cost first-pass parser, satisfied by
// heuristic.Extractor.
type Extractor interface {
	Extract(text string) model.ParsedTransaction
}

// Guard is the budget and circuit-breaker capability, satisfied by
// costguard.Guard. Retryable provider failures must be reported through
// RecordFailure so the breaker sees them.
type Guard interface {
	CheckBudget(ctx context.Context, userID, providerName string) error
	RecordUsage(ctx context.Context, userID, providerName, modelName string, inputTokens, outputTokens int) (decimal.Decimal, error)
	RecordFailure(providerName string)
}

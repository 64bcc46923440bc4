package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ParsedTransaction is the structured output of a single parse attempt,
// produced by the heuristic extractor or a provider. It is transient: the
// orchestrator folds it into a Transaction or discards it.
type ParsedTransaction struct {
	OccurredAt    time.Time
	Merchant      string
	Payee         string
	BankHint      string
	AppHint       string
	ReferenceID   string
	Currency      string
	Reason        string // Why this was judged not a transaction, if so
	Flags         []string
	Direction     Direction
	Instrument    Instrument
	Amount        decimal.Decimal
	Confidence    float64
	IsTransaction bool
}

// CachedParseResult associates a fingerprint with a previously computed
// parse, plus provenance and hit bookkeeping. Entries are content-addressed
// and never mutated except for the hit count and last-hit timestamp.
type CachedParseResult struct {
	LastHitAt   time.Time
	CreatedAt   time.Time
	Fingerprint string
	Provenance  string // "heuristic" or a provider name
	Result      ParsedTransaction
	HitCount    int64
}

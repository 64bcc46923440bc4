package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UsageRecord is one audit entry for a billable provider call.
type UsageRecord struct {
	CreatedAt    time.Time
	ID           string
	Provider     string
	Model        string
	UserID       string
	Cost         decimal.Decimal
	InputTokens  int
	OutputTokens int
}

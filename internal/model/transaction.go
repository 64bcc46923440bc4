package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction indicates whether money left or entered the account.
type Direction string

// Transaction directions.
const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// Instrument identifies the payment rail a transaction used.
type Instrument string

// Payment instruments.
const (
	InstrumentUPI    Instrument = "UPI"
	InstrumentCard   Instrument = "CARD"
	InstrumentNEFT   Instrument = "NEFT"
	InstrumentIMPS   Instrument = "IMPS"
	InstrumentWallet Instrument = "WALLET"
)

// CategorySource records how a transaction's category was decided.
type CategorySource string

// Category sources.
const (
	CategorySourceRule CategorySource = "rule"
	CategorySourceLLM  CategorySource = "llm"
	CategorySourceUser CategorySource = "user"
)

// Transaction is the durable, user-visible record produced from an Event.
// Created exactly once per Event that parses as a real transaction.
type Transaction struct {
	OccurredAt     time.Time
	CreatedAt      time.Time
	ID             string
	EventID        string
	UserID         string
	Currency       string
	Merchant       string
	Payee          string
	BankHint       string
	ReferenceID    string
	Category       Category
	CategorySource CategorySource
	Direction      Direction
	Instrument     Instrument
	Amount         decimal.Decimal
	Confidence     float64
}

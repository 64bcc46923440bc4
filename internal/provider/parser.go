package provider

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/finchlabs/finch/internal/model"

	"github.com/shopspring/decimal"
)

// parsePayload is the JSON shape both backends are prompted to emit for a
// parse call.
type parsePayload struct {
	Amount        string   `json:"amount,omitempty"`
	Currency      string   `json:"currency,omitempty"`
	Direction     string   `json:"direction,omitempty"`
	OccurredAt    string   `json:"occurredAt,omitempty"`
	Merchant      string   `json:"merchant,omitempty"`
	Payee         string   `json:"payee,omitempty"`
	Instrument    string   `json:"instrument,omitempty"`
	BankHint      string   `json:"bankHint,omitempty"`
	AppHint       string   `json:"appHint,omitempty"`
	ReferenceID   string   `json:"referenceId,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	Flags         []string `json:"flags,omitempty"`
	Confidence    float64  `json:"confidence"`
	IsTransaction bool     `json:"isTransaction"`
}

// cleanMarkdownWrapper strips code fences that models sometimes wrap around
// JSON output.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// decodeParsePayload converts a backend's JSON text into a ParsedTransaction.
func decodeParsePayload(content string) (model.ParsedTransaction, error) {
	var payload parsePayload
	content = cleanMarkdownWrapper(content)

	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return model.ParsedTransaction{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	parsed := model.ParsedTransaction{
		IsTransaction: payload.IsTransaction,
		Currency:      payload.Currency,
		Merchant:      payload.Merchant,
		Payee:         payload.Payee,
		BankHint:      payload.BankHint,
		AppHint:       payload.AppHint,
		ReferenceID:   payload.ReferenceID,
		Reason:        payload.Reason,
		Flags:         payload.Flags,
		Confidence:    clamp01(payload.Confidence),
	}

	if payload.Amount != "" {
		amount, err := decimal.NewFromString(payload.Amount)
		if err != nil {
			return model.ParsedTransaction{}, fmt.Errorf("invalid amount %q in response: %w", payload.Amount, err)
		}
		parsed.Amount = amount
	}

	switch strings.ToUpper(payload.Direction) {
	case "DEBIT":
		parsed.Direction = model.DirectionDebit
	case "CREDIT":
		parsed.Direction = model.DirectionCredit
	}

	switch strings.ToUpper(payload.Instrument) {
	case "UPI":
		parsed.Instrument = model.InstrumentUPI
	case "CARD":
		parsed.Instrument = model.InstrumentCard
	case "NEFT":
		parsed.Instrument = model.InstrumentNEFT
	case "IMPS":
		parsed.Instrument = model.InstrumentIMPS
	case "WALLET":
		parsed.Instrument = model.InstrumentWallet
	}

	if payload.OccurredAt != "" {
		if occurredAt, err := time.Parse(time.RFC3339, payload.OccurredAt); err == nil {
			parsed.OccurredAt = occurredAt
		}
	}

	return parsed, nil
}

// categoryPayload is the JSON shape for a categorize call.
type categoryPayload struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

func decodeCategoryPayload(content string) (CategoryResult, error) {
	var payload categoryPayload
	content = cleanMarkdownWrapper(content)

	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return CategoryResult{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	category := model.Category(strings.ToUpper(payload.Category))
	if !category.Valid() {
		return CategoryResult{}, fmt.Errorf("unknown category %q in response", payload.Category)
	}

	return CategoryResult{
		Category:   category,
		Confidence: clamp01(payload.Confidence),
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

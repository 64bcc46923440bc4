// Package eval implements the labeled-set evaluation harness for the parse
// pipeline: each labeled input runs through the orchestrator per item, and
// its output is compared against the expectation with a 1% amount tolerance
// and case-insensitive substring merchant matching.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/finchlabs/finch/internal/engine"
	"github.com/finchlabs/finch/internal/model"
	"github.com/finchlabs/finch/internal/service"

	"github.com/shopspring/decimal"
)

// Expectation is the labeled ground truth for one input.
type Expectation struct {
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Direction     string           `json:"direction,omitempty"`
	Merchant      string           `json:"merchant,omitempty"`
	Instrument    string           `json:"instrument,omitempty"`
	IsTransaction bool             `json:"isTransaction"`
}

// LabeledItem is one row of a labeled evaluation set.
type LabeledItem struct {
	PostedAt  time.Time   `json:"postedAt"`
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	AppSource string      `json:"appSource"`
	Expected  Expectation `json:"expected"`
}

// ItemReport is the evaluation outcome for one item.
type ItemReport struct {
	ID         string   `json:"id"`
	Provenance string   `json:"provenance"`
	Mismatches []string `json:"mismatches,omitempty"`
	Passed     bool     `json:"passed"`
}

// Report aggregates an evaluation run.
type Report struct {
	Items  []ItemReport `json:"items"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
}

// Parser is the orchestrator capability the harness invokes per item.
type Parser interface {
	ProcessEvent(ctx context.Context, event *model.Event) (engine.Outcome, error)
}

// Harness runs labeled sets through a parser.
type Harness struct {
	storage service.Storage
	parser  Parser
	logger  *slog.Logger
}

// NewHarness creates a harness. The parser decides the provider: callers
// build an orchestrator around whichever backend the run should exercise.
func NewHarness(storage service.Storage, parser Parser, logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.Default()
	}
	return &Harness{storage: storage, parser: parser, logger: logger}
}

// LoadLabeledSet reads a JSON array of labeled items from a file.
func LoadLabeledSet(path string) ([]LabeledItem, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read labeled set: %w", err)
	}

	var items []LabeledItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse labeled set: %w", err)
	}
	return items, nil
}

// Run evaluates every item and returns the aggregate report.
func (h *Harness) Run(ctx context.Context, items []LabeledItem) (Report, error) {
	report := Report{Items: make([]ItemReport, 0, len(items))}

	for i, item := range items {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		itemReport, err := h.runOne(ctx, i, item)
		if err != nil {
			itemReport = ItemReport{ID: item.ID, Mismatches: []string{"parse error: " + err.Error()}}
		}

		report.Total++
		if itemReport.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Items = append(report.Items, itemReport)
	}

	h.logger.Info("evaluation complete",
		"total", report.Total,
		"passed", report.Passed,
		"failed", report.Failed)
	return report, nil
}

func (h *Harness) runOne(ctx context.Context, index int, item LabeledItem) (ItemReport, error) {
	postedAt := item.PostedAt
	if postedAt.IsZero() {
		postedAt = time.Now().UTC()
	}

	event := &model.Event{
		ID:           fmt.Sprintf("eval-%d-%s", index, item.ID),
		UserID:       "eval",
		AppSource:    item.AppSource,
		PostedAt:     postedAt,
		TextRedacted: item.Text,
		ParseStatus:  model.StatusPending,
	}
	event.GenerateFingerprint()

	if err := h.storage.SaveEvent(ctx, event); err != nil {
		return ItemReport{}, fmt.Errorf("failed to stage eval event: %w", err)
	}

	outcome, err := h.parser.ProcessEvent(ctx, event)
	if err != nil {
		return ItemReport{}, err
	}

	mismatches := compare(item.Expected, outcome.Result)
	return ItemReport{
		ID:         item.ID,
		Provenance: outcome.Provenance,
		Mismatches: mismatches,
		Passed:     len(mismatches) == 0,
	}, nil
}

// amountTolerance is the relative tolerance for amount comparison.
var amountTolerance = decimal.RequireFromString("0.01")

func compare(expected Expectation, actual model.ParsedTransaction) []string {
	var mismatches []string

	if expected.IsTransaction != actual.IsTransaction {
		mismatches = append(mismatches, fmt.Sprintf("isTransaction: want %v, got %v", expected.IsTransaction, actual.IsTransaction))
	}
	if !expected.IsTransaction {
		return mismatches
	}

	if expected.Amount != nil && !amountWithinTolerance(*expected.Amount, actual.Amount) {
		mismatches = append(mismatches, fmt.Sprintf("amount: want %s ±1%%, got %s", expected.Amount, actual.Amount))
	}
	if expected.Direction != "" && expected.Direction != string(actual.Direction) {
		mismatches = append(mismatches, fmt.Sprintf("direction: want %s, got %s", expected.Direction, actual.Direction))
	}
	if expected.Instrument != "" && expected.Instrument != string(actual.Instrument) {
		mismatches = append(mismatches, fmt.Sprintf("instrument: want %s, got %s", expected.Instrument, actual.Instrument))
	}
	if expected.Merchant != "" && !merchantMatches(expected.Merchant, actual) {
		mismatches = append(mismatches, fmt.Sprintf("merchant: want ~%q, got %q/%q", expected.Merchant, actual.Merchant, actual.Payee))
	}

	return mismatches
}

func amountWithinTolerance(expected, actual decimal.Decimal) bool {
	if expected.IsZero() {
		return actual.IsZero()
	}
	diff := expected.Sub(actual).Abs()
	return diff.LessThanOrEqual(expected.Abs().Mul(amountTolerance))
}

func merchantMatches(expected string, actual model.ParsedTransaction) bool {
	want := strings.ToLower(expected)
	for _, got := range []string{strings.ToLower(actual.Merchant), strings.ToLower(actual.Payee)} {
		if got == "" {
			continue
		}
		if strings.Contains(got, want) || strings.Contains(want, got) {
			return true
		}
	}
	return false
}

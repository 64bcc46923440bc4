// Package rules implements the keyword-table-driven category engine used
// before falling back to a provider. Rule evaluation is pure and never
// fails; only the provider fallback can error, and even that degrades to
// OTHER at low confidence.
package rules

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/finchlabs/finch/internal/model"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var keywordTables []byte

// Rule confidence levels.
const (
	keywordConfidence  = 0.8
	salaryConfidence   = 0.6
	transferConfidence = 0.5
	fallbackConfidence = 0.3
)

// Categorizer is the provider capability the engine defers to when neither
// a keyword rule nor the person-name heuristic applies.
type Categorizer interface {
	Categorize(ctx context.Context, merchant, payee string, amount decimal.Decimal, direction model.Direction) (model.Category, float64, error)
}

// Result is a categorization decision with its provenance.
type Result struct {
	Category   model.Category
	Source     model.CategorySource
	Confidence float64
}

// Config tunes rule evaluation.
type Config struct {
	// HighValueCredit is the credit amount at or above which an
	// uncategorized credit is presumed to be salary.
	HighValueCredit decimal.Decimal
}

// Engine evaluates the ordered keyword rule-sets.
type Engine struct {
	logger          *slog.Logger
	debitRules      []debitRule
	refundKeywords  []string
	cashbackKeyword []string
	highValueCredit decimal.Decimal
}

type debitRule struct {
	Category model.Category
	Keywords []string
}

type keywordFile struct {
	DebitRules []struct {
		Category string   `yaml:"category"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"debit_rules"`
	Credit struct {
		RefundKeywords   []string `yaml:"refund_keywords"`
		CashbackKeywords []string `yaml:"cashback_keywords"`
	} `yaml:"credit"`
}

// NewEngine loads the embedded keyword tables.
func NewEngine(cfg Config, logger *slog.Logger) (*Engine, error) {
	var file keywordFile
	if err := yaml.Unmarshal(keywordTables, &file); err != nil {
		return nil, fmt.Errorf("failed to parse keyword tables: %w", err)
	}

	rules := make([]debitRule, 0, len(file.DebitRules))
	for _, raw := range file.DebitRules {
		category := model.Category(raw.Category)
		if !category.Valid() {
			return nil, fmt.Errorf("keyword table references unknown category %q", raw.Category)
		}
		keywords := make([]string, 0, len(raw.Keywords))
		for _, kw := range raw.Keywords {
			keywords = append(keywords, strings.ToLower(kw))
		}
		rules = append(rules, debitRule{Category: category, Keywords: keywords})
	}

	highValue := cfg.HighValueCredit
	if highValue.IsZero() {
		highValue = decimal.NewFromInt(50000)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		debitRules:      rules,
		refundKeywords:  lowerAll(file.Credit.RefundKeywords),
		cashbackKeyword: lowerAll(file.Credit.CashbackKeywords),
		highValueCredit: highValue,
		logger:          logger,
	}, nil
}

// Categorize decides the category for a parsed transaction. The fallback
// categorizer may be nil, in which case unmatched debits go straight to
// OTHER. It never returns an error: provider failures degrade to OTHER.
func (e *Engine) Categorize(ctx context.Context, parsed model.ParsedTransaction, fallback Categorizer) Result {
	name := parsed.Merchant
	if name == "" {
		name = parsed.Payee
	}

	if parsed.Direction == model.DirectionCredit {
		return e.categorizeCredit(name, parsed.Amount)
	}
	return e.categorizeDebit(ctx, parsed, name, fallback)
}

func (e *Engine) categorizeCredit(name string, amount decimal.Decimal) Result {
	lower := strings.ToLower(name)

	// Amount wins over keywords: a high-value credit is presumed salary
	// even when the counterparty text mentions a refund or reward.
	if amount.GreaterThanOrEqual(e.highValueCredit) {
		return Result{Category: model.CategorySalary, Source: model.CategorySourceRule, Confidence: salaryConfidence}
	}
	for _, kw := range e.refundKeywords {
		if strings.Contains(lower, kw) {
			return Result{Category: model.CategoryRefund, Source: model.CategorySourceRule, Confidence: keywordConfidence}
		}
	}
	for _, kw := range e.cashbackKeyword {
		if strings.Contains(lower, kw) {
			return Result{Category: model.CategoryCashback, Source: model.CategorySourceRule, Confidence: keywordConfidence}
		}
	}
	return Result{Category: model.CategoryTransfer, Source: model.CategorySourceRule, Confidence: transferConfidence}
}

func (e *Engine) categorizeDebit(ctx context.Context, parsed model.ParsedTransaction, name string, fallback Categorizer) Result {
	lower := strings.ToLower(name)

	if lower != "" {
		for _, rule := range e.debitRules {
			for _, kw := range rule.Keywords {
				if strings.Contains(lower, kw) {
					return Result{Category: rule.Category, Source: model.CategorySourceRule, Confidence: keywordConfidence}
				}
			}
		}
	}

	if looksLikePersonName(name) {
		return Result{Category: model.CategoryTransfer, Source: model.CategorySourceRule, Confidence: transferConfidence}
	}

	if fallback != nil {
		category, confidence, err := fallback.Categorize(ctx, parsed.Merchant, parsed.Payee, parsed.Amount, parsed.Direction)
		if err == nil && category.Valid() {
			return Result{Category: category, Source: model.CategorySourceLLM, Confidence: confidence}
		}
		if err != nil {
			e.logger.Warn("provider categorization failed, defaulting to OTHER",
				"merchant", parsed.Merchant,
				"error", err)
		}
	}

	return Result{Category: model.CategoryOther, Source: model.CategorySourceRule, Confidence: fallbackConfidence}
}

var upiLocalPart = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,40}$`)

// looksLikePersonName applies the person-name heuristic: a short run of
// alphabetic words, or a UPI identifier local part.
func looksLikePersonName(name string) bool {
	if name == "" {
		return false
	}

	words := strings.Fields(name)
	if len(words) >= 1 && len(words) <= 3 {
		allAlpha := true
		for _, word := range words {
			for _, r := range word {
				if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
					allAlpha = false
					break
				}
			}
		}
		if allAlpha {
			return true
		}
	}

	return len(words) == 1 && upiLocalPart.MatchString(strings.ToLower(name))
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}

// Package heuristic implements the zero-cost, rule-based first-pass parser
// for notification text. It is pure: no network, no storage, no side effects.
package heuristic

import (
	"regexp"
	"strings"

	"github.com/finchlabs/finch/internal/model"

	"github.com/shopspring/decimal"
)

// Confidence scoring. The scheme is additive from a base, clamped to 1.0.
const (
	baseConfidence      = 0.5
	amountBonus         = 0.15
	directionBonus      = 0.15
	referenceBonus      = 0.10
	merchantBonus       = 0.05
	instrumentBonus     = 0.05
	noAmountCap         = 0.3
	noDirectionCap      = 0.4
	nonTransactionScore = 0.95
)

// Extractor runs a fixed, ordered set of regex and keyword checks over
// redacted notification text.
type Extractor struct {
	nonTransaction []*regexp.Regexp
	amount         *regexp.Regexp
	reference      *regexp.Regexp
	upiHandle      *regexp.Regexp
	debitMerchant  *regexp.Regexp
	creditPayee    *regexp.Regexp
}

// NewExtractor compiles the extraction patterns once.
func NewExtractor() *Extractor {
	return &Extractor{
		nonTransaction: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\botp\b`),
			regexp.MustCompile(`(?i)one[\s-]?time\s+password`),
			regexp.MustCompile(`(?i)verification\s+code`),
			regexp.MustCompile(`(?i)do\s+not\s+share`),
			regexp.MustCompile(`(?i)login\s+(?:alert|attempt|detected)`),
			regexp.MustCompile(`(?i)signed?\s*-?\s*in\s+(?:alert|from)`),
			regexp.MustCompile(`(?i)\bkyc\b`),
			regexp.MustCompile(`(?i)balance\s+(?:enquiry|inquiry|check)`),
			regexp.MustCompile(`(?i)available\s+balance\s+in\s+your`),
			regexp.MustCompile(`(?i)(?:special|exclusive|limited)\s+offer`),
			regexp.MustCompile(`(?i)offer\s+(?:ends|expires|valid)`),
			regexp.MustCompile(`(?i)congratulations!?\s+you(?:'ve| have)?\s+won`),
			regexp.MustCompile(`(?i)\brecharge\s+now\b`),
			regexp.MustCompile(`(?i)\bapply\s+now\b`),
		},
		amount:        regexp.MustCompile(`(?i)(?:₹|rs\.?|inr)\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`),
		reference:     regexp.MustCompile(`(?i)\bref(?:erence)?\s*(?:no\.?|id|number)?\s*[:#.]?\s*([A-Za-z0-9]{6,22})`),
		upiHandle:     regexp.MustCompile(`(?i)\b([a-z0-9][a-z0-9._-]{1,40})@[a-z][a-z0-9]+\b`),
		debitMerchant: regexp.MustCompile(`(?i)\b(?:to|at|for)\s+([A-Za-z][A-Za-z0-9&.'\- ]{1,40}?)(?:\s+(?:on|via|using|ref|upi|from|txn)\b|[.,;:\n]|$)`),
		creditPayee:   regexp.MustCompile(`(?i)\bfrom\s+([A-Za-z][A-Za-z0-9&.'\- ]{1,40}?)(?:\s+(?:on|via|using|ref|upi|to|txn)\b|[.,;:\n]|$)`),
	}
}

// Ordered keyword sets for direction detection. Debit patterns take priority
// on ambiguous text.
var (
	debitKeywords = []string{
		"debited", "debit", "spent", "paid", "payment of", "sent",
		"withdrawn", "withdrawal", "purchase", "deducted", "charged",
	}
	creditKeywords = []string{
		"credited", "credit", "received", "deposited", "refunded",
		"cashback of", "added to your",
	}
)

var bankHints = []string{
	"HDFC", "ICICI", "SBI", "Axis", "Kotak", "PNB", "Canara", "Yes Bank",
	"IDFC", "IndusInd", "Bank of Baroda", "Union Bank", "Federal",
}

var appHints = []string{
	"Google Pay", "GPay", "PhonePe", "Paytm", "Amazon Pay", "BHIM",
	"CRED", "WhatsApp Pay", "Mobikwik", "Freecharge",
}

// Words trimmed off the tail of a captured merchant name.
var merchantStopSuffixes = []string{
	"order", "payment", "purchase", "bill", "txn", "transaction", "a/c", "account",
}

// Extract runs the full check sequence over the text and returns the parse
// plus an additive confidence score. It never fails: malformed input
// degrades to a low-confidence non-transaction.
func (e *Extractor) Extract(text string) model.ParsedTransaction {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return model.ParsedTransaction{
			IsTransaction: false,
			Confidence:    nonTransactionScore,
			Reason:        "empty text",
		}
	}

	// 1. Non-transaction detection short-circuits everything else.
	for _, pattern := range e.nonTransaction {
		if pattern.MatchString(trimmed) {
			return model.ParsedTransaction{
				IsTransaction: false,
				Confidence:    nonTransactionScore,
				Reason:        "matched non-transaction pattern: " + pattern.String(),
			}
		}
	}

	result := model.ParsedTransaction{IsTransaction: true}
	confidence := baseConfidence

	// 2. Amount: first matching currency-amount pattern wins.
	hasAmount := false
	if match := e.amount.FindStringSubmatch(trimmed); match != nil {
		raw := strings.ReplaceAll(match[1], ",", "")
		if amount, err := decimal.NewFromString(raw); err == nil && amount.IsPositive() {
			result.Amount = amount
			result.Currency = "INR"
			hasAmount = true
			confidence += amountBonus
		}
	}

	// 3. Direction: debit keywords checked before credit keywords.
	lower := strings.ToLower(trimmed)
	hasDirection := false
	for _, kw := range debitKeywords {
		if strings.Contains(lower, kw) {
			result.Direction = model.DirectionDebit
			hasDirection = true
			break
		}
	}
	if !hasDirection {
		for _, kw := range creditKeywords {
			if strings.Contains(lower, kw) {
				result.Direction = model.DirectionCredit
				hasDirection = true
				break
			}
		}
	}
	if hasDirection {
		confidence += directionBonus
	}

	// 4. Reference id, instrument, bank and app hints, each optional.
	if match := e.reference.FindStringSubmatch(trimmed); match != nil {
		result.ReferenceID = match[1]
		confidence += referenceBonus
	}

	if instrument, ok := detectInstrument(lower); ok {
		result.Instrument = instrument
		confidence += instrumentBonus
	}

	for _, bank := range bankHints {
		if strings.Contains(lower, strings.ToLower(bank)) {
			result.BankHint = bank
			break
		}
	}
	for _, app := range appHints {
		if strings.Contains(lower, strings.ToLower(app)) {
			result.AppHint = app
			break
		}
	}

	// 5. Merchant/payee capture, direction-dependent, with a UPI-handle
	// local-part fallback.
	name := e.extractCounterparty(trimmed, result.Direction)
	if name != "" {
		if result.Direction == model.DirectionCredit {
			result.Payee = name
		} else {
			result.Merchant = name
		}
		confidence += merchantBonus
	}

	// 6. Caps apply after the additive pass so monotonicity holds within
	// each cap regime.
	switch {
	case !hasAmount:
		result.IsTransaction = false
		result.Reason = "no amount found"
		if confidence > noAmountCap {
			confidence = noAmountCap
		}
	case !hasDirection:
		if confidence > noDirectionCap {
			confidence = noDirectionCap
		}
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	result.Confidence = confidence
	return result
}

func (e *Extractor) extractCounterparty(text string, direction model.Direction) string {
	var pattern *regexp.Regexp
	if direction == model.DirectionCredit {
		pattern = e.creditPayee
	} else {
		pattern = e.debitMerchant
	}

	if match := pattern.FindStringSubmatch(text); match != nil {
		if name := cleanCounterparty(match[1]); name != "" {
			return name
		}
	}

	// Fall back to the payment identifier's local part.
	if match := e.upiHandle.FindStringSubmatch(text); match != nil {
		return match[1]
	}
	return ""
}

func cleanCounterparty(raw string) string {
	name := strings.TrimSpace(raw)
	for changed := true; changed; {
		changed = false
		for _, suffix := range merchantStopSuffixes {
			lower := strings.ToLower(name)
			if strings.HasSuffix(lower, " "+suffix) {
				name = strings.TrimSpace(name[:len(name)-len(suffix)-1])
				changed = true
			}
		}
	}
	// A bare article or single letter is noise, not a name.
	if len(name) < 2 {
		return ""
	}
	return name
}

func detectInstrument(lower string) (model.Instrument, bool) {
	switch {
	case strings.Contains(lower, "upi") || strings.Contains(lower, "vpa"):
		return model.InstrumentUPI, true
	case strings.Contains(lower, "neft"):
		return model.InstrumentNEFT, true
	case strings.Contains(lower, "imps"):
		return model.InstrumentIMPS, true
	case strings.Contains(lower, "card"):
		return model.InstrumentCard, true
	case strings.Contains(lower, "wallet"):
		return model.InstrumentWallet, true
	}
	return "", false
}

package provider

import (
	"fmt"
	"strings"

	"github.com/finchlabs/finch/internal/model"

	"github.com/shopspring/decimal"
)

const parseSystemPrompt = "You are a financial notification parser. " +
	"Respond only with a JSON object in the exact shape requested, no prose."

const categorizeSystemPrompt = "You are a financial transaction categorizer. " +
	"Respond only with a JSON object in the exact shape requested, no prose."

func buildParsePrompt(text string, pctx ParseContext) string {
	var sb strings.Builder

	sb.WriteString("Parse this payment notification into a structured transaction.\n\n")
	sb.WriteString("Notification text:\n")
	sb.WriteString(text)
	sb.WriteString("\n\n")

	if pctx.AppSource != "" {
		fmt.Fprintf(&sb, "Source app: %s\n", pctx.AppSource)
	}
	if !pctx.PostedAt.IsZero() {
		fmt.Fprintf(&sb, "Posted at: %s\n", pctx.PostedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	if pctx.Locale != "" {
		fmt.Fprintf(&sb, "Locale: %s\n", pctx.Locale)
	}

	sb.WriteString(`
Respond with JSON only:
{
  "isTransaction": true|false,
  "amount": "500.00",
  "currency": "INR",
  "direction": "DEBIT"|"CREDIT",
  "merchant": "...",
  "payee": "...",
  "instrument": "UPI"|"CARD"|"NEFT"|"IMPS"|"WALLET",
  "bankHint": "...",
  "appHint": "...",
  "referenceId": "...",
  "confidence": 0.0-1.0,
  "reason": "only when isTransaction is false"
}
Omit fields you cannot determine. OTPs, login alerts, offers, and balance
checks are not transactions.`)

	return sb.String()
}

func buildCategorizePrompt(merchant, payee string, amount decimal.Decimal, direction model.Direction) string {
	var sb strings.Builder

	sb.WriteString("Categorize this financial transaction.\n\n")
	if merchant != "" {
		fmt.Fprintf(&sb, "Merchant: %s\n", merchant)
	}
	if payee != "" {
		fmt.Fprintf(&sb, "Payee: %s\n", payee)
	}
	fmt.Fprintf(&sb, "Amount: %s\nDirection: %s\n\n", amount.String(), direction)

	sb.WriteString("Valid categories:\n")
	for _, category := range model.AllCategories() {
		fmt.Fprintf(&sb, "- %s\n", category)
	}

	sb.WriteString("\nRespond with JSON only: {\"category\": \"...\", \"confidence\": 0.0-1.0}")

	return sb.String()
}

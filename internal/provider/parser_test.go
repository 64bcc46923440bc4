package provider

import (
	"testing"

	"github.com/finchlabs/finch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		check   func(t *testing.T, parsed model.ParsedTransaction)
	}{
		{
			name: "full transaction",
			input: `{
				"isTransaction": true,
				"amount": "499.50",
				"currency": "INR",
				"direction": "DEBIT",
				"merchant": "Swiggy",
				"instrument": "UPI",
				"referenceId": "123456789012",
				"confidence": 0.93
			}`,
			check: func(t *testing.T, parsed model.ParsedTransaction) {
				assert.True(t, parsed.IsTransaction)
				assert.Equal(t, "499.5", parsed.Amount.String())
				assert.Equal(t, model.DirectionDebit, parsed.Direction)
				assert.Equal(t, model.InstrumentUPI, parsed.Instrument)
				assert.Equal(t, "Swiggy", parsed.Merchant)
				assert.InDelta(t, 0.93, parsed.Confidence, 0.0001)
			},
		},
		{
			name:  "markdown fenced JSON",
			input: "```json\n{\"isTransaction\": false, \"reason\": \"otp\", \"confidence\": 0.98}\n```",
			check: func(t *testing.T, parsed model.ParsedTransaction) {
				assert.False(t, parsed.IsTransaction)
				assert.Equal(t, "otp", parsed.Reason)
			},
		},
		{
			name:  "lowercase direction and instrument",
			input: `{"isTransaction": true, "amount": "10", "direction": "credit", "instrument": "imps", "confidence": 0.8}`,
			check: func(t *testing.T, parsed model.ParsedTransaction) {
				assert.Equal(t, model.DirectionCredit, parsed.Direction)
				assert.Equal(t, model.InstrumentIMPS, parsed.Instrument)
			},
		},
		{
			name:  "confidence above one is clamped",
			input: `{"isTransaction": true, "amount": "10", "confidence": 1.7}`,
			check: func(t *testing.T, parsed model.ParsedTransaction) {
				assert.InDelta(t, 1.0, parsed.Confidence, 0.0001)
			},
		},
		{
			name:  "negative confidence is clamped",
			input: `{"isTransaction": false, "confidence": -0.2}`,
			check: func(t *testing.T, parsed model.ParsedTransaction) {
				assert.InDelta(t, 0.0, parsed.Confidence, 0.0001)
			},
		},
		{
			name:    "invalid amount",
			input:   `{"isTransaction": true, "amount": "five hundred", "confidence": 0.9}`,
			wantErr: true,
		},
		{
			name:    "not JSON",
			input:   "Sure! Here's the parse you asked for.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := decodeParsePayload(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, parsed)
		})
	}
}

func TestDecodeCategoryPayload(t *testing.T) {
	result, err := decodeCategoryPayload(`{"category": "food_dining", "confidence": 0.75}`)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryFoodDining, result.Category)
	assert.InDelta(t, 0.75, result.Confidence, 0.0001)

	_, err = decodeCategoryPayload(`{"category": "SNACKS", "confidence": 0.75}`)
	require.Error(t, err, "categories outside the taxonomy are rejected")

	_, err = decodeCategoryPayload("not json")
	require.Error(t, err)
}

func TestCleanMarkdownWrapper(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}  ", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanMarkdownWrapper(tt.input))
		})
	}
}

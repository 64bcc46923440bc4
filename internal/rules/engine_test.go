package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/finchlabs/finch/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCategorizer records whether the fallback was consulted.
type stubCategorizer struct {
	category   model.Category
	confidence float64
	err        error
	called     bool
}

func (s *stubCategorizer) Categorize(_ context.Context, _, _ string, _ decimal.Decimal, _ model.Direction) (model.Category, float64, error) {
	s.called = true
	return s.category, s.confidence, s.err
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(Config{}, nil)
	require.NoError(t, err)
	return engine
}

func debitParse(merchant string, amount int64) model.ParsedTransaction {
	return model.ParsedTransaction{
		IsTransaction: true,
		Merchant:      merchant,
		Amount:        decimal.NewFromInt(amount),
		Direction:     model.DirectionDebit,
	}
}

func creditParse(payee string, amount int64) model.ParsedTransaction {
	return model.ParsedTransaction{
		IsTransaction: true,
		Payee:         payee,
		Amount:        decimal.NewFromInt(amount),
		Direction:     model.DirectionCredit,
	}
}

func TestCategorizeDebitKeywords(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		merchant string
		want     model.Category
	}{
		{"Swiggy", model.CategoryFoodDining},
		{"ZOMATO ONLINE", model.CategoryFoodDining},
		{"BigBasket", model.CategoryGroceries},
		{"Uber India", model.CategoryTransport},
		{"Amazon Retail", model.CategoryShopping},
		{"BookMyShow", model.CategoryEntertainment},
		{"Netflix", model.CategorySubscription},
		{"Apollo Pharmacy", model.CategoryHealth},
		{"Airtel Prepaid", model.CategoryUtilities},
	}

	for _, tt := range tests {
		t.Run(tt.merchant, func(t *testing.T) {
			fallback := &stubCategorizer{}
			result := engine.Categorize(context.Background(), debitParse(tt.merchant, 500), fallback)

			assert.Equal(t, tt.want, result.Category)
			assert.Equal(t, model.CategorySourceRule, result.Source)
			assert.InDelta(t, 0.8, result.Confidence, 0.0001)
			assert.False(t, fallback.called, "keyword match must not consult the fallback")
		})
	}
}

func TestCategorizeDebitPersonName(t *testing.T) {
	engine := newTestEngine(t)
	fallback := &stubCategorizer{}

	result := engine.Categorize(context.Background(), debitParse("Ramesh Kumar", 1200), fallback)

	assert.Equal(t, model.CategoryTransfer, result.Category)
	assert.InDelta(t, 0.5, result.Confidence, 0.0001)
	assert.False(t, fallback.called)
}

func TestCategorizeDebitUPIHandle(t *testing.T) {
	engine := newTestEngine(t)

	result := engine.Categorize(context.Background(), debitParse("ramesh.k1", 300), nil)

	assert.Equal(t, model.CategoryTransfer, result.Category)
}

func TestCategorizeDebitFallback(t *testing.T) {
	engine := newTestEngine(t)
	fallback := &stubCategorizer{category: model.CategorySubscription, confidence: 0.7}

	result := engine.Categorize(context.Background(), debitParse("XY12 Unknown Store 99", 300), fallback)

	assert.True(t, fallback.called)
	assert.Equal(t, model.CategorySubscription, result.Category)
	assert.Equal(t, model.CategorySourceLLM, result.Source)
	assert.InDelta(t, 0.7, result.Confidence, 0.0001)
}

func TestCategorizeDebitFallbackErrorDegradesToOther(t *testing.T) {
	engine := newTestEngine(t)
	fallback := &stubCategorizer{err: errors.New("provider down")}

	result := engine.Categorize(context.Background(), debitParse("XY12 Unknown Store 99", 300), fallback)

	assert.True(t, fallback.called)
	assert.Equal(t, model.CategoryOther, result.Category)
	assert.Equal(t, model.CategorySourceRule, result.Source)
	assert.InDelta(t, 0.3, result.Confidence, 0.0001)
}

func TestCategorizeDebitNilFallback(t *testing.T) {
	engine := newTestEngine(t)

	result := engine.Categorize(context.Background(), debitParse("XY12 Unknown Store 99", 300), nil)

	assert.Equal(t, model.CategoryOther, result.Category)
	assert.InDelta(t, 0.3, result.Confidence, 0.0001)
}

func TestCategorizeDebitInvalidFallbackCategory(t *testing.T) {
	engine := newTestEngine(t)
	fallback := &stubCategorizer{category: "BOGUS", confidence: 0.9}

	result := engine.Categorize(context.Background(), debitParse("XY12 Unknown Store 99", 300), fallback)

	assert.Equal(t, model.CategoryOther, result.Category)
}

func TestCategorizeCredit(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name       string
		payee      string
		amount     int64
		want       model.Category
		confidence float64
	}{
		{"refund", "Amazon Refund", 750, model.CategoryRefund, 0.8},
		{"cashback", "CRED cashback", 50, model.CategoryCashback, 0.8},
		{"high value credit is salary", "Acme Corp", 80000, model.CategorySalary, 0.6},
		{"exact threshold is salary", "Acme Corp", 50000, model.CategorySalary, 0.6},
		{"high value beats refund keyword", "Acme Corp Refund", 60000, model.CategorySalary, 0.6},
		{"small credit is transfer", "Ramesh Kumar", 500, model.CategoryTransfer, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallback := &stubCategorizer{}
			result := engine.Categorize(context.Background(), creditParse(tt.payee, tt.amount), fallback)

			assert.Equal(t, tt.want, result.Category)
			assert.InDelta(t, tt.confidence, result.Confidence, 0.0001)
			assert.False(t, fallback.called, "credits never consult the fallback")
		})
	}
}

func TestLooksLikePersonName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"two alpha words", "Ramesh Kumar", true},
		{"three alpha words", "Anita Rao Sharma", true},
		{"single alpha word", "Priya", true},
		{"upi local part", "ramesh.k1", true},
		{"digits in words", "Store 99", false},
		{"four words", "A Very Long Business Name", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, looksLikePersonName(tt.in))
		})
	}
}

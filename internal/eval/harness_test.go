package eval

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/finchlabs/finch/internal/engine"
	"github.com/finchlabs/finch/internal/model"
	"github.com/finchlabs/finch/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedParser returns a canned result for every event.
type fixedParser struct {
	result model.ParsedTransaction
}

func (f *fixedParser) ProcessEvent(_ context.Context, _ *model.Event) (engine.Outcome, error) {
	return engine.Outcome{
		Status:     model.StatusParsed,
		Provenance: "heuristic",
		Result:     f.result,
	}, nil
}

func amountPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func labeledItem(id, text string, expected Expectation) LabeledItem {
	return LabeledItem{
		ID:        id,
		Text:      text,
		AppSource: "com.bank.app",
		PostedAt:  time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		Expected:  expected,
	}
}

func TestHarnessPassAndFail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	parser := &fixedParser{result: model.ParsedTransaction{
		IsTransaction: true,
		Amount:        decimal.RequireFromString("500"),
		Direction:     model.DirectionDebit,
		Instrument:    model.InstrumentUPI,
		Merchant:      "Swiggy Bangalore",
		Confidence:    0.9,
	}}
	harness := NewHarness(db.Storage, parser, nil)

	items := []LabeledItem{
		labeledItem("ok", "Rs.500 debited for Swiggy", Expectation{
			IsTransaction: true,
			Amount:        amountPtr("500"),
			Direction:     "DEBIT",
			Merchant:      "swiggy",
			Instrument:    "UPI",
		}),
		labeledItem("wrong-direction", "Rs.500 debited for Swiggy", Expectation{
			IsTransaction: true,
			Direction:     "CREDIT",
		}),
	}

	report, err := harness.Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 1, report.Failed)

	require.Len(t, report.Items, 2)
	assert.True(t, report.Items[0].Passed)
	assert.False(t, report.Items[1].Passed)
	assert.NotEmpty(t, report.Items[1].Mismatches)
}

func TestAmountToleranceIsOnePercent(t *testing.T) {
	assert.True(t, amountWithinTolerance(decimal.RequireFromString("100"), decimal.RequireFromString("100.99")))
	assert.True(t, amountWithinTolerance(decimal.RequireFromString("100"), decimal.RequireFromString("99.01")))
	assert.False(t, amountWithinTolerance(decimal.RequireFromString("100"), decimal.RequireFromString("101.5")))
	assert.True(t, amountWithinTolerance(decimal.Zero, decimal.Zero))
	assert.False(t, amountWithinTolerance(decimal.Zero, decimal.RequireFromString("1")))
}

func TestMerchantMatchIsCaseInsensitiveSubstring(t *testing.T) {
	actual := model.ParsedTransaction{Merchant: "Swiggy Bangalore"}
	assert.True(t, merchantMatches("swiggy", actual))
	assert.True(t, merchantMatches("SWIGGY BANGALORE LTD", actual), "containment in either direction counts")
	assert.False(t, merchantMatches("zomato", actual))

	byPayee := model.ParsedTransaction{Payee: "Ramesh Kumar"}
	assert.True(t, merchantMatches("ramesh", byPayee))
}

func TestCompareSkipsOptionalFields(t *testing.T) {
	actual := model.ParsedTransaction{
		IsTransaction: true,
		Amount:        decimal.RequireFromString("250"),
		Direction:     model.DirectionCredit,
	}

	mismatches := compare(Expectation{IsTransaction: true}, actual)
	assert.Empty(t, mismatches, "unspecified fields are not checked")

	mismatches = compare(Expectation{IsTransaction: false}, model.ParsedTransaction{IsTransaction: false})
	assert.Empty(t, mismatches)
}

func TestLoadLabeledSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "set.json")

	items := []LabeledItem{
		labeledItem("a", "Rs.500 debited", Expectation{IsTransaction: true, Amount: amountPtr("500")}),
	}
	data, err := json.Marshal(items)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := LoadLabeledSet(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "a", loaded[0].ID)
	assert.True(t, loaded[0].Expected.Amount.Equal(decimal.RequireFromString("500")))

	_, err = LoadLabeledSet(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

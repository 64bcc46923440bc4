package storage

import (
	"context"
	"testing"
	"time"

	"github.com/finchlabs/finch/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cacheEntry(fingerprint, provenance string) *model.CachedParseResult {
	return &model.CachedParseResult{
		Fingerprint: fingerprint,
		Provenance:  provenance,
		Result: model.ParsedTransaction{
			IsTransaction: true,
			Amount:        decimal.RequireFromString("499.50"),
			Currency:      "INR",
			Direction:     model.DirectionDebit,
			Merchant:      "Swiggy",
			Confidence:    0.92,
		},
	}
}

func TestCachedParseRoundTrip(t *testing.T) {
	store := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertCachedParse(ctx, cacheEntry("fp-1", "heuristic")))

	got, err := store.GetCachedParse(ctx, "fp-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "heuristic", got.Provenance)
	assert.Equal(t, int64(0), got.HitCount)
	assert.True(t, got.Result.IsTransaction)
	assert.True(t, got.Result.Amount.Equal(decimal.RequireFromString("499.50")))
	assert.Equal(t, "Swiggy", got.Result.Merchant)
}

func TestCachedParseMiss(t *testing.T) {
	store := setupStorage(t)

	got, err := store.GetCachedParse(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpsertCachedParseBumpsHitCount(t *testing.T) {
	store := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertCachedParse(ctx, cacheEntry("fp-1", "heuristic")))
	require.NoError(t, store.UpsertCachedParse(ctx, cacheEntry("fp-1", "heuristic")))

	got, err := store.GetCachedParse(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.HitCount, "re-upsert counts as a hit")
}

func TestTouchCachedParse(t *testing.T) {
	store := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertCachedParse(ctx, cacheEntry("fp-1", "anthropic")))
	require.NoError(t, store.TouchCachedParse(ctx, "fp-1"))
	require.NoError(t, store.TouchCachedParse(ctx, "fp-1"))

	got, err := store.GetCachedParse(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.HitCount)
}

func TestDeleteCachedParse(t *testing.T) {
	store := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertCachedParse(ctx, cacheEntry("fp-1", "heuristic")))
	require.NoError(t, store.DeleteCachedParse(ctx, "fp-1"))

	got, err := store.GetCachedParse(ctx, "fp-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCleanupCachedParses(t *testing.T) {
	store := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertCachedParse(ctx, cacheEntry("fp-fresh", "heuristic")))
	require.NoError(t, store.UpsertCachedParse(ctx, cacheEntry("fp-stale", "heuristic")))

	// Age one entry behind the threshold.
	_, err := store.db.ExecContext(ctx,
		`UPDATE parse_cache SET last_hit_at = ? WHERE fingerprint = ?`,
		time.Now().UTC().AddDate(0, 0, -45), "fp-stale")
	require.NoError(t, err)

	removed, err := store.CleanupCachedParses(ctx, time.Now().UTC().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	got, err := store.GetCachedParse(ctx, "fp-fresh")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

// Package cache implements the two-tier, content-addressed parse result
// cache: a fast in-memory tier backed by a durable store tier.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/finchlabs/finch/internal/model"
)

// DurableStore is the durable-tier contract, satisfied by storage.SQLiteStorage.
type DurableStore interface {
	GetCachedParse(ctx context.Context, fingerprint string) (*model.CachedParseResult, error)
	UpsertCachedParse(ctx context.Context, entry *model.CachedParseResult) error
	TouchCachedParse(ctx context.Context, fingerprint string) error
	DeleteCachedParse(ctx context.Context, fingerprint string) error
	CleanupCachedParses(ctx context.Context, olderThan time.Time) (int64, error)
}

// backfillTTL bounds how long a durable hit stays in the fast tier before
// the durable tier is consulted again.
const backfillTTL = 24 * time.Hour

// ParseCache is the two-tier cache keyed by text fingerprint.
type ParseCache struct {
	fast   *fastTier
	store  DurableStore
	logger *slog.Logger
}

// New creates a parse cache over the given durable store.
func New(store DurableStore, logger *slog.Logger) *ParseCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParseCache{
		fast:   newFastTier(backfillTTL),
		store:  store,
		logger: logger,
	}
}

// Get checks the fast tier, then the durable tier. A durable hit bumps the
// entry's hit bookkeeping and backfills the fast tier.
func (c *ParseCache) Get(ctx context.Context, fingerprint string) (*model.CachedParseResult, bool, error) {
	if entry, found := c.fast.get(fingerprint); found {
		return entry, true, nil
	}

	entry, err := c.store.GetCachedParse(ctx, fingerprint)
	if err != nil {
		return nil, false, fmt.Errorf("durable cache lookup failed: %w", err)
	}
	if entry == nil {
		return nil, false, nil
	}

	if err := c.store.TouchCachedParse(ctx, fingerprint); err != nil {
		// The result is still valid; only the hit bookkeeping is behind.
		c.logger.Warn("failed to bump cache hit count",
			"fingerprint", fingerprint,
			"error", err)
	}

	c.fast.set(fingerprint, entry)
	return entry, true, nil
}

// Set writes through to both tiers.
func (c *ParseCache) Set(ctx context.Context, fingerprint string, result model.ParsedTransaction, provenance string) error {
	entry := &model.CachedParseResult{
		Fingerprint: fingerprint,
		Result:      result,
		Provenance:  provenance,
		LastHitAt:   time.Now().UTC(),
		CreatedAt:   time.Now().UTC(),
	}

	if err := c.store.UpsertCachedParse(ctx, entry); err != nil {
		return fmt.Errorf("durable cache write failed: %w", err)
	}

	c.fast.set(fingerprint, entry)
	return nil
}

// Invalidate removes an entry from both tiers.
func (c *ParseCache) Invalidate(ctx context.Context, fingerprint string) error {
	c.fast.delete(fingerprint)
	if err := c.store.DeleteCachedParse(ctx, fingerprint); err != nil {
		return fmt.Errorf("durable cache delete failed: %w", err)
	}
	return nil
}

// Cleanup deletes durable entries unused for more than maxAgeDays. The fast
// tier expires on its own TTL.
func (c *ParseCache) Cleanup(ctx context.Context, maxAgeDays int) (int64, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	threshold := time.Now().UTC().AddDate(0, 0, -maxAgeDays)

	removed, err := c.store.CleanupCachedParses(ctx, threshold)
	if err != nil {
		return 0, fmt.Errorf("cache cleanup failed: %w", err)
	}

	if removed > 0 {
		c.logger.Info("cleaned up stale cache entries",
			"removed", removed,
			"max_age_days", maxAgeDays)
	}
	return removed, nil
}

// Close stops the fast tier's cleanup goroutine.
func (c *ParseCache) Close() {
	c.fast.close()
}

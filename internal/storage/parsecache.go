package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/finchlabs/finch/internal/model"
)

// GetCachedParse retrieves a durable cache entry by fingerprint. Returns
// nil when no entry exists; the caller decides whether to bump hit counts.
func (s *SQLiteStorage) GetCachedParse(ctx context.Context, fingerprint string) (*model.CachedParseResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return nil, err
	}

	var entry model.CachedParseResult
	var resultJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, result_json, provenance, hit_count, last_hit_at, created_at
		FROM parse_cache WHERE fingerprint = ?
	`, fingerprint).Scan(
		&entry.Fingerprint,
		&resultJSON,
		&entry.Provenance,
		&entry.HitCount,
		&entry.LastHitAt,
		&entry.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached parse: %w", err)
	}

	if err := json.Unmarshal([]byte(resultJSON), &entry.Result); err != nil {
		return nil, fmt.Errorf("corrupt cached parse for %s: %w", fingerprint, err)
	}
	return &entry, nil
}

// UpsertCachedParse writes a cache entry, incrementing the hit count when
// the fingerprint already exists. Entries are content-addressed: the result
// for a given fingerprint never changes, only its bookkeeping does.
func (s *SQLiteStorage) UpsertCachedParse(ctx context.Context, entry *model.CachedParseResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("%w: cache entry", ErrNilEntity)
	}
	if err := validateString(entry.Fingerprint, "fingerprint"); err != nil {
		return err
	}
	if err := validateString(entry.Provenance, "provenance"); err != nil {
		return err
	}

	resultJSON, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal parse result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO parse_cache (fingerprint, result_json, provenance, hit_count, last_hit_at)
		VALUES (?, ?, ?, 0, CURRENT_TIMESTAMP)
		ON CONFLICT(fingerprint) DO UPDATE SET
			hit_count = hit_count + 1,
			last_hit_at = CURRENT_TIMESTAMP
	`, entry.Fingerprint, string(resultJSON), entry.Provenance)
	if err != nil {
		return fmt.Errorf("failed to upsert cached parse: %w", err)
	}
	return nil
}

// TouchCachedParse bumps the hit count and last-hit timestamp of an entry.
func (s *SQLiteStorage) TouchCachedParse(ctx context.Context, fingerprint string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE parse_cache SET hit_count = hit_count + 1, last_hit_at = CURRENT_TIMESTAMP
		WHERE fingerprint = ?
	`, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to touch cached parse: %w", err)
	}
	return nil
}

// DeleteCachedParse removes a cache entry.
func (s *SQLiteStorage) DeleteCachedParse(ctx context.Context, fingerprint string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM parse_cache WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to delete cached parse: %w", err)
	}
	return nil
}

// CleanupCachedParses deletes entries whose last hit is older than the
// threshold. Returns the number of entries removed.
func (s *SQLiteStorage) CleanupCachedParses(ctx context.Context, olderThan time.Time) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM parse_cache WHERE last_hit_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up parse cache: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check cleanup result: %w", err)
	}
	return removed, nil
}

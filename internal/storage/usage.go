package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/finchlabs/finch/internal/model"

	"github.com/shopspring/decimal"
)

// SaveProviderUsage appends one audit record for a billable provider call.
func (s *SQLiteStorage) SaveProviderUsage(ctx context.Context, record *model.UsageRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("%w: usage record", ErrNilEntity)
	}
	if err := validateString(record.ID, "record.ID"); err != nil {
		return err
	}
	if err := validateString(record.Provider, "record.Provider"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_usage (id, provider, model, user_id, input_tokens, output_tokens, cost)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.Provider,
		record.Model,
		record.UserID,
		record.InputTokens,
		record.OutputTokens,
		record.Cost.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save provider usage: %w", err)
	}
	return nil
}

// GetProviderUsageSince returns audit records created at or after the given
// time, oldest first.
func (s *SQLiteStorage) GetProviderUsageSince(ctx context.Context, since time.Time) ([]model.UsageRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider, model, user_id, input_tokens, output_tokens, cost, created_at
		FROM provider_usage WHERE created_at >= ? ORDER BY created_at
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query provider usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.UsageRecord
	for rows.Next() {
		var record model.UsageRecord
		var cost string
		if scanErr := rows.Scan(
			&record.ID,
			&record.Provider,
			&record.Model,
			&record.UserID,
			&record.InputTokens,
			&record.OutputTokens,
			&cost,
			&record.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", scanErr)
		}

		parsed, parseErr := decimal.NewFromString(cost)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid stored cost %q: %w", cost, parseErr)
		}
		record.Cost = parsed
		records = append(records, record)
	}
	return records, rows.Err()
}

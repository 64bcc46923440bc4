package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/finchlabs/finch/internal/common"
	"github.com/finchlabs/finch/internal/model"

	"github.com/shopspring/decimal"
)

// SaveTransaction persists a transaction. The event_id UNIQUE constraint
// enforces the one-transaction-per-event invariant at the schema level.
func (s *SQLiteStorage) SaveTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, event_id, user_id, amount, currency, direction, instrument,
			merchant, payee, bank_hint, reference_id, category,
			category_source, confidence, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		txn.ID,
		txn.EventID,
		txn.UserID,
		txn.Amount.String(),
		txn.Currency,
		string(txn.Direction),
		string(txn.Instrument),
		txn.Merchant,
		txn.Payee,
		txn.BankHint,
		txn.ReferenceID,
		string(txn.Category),
		string(txn.CategorySource),
		txn.Confidence,
		txn.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

// GetTransactionByEventID retrieves the transaction linked to an event.
func (s *SQLiteStorage) GetTransactionByEventID(ctx context.Context, eventID string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(eventID, "eventID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, transactionSelectColumns+` WHERE event_id = ?`, eventID)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction for event %s: %w", eventID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetTransactionsByUser returns a user's transactions, most recent first.
func (s *SQLiteStorage) GetTransactionsByUser(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	query := transactionSelectColumns + ` WHERE user_id = ? ORDER BY occurred_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", scanErr)
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

const transactionSelectColumns = `
	SELECT id, event_id, user_id, amount, currency, direction, instrument,
	       merchant, payee, bank_hint, reference_id, category,
	       category_source, confidence, occurred_at, created_at
	FROM transactions`

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var txn model.Transaction
	var amount, direction, instrument, category, categorySource string

	err := row.Scan(
		&txn.ID,
		&txn.EventID,
		&txn.UserID,
		&amount,
		&txn.Currency,
		&direction,
		&instrument,
		&txn.Merchant,
		&txn.Payee,
		&txn.BankHint,
		&txn.ReferenceID,
		&category,
		&categorySource,
		&txn.Confidence,
		&txn.OccurredAt,
		&txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}

	txn.Amount = parsed
	txn.Direction = model.Direction(direction)
	txn.Instrument = model.Instrument(instrument)
	txn.Category = model.Category(category)
	txn.CategorySource = model.CategorySource(categorySource)
	return &txn, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/finchlabs/finch/internal/model"
)

// Validation errors.
var (
	ErrNilContext = errors.New("context cannot be nil")
	ErrEmptyField = errors.New("field cannot be empty")
	ErrNilEntity  = errors.New("entity cannot be nil")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

func validateString(value, name string) error {
	if value == "" {
		return fmt.Errorf("%w: %s", ErrEmptyField, name)
	}
	return nil
}

func validateEvent(event *model.Event) error {
	if event == nil {
		return fmt.Errorf("%w: event", ErrNilEntity)
	}
	if event.ID == "" {
		return fmt.Errorf("%w: event.ID", ErrEmptyField)
	}
	if event.UserID == "" {
		return fmt.Errorf("%w: event.UserID", ErrEmptyField)
	}
	if event.TextRedacted == "" {
		return fmt.Errorf("%w: event.TextRedacted", ErrEmptyField)
	}
	if event.Fingerprint == "" {
		return fmt.Errorf("%w: event.Fingerprint", ErrEmptyField)
	}
	return nil
}

func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilEntity)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: transaction.ID", ErrEmptyField)
	}
	if txn.EventID == "" {
		return fmt.Errorf("%w: transaction.EventID", ErrEmptyField)
	}
	if txn.UserID == "" {
		return fmt.Errorf("%w: transaction.UserID", ErrEmptyField)
	}
	if txn.Direction != model.DirectionDebit && txn.Direction != model.DirectionCredit {
		return fmt.Errorf("invalid transaction direction: %q", txn.Direction)
	}
	if !txn.Category.Valid() {
		return fmt.Errorf("invalid transaction category: %q", txn.Category)
	}
	return nil
}

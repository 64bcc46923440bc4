// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/finchlabs/finch/internal/model"
)

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Event operations
	SaveEvent(ctx context.Context, event *model.Event) error
	GetEventByID(ctx context.Context, id string) (*model.Event, error)
	FindDuplicateEvent(ctx context.Context, userID, fingerprint string, postedAt time.Time, window time.Duration) (*model.Event, error)
	GetPendingEvents(ctx context.Context, userID string, limit int) ([]model.Event, error)
	UpdateEventStatus(ctx context.Context, id string, status model.ParseStatus, confidence float64, parseError string) error
	ResetFailedEvents(ctx context.Context, userID string) (int, error)
	CountEventsByUser(ctx context.Context, userID string) (int, error)

	// Transaction operations
	SaveTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransactionByEventID(ctx context.Context, eventID string) (*model.Transaction, error)
	GetTransactionsByUser(ctx context.Context, userID string, limit int) ([]model.Transaction, error)

	// Durable parse cache tier
	GetCachedParse(ctx context.Context, fingerprint string) (*model.CachedParseResult, error)
	UpsertCachedParse(ctx context.Context, entry *model.CachedParseResult) error
	TouchCachedParse(ctx context.Context, fingerprint string) error
	DeleteCachedParse(ctx context.Context, fingerprint string) error
	CleanupCachedParses(ctx context.Context, olderThan time.Time) (int64, error)

	// Provider usage audit
	SaveProviderUsage(ctx context.Context, record *model.UsageRecord) error
	GetProviderUsageSince(ctx context.Context, since time.Time) ([]model.UsageRecord, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Package testutil provides shared helpers for package tests: in-memory
// databases with migrations applied and seeded event fixtures.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/finchlabs/finch/internal/model"
	"github.com/finchlabs/finch/internal/service"
	"github.com/finchlabs/finch/internal/storage"
)

// TestDB wraps an in-memory migrated store for one test.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates an in-memory SQLite database with migrations applied
// and registers cleanup on the test.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})

	return &TestDB{Storage: store, t: t}
}

// SeedEvent persists a PENDING event with sensible defaults, returning it.
// Zero fields are filled in: ID, UserID, PostedAt, and the fingerprint.
func (db *TestDB) SeedEvent(event model.Event) *model.Event {
	db.t.Helper()

	if event.Fingerprint == "" {
		event.GenerateFingerprint()
	}
	if event.ID == "" {
		event.ID = "evt-" + event.Fingerprint[:12]
	}
	if event.UserID == "" {
		event.UserID = "user-1"
	}
	if event.PostedAt.IsZero() {
		event.PostedAt = time.Now().UTC()
	}
	if event.ParseStatus == "" {
		event.ParseStatus = model.StatusPending
	}

	if err := db.Storage.SaveEvent(context.Background(), &event); err != nil {
		db.t.Fatalf("failed to seed event: %v", err)
	}
	return &event
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/finchlabs/finch/internal/common"
	"github.com/finchlabs/finch/internal/model"
)

// SaveEvent persists a new event. Events are created in PENDING status by
// the ingestion gateway and never rewritten wholesale afterwards.
func (s *SQLiteStorage) SaveEvent(ctx context.Context, event *model.Event) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateEvent(event); err != nil {
		return err
	}

	if event.ParseStatus == "" {
		event.ParseStatus = model.StatusPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (
			id, user_id, device_id, app_source, posted_at, text_redacted,
			text_raw, fingerprint, locale, timezone, parse_status,
			parse_confidence, parse_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		event.UserID,
		event.DeviceID,
		event.AppSource,
		event.PostedAt.UTC(),
		event.TextRedacted,
		nullableString(event.TextRaw),
		event.Fingerprint,
		event.Locale,
		event.Timezone,
		string(event.ParseStatus),
		event.Confidence,
		event.ParseError,
	)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// GetEventByID retrieves a single event.
func (s *SQLiteStorage) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, eventSelectColumns+` WHERE id = ?`, id)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// FindDuplicateEvent looks for an event of the same user with the same
// fingerprint whose posted-at falls within the given window of postedAt.
// Returns nil when no duplicate exists.
func (s *SQLiteStorage) FindDuplicateEvent(ctx context.Context, userID, fingerprint string, postedAt time.Time, window time.Duration) (*model.Event, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return nil, err
	}

	lower := postedAt.Add(-window).UTC()
	upper := postedAt.Add(window).UTC()

	row := s.db.QueryRowContext(ctx, eventSelectColumns+`
		WHERE user_id = ? AND fingerprint = ? AND posted_at BETWEEN ? AND ?
		ORDER BY posted_at LIMIT 1
	`, userID, fingerprint, lower, upper)

	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicate event: %w", err)
	}
	return event, nil
}

// GetPendingEvents returns pending events oldest first. An empty userID
// matches all users. Limit <= 0 means no limit.
func (s *SQLiteStorage) GetPendingEvents(ctx context.Context, userID string, limit int) ([]model.Event, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := eventSelectColumns + ` WHERE parse_status = ?`
	args := []any{string(model.StatusPending)}

	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY posted_at`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.Event
	for rows.Next() {
		event, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan event: %w", scanErr)
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// UpdateEventStatus transitions an event to a new parse status, recording
// the confidence of the attempt and any error message.
func (s *SQLiteStorage) UpdateEventStatus(ctx context.Context, id string, status model.ParseStatus, confidence float64, parseError string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE events SET parse_status = ?, parse_confidence = ?, parse_error = ?
		WHERE id = ?
	`, string(status), confidence, parseError, id)
	if err != nil {
		return fmt.Errorf("failed to update event status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("event %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// ResetFailedEvents moves all FAILED events for a user back to PENDING and
// clears their error messages. Returns the number of events reset.
func (s *SQLiteStorage) ResetFailedEvents(ctx context.Context, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE events SET parse_status = ?, parse_error = ''
		WHERE user_id = ? AND parse_status = ?
	`, string(model.StatusPending), userID, string(model.StatusFailed))
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed events: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check reset result: %w", err)
	}
	return int(affected), nil
}

// CountEventsByUser returns the total number of events stored for a user.
func (s *SQLiteStorage) CountEventsByUser(ctx context.Context, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

const eventSelectColumns = `
	SELECT id, user_id, device_id, app_source, posted_at, text_redacted,
	       text_raw, fingerprint, locale, timezone, parse_status,
	       parse_confidence, parse_error, created_at
	FROM events`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var event model.Event
	var textRaw sql.NullString
	var status string

	err := row.Scan(
		&event.ID,
		&event.UserID,
		&event.DeviceID,
		&event.AppSource,
		&event.PostedAt,
		&event.TextRedacted,
		&textRaw,
		&event.Fingerprint,
		&event.Locale,
		&event.Timezone,
		&status,
		&event.Confidence,
		&event.ParseError,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.TextRaw = textRaw.String
	event.ParseStatus = model.ParseStatus(status)
	return &event, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

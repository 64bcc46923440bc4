// Package ingest implements the event ingestion gateway: per-item isolated
// batch intake with fingerprint deduplication, plus the fire-and-forget
// trigger that hands accepted events to the parsing pipeline.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/finchlabs/finch/internal/engine"
	"github.com/finchlabs/finch/internal/model"
	"github.com/finchlabs/finch/internal/service"

	"github.com/google/uuid"
)

// ItemStatus classifies one payload's ingestion outcome.
type ItemStatus string

// Per-item outcomes.
const (
	StatusAccepted  ItemStatus = "accepted"
	StatusDuplicate ItemStatus = "duplicate"
	StatusError     ItemStatus = "error"
)

// Payload is one inbound event from the mobile collaborator. Text arrives
// already redacted; TextRaw is present only when the user opted in.
type Payload struct {
	EventID      string    `json:"eventId"`
	DeviceID     string    `json:"deviceId"`
	AppSource    string    `json:"appSource"`
	PostedAt     time.Time `json:"postedAt"`
	TextRedacted string    `json:"textRedacted"`
	TextRaw      string    `json:"textRaw,omitempty"`
	Locale       string    `json:"locale"`
	Timezone     string    `json:"timezone"`
}

// ItemResult is the per-item outcome reported back to the caller.
type ItemResult struct {
	EventID string     `json:"eventId"`
	Status  ItemStatus `json:"status"`
	Error   string     `json:"error,omitempty"`
}

// BatchResult aggregates a batch's outcomes.
type BatchResult struct {
	Details    []ItemResult `json:"details"`
	Accepted   int          `json:"accepted"`
	Duplicates int          `json:"duplicates"`
	Errors     int          `json:"errors"`
}

// Pipeline is the orchestrator capability the gateway triggers, satisfied
// by engine.Orchestrator.
type Pipeline interface {
	ProcessPending(ctx context.Context, userID string, limit int) (engine.SweepStats, error)
	RetryFailed(ctx context.Context, userID string) (int, error)
}

// Config tunes ingestion behavior.
type Config struct {
	// DedupWindow is the posted-at window within which an identical text
	// for the same user counts as a re-delivered duplicate.
	DedupWindow time.Duration
	// TriggerLimit bounds how many pending events one ingestion triggers.
	TriggerLimit int
	// TriggerTimeout bounds the background processing run.
	TriggerTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DedupWindow == 0 {
		c.DedupWindow = time.Hour
	}
	if c.TriggerLimit == 0 {
		c.TriggerLimit = 25
	}
	if c.TriggerTimeout == 0 {
		c.TriggerTimeout = 2 * time.Minute
	}
	return c
}

// Gateway deduplicates and persists inbound events, then triggers the
// pipeline asynchronously.
type Gateway struct {
	storage  service.Storage
	pipeline Pipeline
	logger   *slog.Logger
	cfg      Config
	wg       sync.WaitGroup
}

// NewGateway creates a gateway. The pipeline may be nil, in which case
// ingestion persists events without triggering processing.
func NewGateway(cfg Config, storage service.Storage, pipeline Pipeline, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg:      cfg.withDefaults(),
		storage:  storage,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Ingest processes a batch of payloads for one user. Items are isolated: a
// persistence failure yields an error for that item only. Accepted events
// schedule background processing; its failures never affect the response.
func (g *Gateway) Ingest(ctx context.Context, userID string, payloads []Payload) BatchResult {
	result := BatchResult{Details: make([]ItemResult, 0, len(payloads))}

	for _, payload := range payloads {
		item := g.ingestOne(ctx, userID, payload)
		switch item.Status {
		case StatusAccepted:
			result.Accepted++
		case StatusDuplicate:
			result.Duplicates++
		case StatusError:
			result.Errors++
		}
		result.Details = append(result.Details, item)
	}

	if result.Accepted > 0 {
		g.triggerProcessing(userID)
	}

	return result
}

func (g *Gateway) ingestOne(ctx context.Context, userID string, payload Payload) ItemResult {
	eventID := payload.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	if payload.TextRedacted == "" {
		return ItemResult{EventID: eventID, Status: StatusError, Error: "textRedacted is required"}
	}

	postedAt := payload.PostedAt
	if postedAt.IsZero() {
		postedAt = time.Now().UTC()
	}

	fingerprint := model.Fingerprint(payload.TextRedacted)

	duplicate, err := g.storage.FindDuplicateEvent(ctx, userID, fingerprint, postedAt, g.cfg.DedupWindow)
	if err != nil {
		g.logger.Error("duplicate check failed", "event_id", eventID, "error", err)
		return ItemResult{EventID: eventID, Status: StatusError, Error: err.Error()}
	}
	if duplicate != nil {
		return ItemResult{EventID: eventID, Status: StatusDuplicate}
	}

	event := &model.Event{
		ID:           eventID,
		UserID:       userID,
		DeviceID:     payload.DeviceID,
		AppSource:    payload.AppSource,
		PostedAt:     postedAt,
		TextRedacted: payload.TextRedacted,
		TextRaw:      payload.TextRaw,
		Fingerprint:  fingerprint,
		Locale:       payload.Locale,
		Timezone:     payload.Timezone,
		ParseStatus:  model.StatusPending,
	}

	if err := g.storage.SaveEvent(ctx, event); err != nil {
		g.logger.Error("failed to persist event", "event_id", eventID, "error", err)
		return ItemResult{EventID: eventID, Status: StatusError, Error: err.Error()}
	}

	return ItemResult{EventID: eventID, Status: StatusAccepted}
}

// triggerProcessing schedules a bounded background sweep of the user's
// pending events. Errors are logged, never propagated to the caller.
func (g *Gateway) triggerProcessing(userID string) {
	if g.pipeline == nil {
		return
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.TriggerTimeout)
		defer cancel()

		stats, err := g.pipeline.ProcessPending(ctx, userID, g.cfg.TriggerLimit)
		if err != nil {
			g.logger.Warn("background processing ended early",
				"user_id", userID,
				"processed", stats.Processed,
				"error", err)
			return
		}

		g.logger.Debug("background processing complete",
			"user_id", userID,
			"processed", stats.Processed,
			"parsed", stats.Parsed,
			"skipped", stats.Skipped,
			"failed", stats.Failed)
	}()
}

// Retry resets a user's FAILED events to PENDING. Returns the count reset.
func (g *Gateway) Retry(ctx context.Context, userID string) (int, error) {
	if g.pipeline == nil {
		return g.storage.ResetFailedEvents(ctx, userID)
	}
	return g.pipeline.RetryFailed(ctx, userID)
}

// Wait blocks until all background processing runs have finished. Used by
// graceful shutdown and tests.
func (g *Gateway) Wait() {
	g.wg.Wait()
}

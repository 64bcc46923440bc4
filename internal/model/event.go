// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// ParseStatus tracks where an event is in the parsing lifecycle.
type ParseStatus string

// Parse status constants.
const (
	StatusPending ParseStatus = "PENDING"
	StatusParsed  ParseStatus = "PARSED"
	StatusSkipped ParseStatus = "SKIPPED"
	StatusFailed  ParseStatus = "FAILED"
)

// Event represents a single captured notification awaiting or having
// undergone parsing. At most one Transaction references an Event.
type Event struct {
	PostedAt     time.Time
	CreatedAt    time.Time
	ID           string
	UserID       string
	DeviceID     string
	AppSource    string
	TextRedacted string
	TextRaw      string // Present only if the user opted in
	Fingerprint  string
	Locale       string
	Timezone     string
	ParseStatus  ParseStatus
	ParseError   string
	Confidence   float64
}

// GenerateFingerprint computes the event's content fingerprint from its
// redacted text and stores it on the event.
func (e *Event) GenerateFingerprint() string {
	e.Fingerprint = Fingerprint(e.TextRedacted)
	return e.Fingerprint
}

// Fingerprint hashes normalized text for cache keys and dedup. Normalization
// lowercases and collapses all whitespace runs to a single space so that
// re-delivered notifications with formatting jitter hash identically.
func Fingerprint(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	hash := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hash)
}

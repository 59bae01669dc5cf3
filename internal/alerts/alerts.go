// Package alerts stores security alerts raised by the detection engine.
//
// Alerts are append-only from the engine's point of view: the review
// workflow (pending → reviewed/dismissed) belongs to moderators and is the
// only mutation this package exposes. Inserts are deduplicated on
// (logId, alertType) so an upstream at-least-once caller retrying the same
// log entry cannot produce duplicate alerts.
package alerts

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an alert does not exist.
var ErrNotFound = errors.New("alerts: alert not found")

// Alert statuses.
const (
	StatusPending   = "pending"
	StatusReviewed  = "reviewed"
	StatusDismissed = "dismissed"
)

// SecurityAlert is a persisted record of one rule detection.
type SecurityAlert struct {
	ID             string         `json:"id"`
	PlayerID       string         `json:"playerId"`
	LogID          string         `json:"logId"`
	AlertType      string         `json:"alertType"` // the rule name
	Severity       string         `json:"severity"`
	Confidence     float64        `json:"confidence"`
	Description    string         `json:"description"`
	Evidence       map[string]any `json:"evidence,omitempty"`
	Status         string         `json:"status"`
	RequiresReview bool           `json:"requiresReview"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Store persists security alerts.
type Store interface {
	// Insert persists an alert and returns its id. When an alert with the
	// same (logId, alertType) already exists, the existing id is returned
	// and no new row is written.
	Insert(ctx context.Context, alert *SecurityAlert) (string, error)
	GetByID(ctx context.Context, id string) (*SecurityAlert, error)
	// ListByPlayer returns the player's alerts, newest first, up to limit.
	ListByPlayer(ctx context.Context, playerID string, limit int) ([]*SecurityAlert, error)
	// ListPending returns alerts awaiting review, oldest first, up to limit.
	ListPending(ctx context.Context, limit int) ([]*SecurityAlert, error)
	// SetStatus transitions an alert's review status (moderator action).
	SetStatus(ctx context.Context, id, status string) error
}

// Package telemetry stores player action logs, the unit of analysis for
// the detection engine.
//
// Logs are append-only: once written they are never mutated. The engine
// reads a bounded recent window per player, so queries are ordered
// newest-first and capped by the caller.
package telemetry

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a log entry does not exist.
var ErrNotFound = errors.New("telemetry: log entry not found")

// LogEntry is a single player action as reported by the game server.
type LogEntry struct {
	ID                string         `json:"id"`
	PlayerID          string         `json:"playerId"`
	ActionType        string         `json:"actionType"`
	ActionCategory    string         `json:"actionCategory"`
	ValueDiff         int64          `json:"valueDiff"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	DeviceFingerprint string         `json:"deviceFingerprint,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// Store persists action logs.
type Store interface {
	// Insert appends a log entry. The entry's ID must be set by the caller.
	Insert(ctx context.Context, entry *LogEntry) error
	// GetByID fetches a single entry, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*LogEntry, error)
	// ListRecent returns up to limit entries for the player, newest first.
	ListRecent(ctx context.Context, playerID string, limit int) ([]*LogEntry, error)
	// ListSince returns entries for the player created at or after since, newest first.
	ListSince(ctx context.Context, playerID string, since time.Time) ([]*LogEntry, error)
}

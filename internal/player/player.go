// Package player stores player profile snapshots consumed by the detection
// engine, plus the single mutation the engine performs: flagging.
package player

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a player profile does not exist.
var ErrNotFound = errors.New("player: profile not found")

// Profile is a snapshot of a player account.
type Profile struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Level      int        `json:"level"`
	Cash       int64      `json:"cash"`
	Flagged    bool       `json:"flagged"`
	FlaggedAt  *time.Time `json:"flaggedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastSeenAt time.Time  `json:"lastSeenAt"`
}

// Store persists player profiles.
type Store interface {
	GetByID(ctx context.Context, playerID string) (*Profile, error)
	Upsert(ctx context.Context, profile *Profile) error
	// SetFlagged marks or unmarks a player as flagged. Flagging an
	// already-flagged player is a no-op (idempotent).
	SetFlagged(ctx context.Context, playerID string, flagged bool) error
}

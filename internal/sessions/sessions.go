// Package sessions tracks which device fingerprints each player has
// connected from. The multi-account detector asks the inverse question:
// which other players have been seen on this fingerprint.
package sessions

import (
	"context"
	"time"
)

// Session is one observed (player, fingerprint) pairing.
type Session struct {
	PlayerID          string    `json:"playerId"`
	DeviceFingerprint string    `json:"deviceFingerprint"`
	FirstSeenAt       time.Time `json:"firstSeenAt"`
	LastSeenAt        time.Time `json:"lastSeenAt"`
}

// Store persists player sessions.
type Store interface {
	// Record upserts the (player, fingerprint) pairing, bumping LastSeenAt.
	Record(ctx context.Context, playerID, fingerprint string) error
	// ListOtherPlayers returns the distinct ids of players other than
	// excludePlayerID that share the fingerprint.
	ListOtherPlayers(ctx context.Context, fingerprint, excludePlayerID string) ([]string, error)
}

// Package riskscore stores the cumulative per-player risk score.
//
// Scores only ever increase through this package. The single
// correctness-critical contract is AtomicAdd: two concurrent invocations
// for the same player must both land their increments (no lost update),
// so implementations must use a store-level atomic add, never a
// read-modify-write without concurrency control.
package riskscore

import (
	"context"
	"time"
)

// Score is one player's accumulated risk.
type Score struct {
	PlayerID        string    `json:"playerId"`
	TotalRiskScore  int       `json:"totalRiskScore"`
	LastViolationAt time.Time `json:"lastViolationAt"`
}

// Store persists risk scores.
type Store interface {
	// Get returns the player's current score, or 0 if no row exists.
	Get(ctx context.Context, playerID string) (int, error)
	// AtomicAdd adds delta to the player's score and returns the new
	// total, creating the row at delta if absent. Safe under concurrent
	// calls for the same player.
	AtomicAdd(ctx context.Context, playerID string, delta int) (int, error)
}

// Package audit records automated response actions taken against players,
// so every flag and every critical detection leaves a reviewable trail.
package audit

import (
	"context"
	"time"
)

// Entry actions.
const (
	ActionPlayerFlagged   = "player_flagged"
	ActionCriticalAlert   = "critical_alert"
	ActionRuleConfigSaved = "rule_config_saved"
)

// Entry is one audit log record.
type Entry struct {
	ID        string         `json:"id"`
	PlayerID  string         `json:"playerId,omitempty"`
	Action    string         `json:"action"`
	Detail    string         `json:"detail"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Store persists audit entries. Entries are append-only.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	// ListByPlayer returns the player's audit entries, newest first, up to limit.
	ListByPlayer(ctx context.Context, playerID string, limit int) ([]*Entry, error)
}

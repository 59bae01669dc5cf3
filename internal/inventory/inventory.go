// Package inventory records item add/remove operations so the duplication
// detector can spot the same item id being added repeatedly.
package inventory

import (
	"context"
	"time"
)

// Change types.
const (
	ChangeAdd    = "add"
	ChangeRemove = "remove"
)

// Change is one inventory mutation.
type Change struct {
	ID         string    `json:"id"`
	PlayerID   string    `json:"playerId"`
	ItemID     string    `json:"itemId"`
	ChangeType string    `json:"changeType"`
	Quantity   int       `json:"quantity"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store persists inventory changes.
type Store interface {
	Record(ctx context.Context, change *Change) error
	// ListRecent returns the player's most recent changes of the given
	// type, newest first, up to limit.
	ListRecent(ctx context.Context, playerID, changeType string, limit int) ([]*Change, error)
}

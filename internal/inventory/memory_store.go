package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/idgen"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	changes map[string][]*Change // playerID -> changes, oldest first
}

// NewMemoryStore creates an in-memory inventory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{changes: make(map[string][]*Change)}
}

func (s *MemoryStore) Record(ctx context.Context, change *Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *change
	if stored.ID == "" {
		stored.ID = idgen.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.changes[stored.PlayerID] = append(s.changes[stored.PlayerID], &stored)
	return nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, playerID, changeType string, limit int) ([]*Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.changes[playerID]
	var out []*Change
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if all[i].ChangeType == changeType {
			c := *all[i]
			out = append(out, &c)
		}
	}
	return out, nil
}

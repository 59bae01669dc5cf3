package audit

import (
	"context"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/idgen"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry // append order, oldest first
}

// NewMemoryStore creates an in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *entry
	if stored.ID == "" {
		stored.ID = idgen.WithPrefix("audit_")
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.entries = append(s.entries, &stored)
	return nil
}

func (s *MemoryStore) ListByPlayer(ctx context.Context, playerID string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entry
	for i := len(s.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.entries[i].PlayerID == playerID {
			e := *s.entries[i]
			out = append(out, &e)
		}
	}
	return out, nil
}

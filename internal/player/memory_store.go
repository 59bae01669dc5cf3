package player

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewMemoryStore creates an in-memory player profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*Profile)}
}

func (s *MemoryStore) GetByID(ctx context.Context, playerID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[playerID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	return &out, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, profile *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := *profile
	s.profiles[p.ID] = &p
	return nil
}

func (s *MemoryStore) SetFlagged(ctx context.Context, playerID string, flagged bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[playerID]
	if !ok {
		return ErrNotFound
	}
	if p.Flagged == flagged {
		return nil // idempotent
	}
	p.Flagged = flagged
	if flagged {
		now := time.Now()
		p.FlaggedAt = &now
	} else {
		p.FlaggedAt = nil
	}
	return nil
}

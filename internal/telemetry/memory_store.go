package telemetry

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*LogEntry
	byPlayer map[string][]*LogEntry // insertion order (oldest first)
}

// NewMemoryStore creates an in-memory action log store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*LogEntry),
		byPlayer: make(map[string][]*LogEntry),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, entry *LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := copyEntry(entry)
	s.byID[e.ID] = e
	s.byPlayer[e.PlayerID] = append(s.byPlayer[e.PlayerID], e)
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEntry(e), nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, playerID string, limit int) ([]*LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byPlayer[playerID]
	if len(all) == 0 {
		return nil, nil
	}

	start := len(all) - limit
	if start < 0 {
		start = 0
	}

	// Newest first
	result := make([]*LogEntry, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		result = append(result, copyEntry(all[i]))
	}
	return result, nil
}

func (s *MemoryStore) ListSince(ctx context.Context, playerID string, since time.Time) ([]*LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byPlayer[playerID]
	var result []*LogEntry
	for i := len(all) - 1; i >= 0; i-- {
		if !all[i].CreatedAt.Before(since) {
			result = append(result, copyEntry(all[i]))
		}
	}
	return result, nil
}

func copyEntry(e *LogEntry) *LogEntry {
	out := *e
	if e.Metadata != nil {
		md := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		out.Metadata = md
	}
	return &out
}

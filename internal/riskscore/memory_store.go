package riskscore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
// A single mutex across all players keeps AtomicAdd linearizable.
type MemoryStore struct {
	mu     sync.Mutex
	scores map[string]*Score
}

// NewMemoryStore creates an in-memory risk score store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scores: make(map[string]*Score)}
}

func (s *MemoryStore) Get(ctx context.Context, playerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sc, ok := s.scores[playerID]; ok {
		return sc.TotalRiskScore, nil
	}
	return 0, nil
}

func (s *MemoryStore) AtomicAdd(ctx context.Context, playerID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.scores[playerID]
	if !ok {
		sc = &Score{PlayerID: playerID}
		s.scores[playerID] = sc
	}
	sc.TotalRiskScore += delta
	sc.LastViolationAt = time.Now()
	return sc.TotalRiskScore, nil
}

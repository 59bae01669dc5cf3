package sessions

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu sync.RWMutex
	// byFingerprint maps fingerprint -> playerID -> session
	byFingerprint map[string]map[string]*Session
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byFingerprint: make(map[string]map[string]*Session)}
}

func (s *MemoryStore) Record(ctx context.Context, playerID, fingerprint string) error {
	if fingerprint == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	players, ok := s.byFingerprint[fingerprint]
	if !ok {
		players = make(map[string]*Session)
		s.byFingerprint[fingerprint] = players
	}

	now := time.Now()
	if sess, ok := players[playerID]; ok {
		sess.LastSeenAt = now
		return nil
	}
	players[playerID] = &Session{
		PlayerID:          playerID,
		DeviceFingerprint: fingerprint,
		FirstSeenAt:       now,
		LastSeenAt:        now,
	}
	return nil
}

func (s *MemoryStore) ListOtherPlayers(ctx context.Context, fingerprint, excludePlayerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for playerID := range s.byFingerprint[fingerprint] {
		if playerID != excludePlayerID {
			out = append(out, playerID)
		}
	}
	sort.Strings(out)
	return out, nil
}

package alerts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/idgen"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts map[string]*SecurityAlert
	// dedup maps "logId|alertType" to the id of the first alert written
	// for that pair.
	dedup map[string]string
}

// NewMemoryStore creates an in-memory alert store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts: make(map[string]*SecurityAlert),
		dedup:  make(map[string]string),
	}
}

func dedupKey(logID, alertType string) string {
	return logID + "|" + alertType
}

func (s *MemoryStore) Insert(ctx context.Context, alert *SecurityAlert) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dedupKey(alert.LogID, alert.AlertType)
	if existing, ok := s.dedup[key]; ok {
		return existing, nil
	}

	stored := *alert
	if stored.ID == "" {
		stored.ID = idgen.WithPrefix("alert_")
	}
	if stored.Status == "" {
		stored.Status = StatusPending
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.Evidence = copyEvidence(alert.Evidence)

	s.alerts[stored.ID] = &stored
	s.dedup[key] = stored.ID
	return stored.ID, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*SecurityAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAlert(a), nil
}

func (s *MemoryStore) ListByPlayer(ctx context.Context, playerID string, limit int) ([]*SecurityAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*SecurityAlert
	for _, a := range s.alerts {
		if a.PlayerID == playerID {
			out = append(out, copyAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListPending(ctx context.Context, limit int) ([]*SecurityAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*SecurityAlert
	for _, a := range s.alerts {
		if a.Status == StatusPending {
			out = append(out, copyAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id, status string) error {
	if status != StatusPending && status != StatusReviewed && status != StatusDismissed {
		return fmt.Errorf("invalid alert status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	return nil
}

func copyAlert(a *SecurityAlert) *SecurityAlert {
	c := *a
	c.Evidence = copyEvidence(a.Evidence)
	return &c
}

func copyEvidence(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

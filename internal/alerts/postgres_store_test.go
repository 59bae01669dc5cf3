package alerts

import (
	"context"
	"testing"

	"github.com/wardenhq/warden/internal/testutil"
)

func TestPostgresInsertDeduplicates(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	alert := &SecurityAlert{
		PlayerID:       "p1",
		LogID:          "log_1",
		AlertType:      "velocity",
		Severity:       "high",
		Confidence:     0.95,
		Description:    "31 actions in 60s",
		RequiresReview: false,
	}

	id1, err := store.Insert(ctx, alert)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id1 == "" {
		t.Fatal("expected an id")
	}

	// Same (logId, rule) pair resolves to the existing alert
	dup := &SecurityAlert{
		PlayerID:   "p1",
		LogID:      "log_1",
		AlertType:  "velocity",
		Severity:   "high",
		Confidence: 0.95,
	}
	id2, err := store.Insert(ctx, dup)
	if err != nil {
		t.Fatalf("Insert duplicate: %v", err)
	}
	if id2 != id1 {
		t.Errorf("expected duplicate insert to return %s, got %s", id1, id2)
	}

	pending, err := store.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 pending alert, got %d", len(pending))
	}
}

func TestPostgresStatusTransitions(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	id, err := store.Insert(ctx, &SecurityAlert{
		PlayerID:       "p2",
		LogID:          "log_2",
		AlertType:      "honeypot_triggered",
		Severity:       "critical",
		Confidence:     1.0,
		RequiresReview: true,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := store.SetStatus(ctx, id, StatusReviewed); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	got, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusReviewed {
		t.Errorf("expected %s, got %s", StatusReviewed, got.Status)
	}

	pending, err := store.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending alerts, got %d", len(pending))
	}
}

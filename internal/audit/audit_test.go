package audit

import (
	"context"
	"testing"
)

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	entry := &Entry{
		PlayerID: "p1",
		Action:   ActionPlayerFlagged,
		Detail:   "risk score 160 crossed threshold 150",
	}
	if err := store.Append(ctx, entry); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := store.ListByPlayer(ctx, "p1", 10)
	if err != nil {
		t.Fatalf("ListByPlayer: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].ID == "" {
		t.Error("expected an assigned id")
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("expected an assigned timestamp")
	}
	if got[0].Action != ActionPlayerFlagged {
		t.Errorf("unexpected action %s", got[0].Action)
	}
}

func TestListByPlayerNewestFirstWithLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	actions := []string{ActionCriticalAlert, ActionCriticalAlert, ActionPlayerFlagged}
	for _, a := range actions {
		if err := store.Append(ctx, &Entry{PlayerID: "p1", Action: a}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := store.Append(ctx, &Entry{PlayerID: "p2", Action: ActionCriticalAlert}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := store.ListByPlayer(ctx, "p1", 2)
	if err != nil {
		t.Fatalf("ListByPlayer: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Action != ActionPlayerFlagged {
		t.Errorf("expected newest entry first, got %s", got[0].Action)
	}
}

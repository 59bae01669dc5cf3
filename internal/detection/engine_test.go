package detection

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/alerts"
	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/inventory"
	"github.com/wardenhq/warden/internal/player"
	"github.com/wardenhq/warden/internal/riskscore"
	"github.com/wardenhq/warden/internal/ruleconfig"
	"github.com/wardenhq/warden/internal/sessions"
	"github.com/wardenhq/warden/internal/telemetry"
)

type engineFixture struct {
	engine  *Engine
	logs    *telemetry.MemoryStore
	players *player.MemoryStore
	scores  *riskscore.MemoryStore
	alerts  *alerts.MemoryStore
	audit   *audit.MemoryStore
	config  *ruleconfig.MemoryStore
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	f := &engineFixture{
		logs:    telemetry.NewMemoryStore(),
		players: player.NewMemoryStore(),
		scores:  riskscore.NewMemoryStore(),
		alerts:  alerts.NewMemoryStore(),
		audit:   audit.NewMemoryStore(),
		config:  ruleconfig.NewMemoryStore(),
	}

	builder := NewContextBuilder(f.logs, f.players, f.scores,
		sessions.NewMemoryStore(), inventory.NewMemoryStore(), 100)
	f.engine = NewEngine(builder, nil, f.config, f.alerts, f.scores, f.players, f.audit, nil)
	return f
}

func (f *engineFixture) insertLog(t *testing.T, entry *telemetry.LogEntry) {
	t.Helper()
	if err := f.logs.Insert(context.Background(), entry); err != nil {
		t.Fatalf("failed to insert log: %v", err)
	}
}

func TestAnalyzeLevelJumpEndToEnd(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.insertLog(t, &telemetry.LogEntry{
		ID:         "log_1",
		PlayerID:   "p1",
		ActionType: "level_up",
		ValueDiff:  8,
		CreatedAt:  time.Now(),
	})

	result, err := f.engine.Analyze(ctx, &AnalyzeRequest{LogID: "log_1"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if result.DetectionsTriggered != 1 {
		t.Fatalf("expected 1 detection, got %d", result.DetectionsTriggered)
	}
	d := result.Detections[0]
	if d.Rule != "impossible_value" || d.Severity != SeverityCritical || d.Confidence != 1.0 {
		t.Errorf("unexpected detection %+v", d)
	}
	if result.NewRiskScore != 25 {
		t.Errorf("expected risk score 25, got %d", result.NewRiskScore)
	}
	if result.PlayerFlagged {
		t.Error("player should not be flagged at score 25")
	}

	persisted, _ := f.alerts.ListByPlayer(ctx, "p1", 10)
	if len(persisted) != 1 {
		t.Fatalf("expected 1 persisted alert, got %d", len(persisted))
	}
	if !persisted[0].RequiresReview {
		t.Error("critical alert must require review")
	}

	// Critical detections always leave an audit trail.
	entries, _ := f.audit.ListByPlayer(ctx, "p1", 10)
	if len(entries) != 1 || entries[0].Action != audit.ActionCriticalAlert {
		t.Errorf("expected one critical_alert audit entry, got %+v", entries)
	}
}

func TestAnalyzeAutoFlagsAtThreshold(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	if err := f.players.Upsert(ctx, &player.Profile{ID: "p1", Username: "shady"}); err != nil {
		t.Fatalf("failed to seed player: %v", err)
	}
	if _, err := f.scores.AtomicAdd(ctx, "p1", 130); err != nil {
		t.Fatalf("failed to seed score: %v", err)
	}
	f.insertLog(t, &telemetry.LogEntry{
		ID:         "log_1",
		PlayerID:   "p1",
		ActionType: "level_up",
		ValueDiff:  9,
		CreatedAt:  time.Now(),
	})

	result, err := f.engine.Analyze(ctx, &AnalyzeRequest{LogID: "log_1"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.NewRiskScore != 155 {
		t.Errorf("expected score 155, got %d", result.NewRiskScore)
	}
	if !result.PlayerFlagged {
		t.Fatal("expected player to be flagged at score 155")
	}

	profile, err := f.players.GetByID(ctx, "p1")
	if err != nil {
		t.Fatalf("failed to load player: %v", err)
	}
	if !profile.Flagged {
		t.Error("player profile should be flagged")
	}

	entries, _ := f.audit.ListByPlayer(ctx, "p1", 10)
	var flaggedAudit bool
	for _, e := range entries {
		if e.Action == audit.ActionPlayerFlagged {
			flaggedAudit = true
		}
	}
	if !flaggedAudit {
		t.Error("expected a player_flagged audit entry")
	}
}

func TestAnalyzeAutoFlagDisabled(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	if err := f.config.Upsert(ctx, &ruleconfig.Entry{
		Key: ruleconfig.KeyAutoFlagEnabled, Value: false, Enabled: true,
	}); err != nil {
		t.Fatalf("failed to seed config: %v", err)
	}
	if err := f.players.Upsert(ctx, &player.Profile{ID: "p1"}); err != nil {
		t.Fatalf("failed to seed player: %v", err)
	}
	if _, err := f.scores.AtomicAdd(ctx, "p1", 200); err != nil {
		t.Fatalf("failed to seed score: %v", err)
	}
	f.insertLog(t, &telemetry.LogEntry{
		ID: "log_1", PlayerID: "p1", ActionType: "level_up", ValueDiff: 9, CreatedAt: time.Now(),
	})

	result, err := f.engine.Analyze(ctx, &AnalyzeRequest{LogID: "log_1"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.PlayerFlagged {
		t.Error("auto-flag disabled, player must not be flagged")
	}
	profile, _ := f.players.GetByID(ctx, "p1")
	if profile.Flagged {
		t.Error("player profile should not be flagged")
	}
}

func TestAnalyzeVelocityScenario(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// 35 actions inside the minute with jittered gaps so only the velocity
	// rule has grounds to fire.
	now := time.Now()
	ts := now.Add(-55 * time.Second)
	for i := 0; i < 34; i++ {
		f.insertLog(t, &telemetry.LogEntry{
			ID:        fmt.Sprintf("log_%d", i),
			PlayerID:  "p1",
			CreatedAt: ts,
		})
		if i%2 == 0 {
			ts = ts.Add(1 * time.Second)
		} else {
			ts = ts.Add(2200 * time.Millisecond)
		}
	}
	f.insertLog(t, &telemetry.LogEntry{ID: "log_current", PlayerID: "p1", CreatedAt: now})

	result, err := f.engine.Analyze(ctx, &AnalyzeRequest{LogID: "log_current"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.DetectionsTriggered != 1 {
		t.Fatalf("expected exactly 1 detection, got %d: %+v", result.DetectionsTriggered, result.Detections)
	}
	if result.Detections[0].Rule != "velocity_violation" {
		t.Errorf("expected velocity_violation, got %s", result.Detections[0].Rule)
	}
	if result.NewRiskScore != 15 {
		t.Errorf("expected score 15, got %d", result.NewRiskScore)
	}
}

func TestAnalyzeOverlappingHoneypots(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.insertLog(t, &telemetry.LogEntry{
		ID:        "log_1",
		PlayerID:  "p1",
		CreatedAt: time.Now(),
		Metadata:  map[string]any{"__godMode": true},
	})

	result, err := f.engine.Analyze(ctx, &AnalyzeRequest{LogID: "log_1"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.DetectionsTriggered != 2 {
		t.Fatalf("expected 2 detections, got %d: %+v", result.DetectionsTriggered, result.Detections)
	}
	if result.NewRiskScore != 50 {
		t.Errorf("expected score 50 (two criticals), got %d", result.NewRiskScore)
	}

	persisted, _ := f.alerts.ListByPlayer(ctx, "p1", 10)
	if len(persisted) != 2 {
		t.Errorf("expected 2 alerts, got %d", len(persisted))
	}
}

func TestAnalyzeUnknownLog(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Analyze(context.Background(), &AnalyzeRequest{LogID: "missing"})
	if !errors.Is(err, telemetry.ErrNotFound) {
		t.Errorf("expected telemetry.ErrNotFound, got %v", err)
	}
}

type failingConfigStore struct{}

func (f *failingConfigStore) ListEnabled(ctx context.Context) (map[string]any, error) {
	return nil, errors.New("store unreachable")
}
func (f *failingConfigStore) List(ctx context.Context) ([]*ruleconfig.Entry, error) {
	return nil, errors.New("store unreachable")
}
func (f *failingConfigStore) Upsert(ctx context.Context, e *ruleconfig.Entry) error {
	return errors.New("store unreachable")
}
func (f *failingConfigStore) Delete(ctx context.Context, key string) error {
	return errors.New("store unreachable")
}

func TestAnalyzeConfigUnavailableIsFatal(t *testing.T) {
	f := newEngineFixture(t)
	f.insertLog(t, &telemetry.LogEntry{ID: "log_1", PlayerID: "p1", CreatedAt: time.Now()})

	builder := NewContextBuilder(f.logs, f.players, f.scores,
		sessions.NewMemoryStore(), inventory.NewMemoryStore(), 100)
	engine := NewEngine(builder, nil, &failingConfigStore{}, f.alerts, f.scores, f.players, f.audit, nil)

	_, err := engine.Analyze(context.Background(), &AnalyzeRequest{LogID: "log_1"})
	if !errors.Is(err, ErrConfigUnavailable) {
		t.Errorf("expected ErrConfigUnavailable, got %v", err)
	}
}

type panickingRule struct{}

func (r *panickingRule) Name() string { return "broken_rule" }
func (r *panickingRule) Evaluate(dc *DetectionContext) *Detection {
	panic("nil map write")
}

func TestAnalyzeIsolatesPanickingRule(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.insertLog(t, &telemetry.LogEntry{
		ID:         "log_1",
		PlayerID:   "p1",
		ActionType: "level_up",
		ValueDiff:  8,
		CreatedAt:  time.Now(),
	})

	builder := NewContextBuilder(f.logs, f.players, f.scores,
		sessions.NewMemoryStore(), inventory.NewMemoryStore(), 100)
	engine := NewEngine(builder, []Rule{&panickingRule{}, &ImpossibleValueRule{}},
		f.config, f.alerts, f.scores, f.players, f.audit, nil)

	result, err := engine.Analyze(ctx, &AnalyzeRequest{LogID: "log_1"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.DetectionsTriggered != 1 || result.Detections[0].Rule != "impossible_value" {
		t.Errorf("panicking rule must not block others, got %+v", result.Detections)
	}
}

func TestAnalyzeRuleDisabledByConfig(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	if err := f.config.Upsert(ctx, &ruleconfig.Entry{
		Key: "impossible_value_enabled", Value: false, Enabled: true,
	}); err != nil {
		t.Fatalf("failed to seed config: %v", err)
	}
	f.insertLog(t, &telemetry.LogEntry{
		ID: "log_1", PlayerID: "p1", ActionType: "level_up", ValueDiff: 8, CreatedAt: time.Now(),
	})

	result, err := f.engine.Analyze(ctx, &AnalyzeRequest{LogID: "log_1"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.DetectionsTriggered != 0 {
		t.Errorf("disabled rule must not fire, got %+v", result.Detections)
	}
}

// Resubmitting the same logId must not duplicate alerts; the score update
// is deliberately not deduplicated (documented policy), only alert writes.
func TestAnalyzeResubmissionDeduplicatesAlerts(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.insertLog(t, &telemetry.LogEntry{
		ID: "log_1", PlayerID: "p1", ActionType: "level_up", ValueDiff: 8, CreatedAt: time.Now(),
	})

	if _, err := f.engine.Analyze(ctx, &AnalyzeRequest{LogID: "log_1"}); err != nil {
		t.Fatalf("first Analyze failed: %v", err)
	}
	if _, err := f.engine.Analyze(ctx, &AnalyzeRequest{LogID: "log_1"}); err != nil {
		t.Fatalf("second Analyze failed: %v", err)
	}

	persisted, _ := f.alerts.ListByPlayer(ctx, "p1", 10)
	if len(persisted) != 1 {
		t.Errorf("expected 1 alert after resubmission, got %d", len(persisted))
	}
}

// Context construction is a pure function of stored state.
func TestContextBuildIsDeterministic(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 5; i++ {
		f.insertLog(t, &telemetry.LogEntry{
			ID:        fmt.Sprintf("log_%d", i),
			PlayerID:  "p1",
			CreatedAt: now.Add(-time.Duration(5-i) * time.Minute),
			Metadata:  map[string]any{"source": "job"},
		})
	}

	builder := NewContextBuilder(f.logs, f.players, f.scores,
		sessions.NewMemoryStore(), inventory.NewMemoryStore(), 100)

	cfg := ruleconfig.Defaults()
	first, err := builder.Build(ctx, "log_4", cfg)
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	second, err := builder.Build(ctx, "log_4", cfg)
	if err != nil {
		t.Fatalf("second Build failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated context builds over unchanged state must be identical")
	}
}

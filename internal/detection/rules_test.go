package detection

import (
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/telemetry"
)

func testEntry(playerID string, createdAt time.Time) *telemetry.LogEntry {
	return &telemetry.LogEntry{
		ID:        "log_current",
		PlayerID:  playerID,
		CreatedAt: createdAt,
		Metadata:  map[string]any{},
	}
}

// history fabricates n entries for the player spaced `gap` apart going
// backwards from `end`, newest first, with the current entry at the head.
func history(entry *telemetry.LogEntry, n int, gap time.Duration) []*telemetry.LogEntry {
	logs := []*telemetry.LogEntry{entry}
	for i := 1; i < n; i++ {
		logs = append(logs, &telemetry.LogEntry{
			ID:        "log_old",
			PlayerID:  entry.PlayerID,
			CreatedAt: entry.CreatedAt.Add(-time.Duration(i) * gap),
			Metadata:  map[string]any{},
		})
	}
	return logs
}

func newTestContext(entry *telemetry.LogEntry, recent []*telemetry.LogEntry) *DetectionContext {
	return &DetectionContext{
		PlayerID:   entry.PlayerID,
		ActionType: entry.ActionType,
		LogEntry:   entry,
		RecentLogs: recent,
		Config:     map[string]any{},
	}
}

func TestVelocityRuleFiresAboveLimit(t *testing.T) {
	entry := testEntry("p1", time.Now())
	dc := newTestContext(entry, history(entry, 35, time.Second))

	d := (&VelocityRule{}).Evaluate(dc)
	if d == nil {
		t.Fatal("expected detection for 35 actions in 60s")
	}
	if d.Severity != SeverityHigh {
		t.Errorf("expected severity high, got %s", d.Severity)
	}
	if d.Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %f", d.Confidence)
	}
	if d.Evidence["actionCount"] != 35 {
		t.Errorf("expected actionCount 35 in evidence, got %v", d.Evidence["actionCount"])
	}
}

func TestVelocityRuleBoundaryDoesNotFire(t *testing.T) {
	// Exactly at the limit must not fire; only exceeding it does.
	entry := testEntry("p1", time.Now())
	dc := newTestContext(entry, history(entry, 30, time.Second))

	if d := (&VelocityRule{}).Evaluate(dc); d != nil {
		t.Errorf("expected no detection at exactly 30 actions, got %+v", d)
	}
}

func TestVelocityRuleHonorsConfiguredLimit(t *testing.T) {
	entry := testEntry("p1", time.Now())
	dc := newTestContext(entry, history(entry, 15, time.Second))
	dc.Config["velocity_max_actions_per_minute"] = float64(10)

	if d := (&VelocityRule{}).Evaluate(dc); d == nil {
		t.Error("expected detection with lowered limit of 10")
	}
}

func TestVelocityRuleIgnoresActionsOutsideWindow(t *testing.T) {
	entry := testEntry("p1", time.Now())
	// 40 actions but spaced 10s apart: only 6 land inside the minute.
	dc := newTestContext(entry, history(entry, 40, 10*time.Second))

	if d := (&VelocityRule{}).Evaluate(dc); d != nil {
		t.Errorf("expected no detection, got %+v", d)
	}
}

func TestImpossibleValueCrimePayout(t *testing.T) {
	entry := testEntry("p1", time.Now())
	entry.ActionCategory = "economy"
	entry.ValueDiff = 60000
	entry.Metadata["source"] = "crime"

	d := (&ImpossibleValueRule{}).Evaluate(newTestContext(entry, nil))
	if d == nil {
		t.Fatal("expected detection for 60000 crime payout")
	}
	if d.Severity != SeverityCritical || d.Confidence != 1.0 {
		t.Errorf("expected critical/1.0, got %s/%f", d.Severity, d.Confidence)
	}
}

func TestImpossibleValueRequiresBothConditions(t *testing.T) {
	// High amount from a non-crime source: allowed.
	entry := testEntry("p1", time.Now())
	entry.ActionCategory = "economy"
	entry.ValueDiff = 60000
	entry.Metadata["source"] = "job"
	if d := (&ImpossibleValueRule{}).Evaluate(newTestContext(entry, nil)); d != nil {
		t.Errorf("expected no detection for non-crime source, got %+v", d)
	}

	// Crime source within the cap: allowed.
	entry = testEntry("p1", time.Now())
	entry.ActionCategory = "economy"
	entry.ValueDiff = 40000
	entry.Metadata["source"] = "crime"
	if d := (&ImpossibleValueRule{}).Evaluate(newTestContext(entry, nil)); d != nil {
		t.Errorf("expected no detection under the cap, got %+v", d)
	}
}

func TestImpossibleValueLevelJump(t *testing.T) {
	entry := testEntry("p1", time.Now())
	entry.ActionType = "level_up"
	entry.ValueDiff = 8

	d := (&ImpossibleValueRule{}).Evaluate(newTestContext(entry, nil))
	if d == nil {
		t.Fatal("expected detection for level jump of 8")
	}
	if d.Severity != SeverityCritical {
		t.Errorf("expected critical, got %s", d.Severity)
	}

	entry.ValueDiff = 5
	if d := (&ImpossibleValueRule{}).Evaluate(newTestContext(entry, nil)); d != nil {
		t.Errorf("expected no detection for level jump of 5, got %+v", d)
	}
}

func TestClockDriftRule(t *testing.T) {
	now := time.Now()

	entry := testEntry("p1", now)
	entry.Metadata["clientTimestamp"] = now.Add(-45 * time.Second).Format(time.RFC3339)
	d := (&ClockDriftRule{}).Evaluate(newTestContext(entry, nil))
	if d == nil {
		t.Fatal("expected detection for 45s drift")
	}
	if d.Severity != SeverityHigh {
		t.Errorf("expected high, got %s", d.Severity)
	}

	entry = testEntry("p1", now)
	entry.Metadata["clientTimestamp"] = now.Add(-10 * time.Second).Format(time.RFC3339)
	if d := (&ClockDriftRule{}).Evaluate(newTestContext(entry, nil)); d != nil {
		t.Errorf("expected no detection for 10s drift, got %+v", d)
	}
}

func TestClockDriftSkippedWithoutClientTimestamp(t *testing.T) {
	entry := testEntry("p1", time.Now())
	if d := (&ClockDriftRule{}).Evaluate(newTestContext(entry, nil)); d != nil {
		t.Errorf("expected no detection without client timestamp, got %+v", d)
	}
}

func TestClockDriftAcceptsUnixMillis(t *testing.T) {
	now := time.Now()
	entry := testEntry("p1", now)
	entry.Metadata["clientTimestamp"] = float64(now.Add(-2 * time.Minute).UnixMilli())

	if d := (&ClockDriftRule{}).Evaluate(newTestContext(entry, nil)); d == nil {
		t.Error("expected detection for 2m drift from millisecond timestamp")
	}
}

func TestMoneyGainRule(t *testing.T) {
	now := time.Now()
	entry := testEntry("p1", now)
	entry.ActionCategory = "economy"
	entry.ValueDiff = 200000

	recent := []*telemetry.LogEntry{entry}
	for i := 1; i <= 3; i++ {
		recent = append(recent, &telemetry.LogEntry{
			PlayerID:       "p1",
			ActionCategory: "economy",
			ValueDiff:      150000,
			CreatedAt:      now.Add(-time.Duration(i) * 10 * time.Minute),
		})
	}
	// Losses must not offset gains.
	recent = append(recent, &telemetry.LogEntry{
		PlayerID:       "p1",
		ActionCategory: "economy",
		ValueDiff:      -400000,
		CreatedAt:      now.Add(-5 * time.Minute),
	})

	d := (&MoneyGainRule{}).Evaluate(newTestContext(entry, recent))
	if d == nil {
		t.Fatal("expected detection for 650000 gained in an hour")
	}
	if d.Evidence["totalGain"] != int64(650000) {
		t.Errorf("expected totalGain 650000, got %v", d.Evidence["totalGain"])
	}
}

func TestMoneyGainIgnoresOldGains(t *testing.T) {
	now := time.Now()
	entry := testEntry("p1", now)
	entry.ActionCategory = "economy"
	entry.ValueDiff = 100000

	recent := []*telemetry.LogEntry{entry, {
		PlayerID:       "p1",
		ActionCategory: "economy",
		ValueDiff:      600000,
		CreatedAt:      now.Add(-2 * time.Hour),
	}}

	if d := (&MoneyGainRule{}).Evaluate(newTestContext(entry, recent)); d != nil {
		t.Errorf("expected no detection for gains outside the hour, got %+v", d)
	}
}

func TestBotBehaviorFiresOnRegularTiming(t *testing.T) {
	entry := testEntry("p1", time.Now())
	// 20 actions exactly 2s apart: zero variance, mean inside the band.
	dc := newTestContext(entry, history(entry, 20, 2*time.Second))

	d := (&BotBehaviorRule{}).Evaluate(dc)
	if d == nil {
		t.Fatal("expected detection for perfectly regular intervals")
	}
	if d.Severity != SeverityHigh || d.Confidence != 0.80 {
		t.Errorf("expected high/0.80, got %s/%f", d.Severity, d.Confidence)
	}
}

func TestBotBehaviorInsufficientSample(t *testing.T) {
	// Under 10 actions the rule never fires, however regular the timing.
	entry := testEntry("p1", time.Now())
	dc := newTestContext(entry, history(entry, 9, 2*time.Second))

	if d := (&BotBehaviorRule{}).Evaluate(dc); d != nil {
		t.Errorf("expected no detection with 9 actions, got %+v", d)
	}
}

func TestBotBehaviorMeanOutsideBand(t *testing.T) {
	entry := testEntry("p1", time.Now())
	// 200ms intervals are below the 500ms floor: could be burst gameplay.
	dc := newTestContext(entry, history(entry, 20, 200*time.Millisecond))
	if d := (&BotBehaviorRule{}).Evaluate(dc); d != nil {
		t.Errorf("expected no detection below interval floor, got %+v", d)
	}

	// 3m intervals exceed the ceiling.
	dc = newTestContext(entry, history(entry, 20, 3*time.Minute))
	if d := (&BotBehaviorRule{}).Evaluate(dc); d != nil {
		t.Errorf("expected no detection above interval ceiling, got %+v", d)
	}
}

func TestBotBehaviorIrregularTiming(t *testing.T) {
	entry := testEntry("p1", time.Now())
	logs := []*telemetry.LogEntry{entry}
	// Human-ish timing: intervals alternating 1s and 10s, cv well above 0.15.
	ts := entry.CreatedAt
	for i := 1; i < 20; i++ {
		gap := time.Second
		if i%2 == 0 {
			gap = 10 * time.Second
		}
		ts = ts.Add(-gap)
		logs = append(logs, &telemetry.LogEntry{PlayerID: "p1", CreatedAt: ts})
	}

	if d := (&BotBehaviorRule{}).Evaluate(newTestContext(entry, logs)); d != nil {
		t.Errorf("expected no detection for irregular timing, got %+v", d)
	}
}

func TestProbingRule(t *testing.T) {
	entry := testEntry("p1", time.Now())
	entry.Metadata["validationFailed"] = true

	recent := []*telemetry.LogEntry{entry}
	for i := 0; i < 6; i++ {
		recent = append(recent, &telemetry.LogEntry{
			PlayerID:  "p1",
			CreatedAt: entry.CreatedAt.Add(-time.Duration(i+1) * time.Minute),
			Metadata:  map[string]any{"validationFailed": true},
		})
	}

	d := (&ProbingRule{}).Evaluate(newTestContext(entry, recent))
	if d == nil {
		t.Fatal("expected detection for repeated failed validations")
	}
	if d.Severity != SeverityMedium {
		t.Errorf("expected medium, got %s", d.Severity)
	}
}

func TestProbingRequiresCurrentFailure(t *testing.T) {
	// History full of failures, but the current event validated fine.
	entry := testEntry("p1", time.Now())
	recent := []*telemetry.LogEntry{entry}
	for i := 0; i < 20; i++ {
		recent = append(recent, &telemetry.LogEntry{
			PlayerID: "p1",
			Metadata: map[string]any{"validationFailed": true},
		})
	}

	if d := (&ProbingRule{}).Evaluate(newTestContext(entry, recent)); d != nil {
		t.Errorf("expected no detection without current failure, got %+v", d)
	}
}

func TestHoneypotMetadataRule(t *testing.T) {
	entry := testEntry("p1", time.Now())
	entry.Metadata["__speedHack"] = true

	d := (&HoneypotMetadataRule{}).Evaluate(newTestContext(entry, nil))
	if d == nil {
		t.Fatal("expected detection for __-prefixed key")
	}
	if d.Severity != SeverityCritical || d.Confidence != 0.99 {
		t.Errorf("expected critical/0.99, got %s/%f", d.Severity, d.Confidence)
	}

	entry = testEntry("p1", time.Now())
	entry.Metadata["debugMode"] = true
	if d := (&HoneypotMetadataRule{}).Evaluate(newTestContext(entry, nil)); d == nil {
		t.Error("expected detection for debugMode flag")
	}

	entry = testEntry("p1", time.Now())
	entry.Metadata["source"] = "job"
	if d := (&HoneypotMetadataRule{}).Evaluate(newTestContext(entry, nil)); d != nil {
		t.Errorf("expected no detection for clean metadata, got %+v", d)
	}
}

func TestMultiAccountRule(t *testing.T) {
	entry := testEntry("p1", time.Now())
	entry.DeviceFingerprint = "fp_1"

	dc := newTestContext(entry, nil)
	dc.OtherPlayersOnDevice = []string{"p2", "p3", "p4"}
	d := (&MultiAccountRule{}).Evaluate(dc)
	if d == nil {
		t.Fatal("expected detection for 3 other accounts on device")
	}
	if d.Severity != SeverityMedium {
		t.Errorf("expected medium, got %s", d.Severity)
	}

	dc.OtherPlayersOnDevice = []string{"p2", "p3"}
	if d := (&MultiAccountRule{}).Evaluate(dc); d != nil {
		t.Errorf("expected no detection for 2 other accounts, got %+v", d)
	}
}

func TestInventoryDuplicationRule(t *testing.T) {
	entry := testEntry("p1", time.Now())

	dc := newTestContext(entry, nil)
	dc.RecentInventoryAdds = []string{"sword_3", "shield_1", "sword_3", "potion_9"}
	d := (&InventoryDuplicationRule{}).Evaluate(dc)
	if d == nil {
		t.Fatal("expected detection for duplicated item id")
	}
	if d.Severity != SeverityCritical || d.Confidence != 0.95 {
		t.Errorf("expected critical/0.95, got %s/%f", d.Severity, d.Confidence)
	}

	dc.RecentInventoryAdds = []string{"sword_3", "shield_1", "potion_9"}
	if d := (&InventoryDuplicationRule{}).Evaluate(dc); d != nil {
		t.Errorf("expected no detection for distinct items, got %+v", d)
	}
}

func TestFailedValidationsRule(t *testing.T) {
	now := time.Now()
	entry := testEntry("p1", now)

	recent := []*telemetry.LogEntry{entry}
	for i := 0; i < 11; i++ {
		recent = append(recent, &telemetry.LogEntry{
			PlayerID:  "p1",
			CreatedAt: now.Add(-time.Duration(i+1) * time.Minute),
			Metadata:  map[string]any{"validationFailed": true},
		})
	}

	d := (&FailedValidationsRule{}).Evaluate(newTestContext(entry, recent))
	if d == nil {
		t.Fatal("expected detection for 11 failed validations in an hour")
	}
	if d.Severity != SeverityHigh {
		t.Errorf("expected high, got %s", d.Severity)
	}
}

func TestFailedValidationsBoundary(t *testing.T) {
	now := time.Now()
	entry := testEntry("p1", now)

	recent := []*telemetry.LogEntry{entry}
	for i := 0; i < 10; i++ {
		recent = append(recent, &telemetry.LogEntry{
			PlayerID:  "p1",
			CreatedAt: now.Add(-time.Duration(i+1) * time.Minute),
			Metadata:  map[string]any{"validationFailed": true},
		})
	}

	if d := (&FailedValidationsRule{}).Evaluate(newTestContext(entry, recent)); d != nil {
		t.Errorf("expected no detection at exactly 10 failures, got %+v", d)
	}
}

func TestHoneypotDenylistRule(t *testing.T) {
	for _, key := range []string{"__devMode", "__adminPanel", "__unlockAll", "__godMode", "debugEnabled"} {
		entry := testEntry("p1", time.Now())
		entry.Metadata[key] = true

		d := (&HoneypotDenylistRule{}).Evaluate(newTestContext(entry, nil))
		if d == nil {
			t.Errorf("expected detection for %s", key)
			continue
		}
		if d.Severity != SeverityCritical || d.Confidence != 1.0 {
			t.Errorf("%s: expected critical/1.0, got %s/%f", key, d.Severity, d.Confidence)
		}
	}
}

// One event can trip overlapping honeypot rules; both fire independently.
func TestHoneypotRulesOverlap(t *testing.T) {
	entry := testEntry("p1", time.Now())
	entry.Metadata["__godMode"] = true
	dc := newTestContext(entry, nil)

	if d := (&HoneypotMetadataRule{}).Evaluate(dc); d == nil {
		t.Error("expected pattern_match_honeypot to fire")
	}
	if d := (&HoneypotDenylistRule{}).Evaluate(dc); d == nil {
		t.Error("expected honeypot_triggered to fire")
	}
}

func TestRiskPoints(t *testing.T) {
	cases := map[string]int{
		SeverityCritical: 25,
		SeverityHigh:     15,
		SeverityMedium:   10,
		SeverityLow:      5,
	}
	for severity, want := range cases {
		if got := RiskPoints(severity); got != want {
			t.Errorf("RiskPoints(%s) = %d, want %d", severity, got, want)
		}
	}
}

func TestDefaultRulesCoversAllDetectors(t *testing.T) {
	rules := DefaultRules()
	if len(rules) != 11 {
		t.Fatalf("expected 11 rules, got %d", len(rules))
	}
	seen := make(map[string]bool)
	for _, r := range rules {
		if seen[r.Name()] {
			t.Errorf("duplicate rule name %s", r.Name())
		}
		seen[r.Name()] = true
	}
}

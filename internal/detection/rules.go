package detection

import (
	"fmt"
	"math"
	"time"

	"github.com/wardenhq/warden/internal/ruleconfig"
	"github.com/wardenhq/warden/internal/telemetry"
)

// Rule is the interface for behavioral detectors. Evaluate returns nil when
// the rule does not fire. Rules are independent and read-only over the
// context; order of evaluation never affects the output set.
type Rule interface {
	Name() string
	Evaluate(dc *DetectionContext) *Detection
}

// DefaultRules returns the built-in detectors.
func DefaultRules() []Rule {
	return []Rule{
		&VelocityRule{},
		&ImpossibleValueRule{},
		&ClockDriftRule{},
		&MoneyGainRule{},
		&BotBehaviorRule{},
		&ProbingRule{},
		&HoneypotMetadataRule{},
		&MultiAccountRule{},
		&InventoryDuplicationRule{},
		&FailedValidationsRule{},
		&HoneypotDenylistRule{},
	}
}

// windowCount returns how many recent logs fall inside the trailing window
// ending at the analyzed entry's timestamp.
func windowCount(dc *DetectionContext, window time.Duration) int {
	cutoff := dc.LogEntry.CreatedAt.Add(-window)
	n := 0
	for _, log := range dc.RecentLogs {
		if log.CreatedAt.After(cutoff) && !log.CreatedAt.After(dc.LogEntry.CreatedAt) {
			n++
		}
	}
	return n
}

func failedValidation(log *telemetry.LogEntry) bool {
	v, ok := log.Metadata["validationFailed"].(bool)
	return ok && v
}

// ---------------------------------------------------------------------------
// velocity_violation: too many actions inside the trailing minute
// ---------------------------------------------------------------------------

type VelocityRule struct{}

func (r *VelocityRule) Name() string { return "velocity_violation" }

func (r *VelocityRule) Evaluate(dc *DetectionContext) *Detection {
	limit := dc.ConfigInt(ruleconfig.KeyVelocityMaxActionsPerMinute, 30)
	count := windowCount(dc, time.Minute)
	if count <= limit {
		return nil
	}
	return &Detection{
		Rule:        r.Name(),
		Severity:    SeverityHigh,
		Confidence:  0.95,
		Description: fmt.Sprintf("%d actions in 60s exceeds limit of %d", count, limit),
		Evidence: map[string]any{
			"actionCount":   count,
			"limit":         limit,
			"windowSeconds": 60,
		},
	}
}

// ---------------------------------------------------------------------------
// impossible_value: values no legitimate gameplay can produce
// ---------------------------------------------------------------------------

// maxCrimePayout is the largest amount any crime action can legitimately pay.
const maxCrimePayout = 50000

type ImpossibleValueRule struct{}

func (r *ImpossibleValueRule) Name() string { return "impossible_value" }

func (r *ImpossibleValueRule) Evaluate(dc *DetectionContext) *Detection {
	entry := dc.LogEntry

	if entry.ActionCategory == "economy" && entry.ValueDiff > maxCrimePayout {
		if source, ok := entry.Metadata["source"].(string); ok && source == "crime" {
			return &Detection{
				Rule:        r.Name(),
				Severity:    SeverityCritical,
				Confidence:  1.0,
				Description: fmt.Sprintf("crime payout of %d exceeds maximum possible %d", entry.ValueDiff, maxCrimePayout),
				Evidence: map[string]any{
					"amount": entry.ValueDiff,
					"source": source,
					"cap":    maxCrimePayout,
				},
			}
		}
	}

	if entry.ActionType == "level_up" && entry.ValueDiff > 5 {
		return &Detection{
			Rule:        r.Name(),
			Severity:    SeverityCritical,
			Confidence:  1.0,
			Description: fmt.Sprintf("level jump of %d in a single event", entry.ValueDiff),
			Evidence: map[string]any{
				"valueDiff": entry.ValueDiff,
				"maxJump":   5,
			},
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// clock_drift: client clock disagrees with the server
// ---------------------------------------------------------------------------

type ClockDriftRule struct{}

func (r *ClockDriftRule) Name() string { return "clock_drift" }

func (r *ClockDriftRule) Evaluate(dc *DetectionContext) *Detection {
	clientTS, ok := clientTimestamp(dc.LogEntry.Metadata)
	if !ok {
		return nil // rule only applies when the client reported a timestamp
	}

	tolerance := dc.ConfigInt(ruleconfig.KeyClockDriftToleranceSeconds, 30)
	drift := dc.LogEntry.CreatedAt.Sub(clientTS)
	if drift < 0 {
		drift = -drift
	}
	if int(drift.Seconds()) <= tolerance {
		return nil
	}
	return &Detection{
		Rule:        r.Name(),
		Severity:    SeverityHigh,
		Confidence:  0.90,
		Description: fmt.Sprintf("client clock drifts %.0fs from server, tolerance %ds", drift.Seconds(), tolerance),
		Evidence: map[string]any{
			"driftSeconds":     int(drift.Seconds()),
			"toleranceSeconds": tolerance,
			"clientTimestamp":  clientTS.UTC().Format(time.RFC3339),
			"serverTimestamp":  dc.LogEntry.CreatedAt.UTC().Format(time.RFC3339),
		},
	}
}

// clientTimestamp extracts the client-reported timestamp from metadata,
// accepting RFC3339 strings or unix-millisecond numbers.
func clientTimestamp(metadata map[string]any) (time.Time, bool) {
	switch v := metadata["clientTimestamp"].(type) {
	case string:
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	case float64:
		return time.UnixMilli(int64(v)), true
	case int64:
		return time.UnixMilli(v), true
	default:
		return time.Time{}, false
	}
}

// ---------------------------------------------------------------------------
// suspicious_money_gain: implausible income over the trailing hour
// ---------------------------------------------------------------------------

// maxHourlyGain is the largest plausible positive economy delta per hour.
const maxHourlyGain = 500000

type MoneyGainRule struct{}

func (r *MoneyGainRule) Name() string { return "suspicious_money_gain" }

func (r *MoneyGainRule) Evaluate(dc *DetectionContext) *Detection {
	cutoff := dc.LogEntry.CreatedAt.Add(-time.Hour)
	var total int64
	for _, log := range dc.RecentLogs {
		if log.ActionCategory != "economy" || log.ValueDiff <= 0 {
			continue
		}
		if log.CreatedAt.After(cutoff) && !log.CreatedAt.After(dc.LogEntry.CreatedAt) {
			total += log.ValueDiff
		}
	}
	if total <= maxHourlyGain {
		return nil
	}
	return &Detection{
		Rule:        r.Name(),
		Severity:    SeverityHigh,
		Confidence:  0.85,
		Description: fmt.Sprintf("gained %d in one hour, cap is %d", total, maxHourlyGain),
		Evidence: map[string]any{
			"totalGain":     total,
			"cap":           maxHourlyGain,
			"windowSeconds": 3600,
		},
	}
}

// ---------------------------------------------------------------------------
// bot_behavior: inhumanly regular action timing
// ---------------------------------------------------------------------------

const (
	botSampleSize  = 20
	botMinSample   = 10
	botMaxCV       = 0.15
	botMinInterval = 500 * time.Millisecond
	botMaxInterval = 120 * time.Second
)

type BotBehaviorRule struct{}

func (r *BotBehaviorRule) Name() string { return "bot_behavior" }

func (r *BotBehaviorRule) Evaluate(dc *DetectionContext) *Detection {
	logs := dc.RecentLogs
	if len(logs) > botSampleSize {
		logs = logs[:botSampleSize]
	}
	if len(logs) < botMinSample {
		return nil // too small a sample to judge
	}

	// logs are newest-first; intervals come out positive.
	intervals := make([]float64, 0, len(logs)-1)
	for i := 0; i < len(logs)-1; i++ {
		intervals = append(intervals, logs[i].CreatedAt.Sub(logs[i+1].CreatedAt).Seconds())
	}

	var sum float64
	for _, iv := range intervals {
		sum += iv
	}
	mean := sum / float64(len(intervals))
	if mean <= botMinInterval.Seconds() || mean >= botMaxInterval.Seconds() {
		return nil
	}

	var variance float64
	for _, iv := range intervals {
		variance += (iv - mean) * (iv - mean)
	}
	stddev := math.Sqrt(variance / float64(len(intervals)))
	cv := stddev / mean
	if cv >= botMaxCV {
		return nil
	}
	return &Detection{
		Rule:        r.Name(),
		Severity:    SeverityHigh,
		Confidence:  0.80,
		Description: fmt.Sprintf("action intervals too regular (cv=%.3f over %d actions)", cv, len(logs)),
		Evidence: map[string]any{
			"coefficientOfVariation": cv,
			"meanIntervalSeconds":    mean,
			"sampleSize":             len(logs),
			"maxCV":                  botMaxCV,
		},
	}
}

// ---------------------------------------------------------------------------
// pattern_match_probing: repeated failed validations ending in another one
// ---------------------------------------------------------------------------

const probingMinFailures = 5

type ProbingRule struct{}

func (r *ProbingRule) Name() string { return "pattern_match_probing" }

func (r *ProbingRule) Evaluate(dc *DetectionContext) *Detection {
	if !failedValidation(dc.LogEntry) {
		return nil
	}
	failures := 0
	for _, log := range dc.RecentLogs {
		if failedValidation(log) {
			failures++
		}
	}
	if failures <= probingMinFailures {
		return nil
	}
	return &Detection{
		Rule:        r.Name(),
		Severity:    SeverityMedium,
		Confidence:  0.75,
		Description: fmt.Sprintf("%d failed validations in recent history", failures),
		Evidence: map[string]any{
			"failedCount": failures,
			"threshold":   probingMinFailures,
			"windowSize":  len(dc.RecentLogs),
		},
	}
}

// ---------------------------------------------------------------------------
// pattern_match_honeypot: metadata carries internal-only keys
// ---------------------------------------------------------------------------

type HoneypotMetadataRule struct{}

func (r *HoneypotMetadataRule) Name() string { return "pattern_match_honeypot" }

func (r *HoneypotMetadataRule) Evaluate(dc *DetectionContext) *Detection {
	var hits []string
	for key := range dc.LogEntry.Metadata {
		if len(key) >= 2 && key[:2] == "__" {
			hits = append(hits, key)
		} else if key == "debugMode" {
			hits = append(hits, key)
		}
	}
	if len(hits) == 0 {
		return nil
	}
	return &Detection{
		Rule:        r.Name(),
		Severity:    SeverityCritical,
		Confidence:  0.99,
		Description: "event metadata contains internal-only keys",
		Evidence: map[string]any{
			"suspiciousKeys": hits,
		},
	}
}

// ---------------------------------------------------------------------------
// multi_account_detection: device shared across accounts
// ---------------------------------------------------------------------------

const multiAccountMinPlayers = 3

type MultiAccountRule struct{}

func (r *MultiAccountRule) Name() string { return "multi_account_detection" }

func (r *MultiAccountRule) Evaluate(dc *DetectionContext) *Detection {
	if dc.LogEntry.DeviceFingerprint == "" {
		return nil
	}
	others := dc.OtherPlayersOnDevice
	if len(others) < multiAccountMinPlayers {
		return nil
	}
	return &Detection{
		Rule:        r.Name(),
		Severity:    SeverityMedium,
		Confidence:  0.70,
		Description: fmt.Sprintf("%d other accounts share this device fingerprint", len(others)),
		Evidence: map[string]any{
			"otherPlayerCount": len(others),
			"otherPlayerIds":   others,
			"fingerprint":      dc.LogEntry.DeviceFingerprint,
		},
	}
}

// ---------------------------------------------------------------------------
// inventory_duplication: same item added repeatedly
// ---------------------------------------------------------------------------

type InventoryDuplicationRule struct{}

func (r *InventoryDuplicationRule) Name() string { return "inventory_duplication" }

func (r *InventoryDuplicationRule) Evaluate(dc *DetectionContext) *Detection {
	seen := make(map[string]int)
	var duplicated []string
	for _, itemID := range dc.RecentInventoryAdds {
		seen[itemID]++
		if seen[itemID] == 2 {
			duplicated = append(duplicated, itemID)
		}
	}
	if len(duplicated) == 0 {
		return nil
	}
	return &Detection{
		Rule:        r.Name(),
		Severity:    SeverityCritical,
		Confidence:  0.95,
		Description: fmt.Sprintf("item ids %v added more than once in recent history", duplicated),
		Evidence: map[string]any{
			"duplicatedItemIds": duplicated,
			"windowSize":        len(dc.RecentInventoryAdds),
		},
	}
}

// ---------------------------------------------------------------------------
// excessive_failed_validations: sustained failure rate over the hour
// ---------------------------------------------------------------------------

const failedValidationsHourlyMax = 10

type FailedValidationsRule struct{}

func (r *FailedValidationsRule) Name() string { return "excessive_failed_validations" }

func (r *FailedValidationsRule) Evaluate(dc *DetectionContext) *Detection {
	cutoff := dc.LogEntry.CreatedAt.Add(-time.Hour)
	failures := 0
	for _, log := range dc.RecentLogs {
		if failedValidation(log) && log.CreatedAt.After(cutoff) && !log.CreatedAt.After(dc.LogEntry.CreatedAt) {
			failures++
		}
	}
	if failures <= failedValidationsHourlyMax {
		return nil
	}
	return &Detection{
		Rule:        r.Name(),
		Severity:    SeverityHigh,
		Confidence:  0.85,
		Description: fmt.Sprintf("%d failed validations in the last hour", failures),
		Evidence: map[string]any{
			"failedCount":   failures,
			"threshold":     failedValidationsHourlyMax,
			"windowSeconds": 3600,
		},
	}
}

// ---------------------------------------------------------------------------
// honeypot_triggered: known bait flags that only cheat tools set
// ---------------------------------------------------------------------------

var honeypotKeys = []string{"__devMode", "__adminPanel", "__unlockAll", "__godMode", "debugEnabled"}

type HoneypotDenylistRule struct{}

func (r *HoneypotDenylistRule) Name() string { return "honeypot_triggered" }

func (r *HoneypotDenylistRule) Evaluate(dc *DetectionContext) *Detection {
	var hits []string
	for _, key := range honeypotKeys {
		if _, ok := dc.LogEntry.Metadata[key]; ok {
			hits = append(hits, key)
		}
	}
	if len(hits) == 0 {
		return nil
	}
	return &Detection{
		Rule:        r.Name(),
		Severity:    SeverityCritical,
		Confidence:  1.0,
		Description: fmt.Sprintf("honeypot flags set: %v", hits),
		Evidence: map[string]any{
			"triggeredKeys": hits,
		},
	}
}

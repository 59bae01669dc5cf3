// Package detection implements the behavioral anomaly detection engine.
//
// One invocation analyzes one action-log entry: build a DetectionContext
// from the stores, run every enabled rule against it, persist an alert per
// detection, add the severity-weighted delta to the player's risk score,
// then apply the automated response (auto-flag, critical audit entries).
package detection

import (
	"errors"

	"github.com/wardenhq/warden/internal/player"
	"github.com/wardenhq/warden/internal/telemetry"
)

// Severities, in ascending order of risk weight.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// ErrConfigUnavailable is returned when the rule configuration store cannot
// be read. Without configuration no rule can be trusted to evaluate
// correctly, so the whole invocation aborts.
var ErrConfigUnavailable = errors.New("detection: rule configuration unavailable")

// Detection is the output of one rule that fired.
type Detection struct {
	Rule        string         `json:"rule"`
	Severity    string         `json:"severity"`
	Confidence  float64        `json:"confidence"`
	Description string         `json:"description"`
	Evidence    map[string]any `json:"evidence,omitempty"`
}

// RiskPoints maps a severity to its risk score contribution.
func RiskPoints(severity string) int {
	switch severity {
	case SeverityCritical:
		return 25
	case SeverityHigh:
		return 15
	case SeverityMedium:
		return 10
	default:
		return 5
	}
}

// DetectionContext is the read-only snapshot a rule evaluates against.
// It is built once per invocation and never persisted.
type DetectionContext struct {
	PlayerID   string
	ActionType string
	LogEntry   *telemetry.LogEntry
	// RecentLogs is the player's most recent entries, newest first,
	// bounded by the configured history window. It includes LogEntry.
	RecentLogs []*telemetry.LogEntry
	Profile    *player.Profile // nil when the player is unknown
	RiskScore  int
	Config     map[string]any

	// OtherPlayersOnDevice holds the distinct ids of other players seen on
	// this entry's device fingerprint.
	OtherPlayersOnDevice []string
	// RecentInventoryAdds holds the player's most recent inventory "add"
	// item ids, newest first.
	RecentInventoryAdds []string
}

// ConfigInt reads an integer threshold from the context's config table,
// falling back to def when the key is absent or not numeric. Numeric JSON
// values arrive as float64.
func (c *DetectionContext) ConfigInt(key string, def int) int {
	switch v := c.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// ConfigBool reads a boolean toggle from the context's config table.
func (c *DetectionContext) ConfigBool(key string, def bool) bool {
	if v, ok := c.Config[key].(bool); ok {
		return v
	}
	return def
}

package detection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wardenhq/warden/internal/alerts"
	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/metrics"
	"github.com/wardenhq/warden/internal/player"
	"github.com/wardenhq/warden/internal/retry"
	"github.com/wardenhq/warden/internal/riskscore"
	"github.com/wardenhq/warden/internal/ruleconfig"
	"github.com/wardenhq/warden/internal/traces"
)

// AnalyzeRequest is the invocation contract.
type AnalyzeRequest struct {
	LogID      string `json:"logId" binding:"required"`
	PlayerID   string `json:"playerId"`
	ActionType string `json:"actionType"`
	// BatchMode suppresses realtime broadcasts during bulk reprocessing.
	BatchMode bool `json:"batchMode"`
}

// AnalyzeResult is the success response of one invocation.
type AnalyzeResult struct {
	Success             bool         `json:"success"`
	DetectionsTriggered int          `json:"detectionsTriggered"`
	NewRiskScore        int          `json:"newRiskScore"`
	Detections          []*Detection `json:"detections"`
	PlayerFlagged       bool         `json:"playerFlagged,omitempty"`
}

// Broadcaster pushes detection events to realtime subscribers. Implemented
// by the websocket hub; nil disables broadcasting.
type Broadcaster interface {
	BroadcastAlert(alert *alerts.SecurityAlert)
	BroadcastFlag(playerID string, newScore int)
}

// Engine runs one detection invocation per analyzed log entry. It holds no
// per-invocation state and is safe for concurrent use; the risk score
// store's AtomicAdd carries the only cross-invocation ordering requirement.
type Engine struct {
	builder *ContextBuilder
	rules   []Rule

	config  ruleconfig.Store
	alerts  alerts.Store
	scores  riskscore.Store
	players player.Store
	audit   audit.Store

	broadcaster Broadcaster
}

// NewEngine creates an engine over the given collaborators. rules defaults
// to DefaultRules() when nil; broadcaster may be nil.
func NewEngine(
	builder *ContextBuilder,
	rules []Rule,
	configStore ruleconfig.Store,
	alertStore alerts.Store,
	scoreStore riskscore.Store,
	playerStore player.Store,
	auditStore audit.Store,
	broadcaster Broadcaster,
) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Engine{
		builder:     builder,
		rules:       rules,
		config:      configStore,
		alerts:      alertStore,
		scores:      scoreStore,
		players:     playerStore,
		audit:       auditStore,
		broadcaster: broadcaster,
	}
}

// Analyze runs the full pipeline for one log entry: load config, build the
// context, evaluate rules, persist alerts, bump the risk score, apply the
// automated response. Alerts are written before the score increment so a
// retried invocation can deduplicate alerts by (logId, rule) while the
// score is only added once per successful pass.
func (e *Engine) Analyze(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResult, error) {
	start := time.Now()
	log := logging.L(ctx).With("logId", req.LogID)

	ctx, span := traces.StartSpan(ctx, "engine.Analyze", traces.LogID(req.LogID))
	defer span.End()

	cfg, err := LoadConfig(ctx, e.config)
	if err != nil {
		metrics.InvocationsTotal.WithLabelValues("config_error").Inc()
		return nil, err
	}

	dc, err := e.builder.Build(ctx, req.LogID, cfg)
	if err != nil {
		metrics.InvocationsTotal.WithLabelValues("build_error").Inc()
		return nil, err
	}
	span.SetAttributes(traces.PlayerID(dc.PlayerID))
	log = log.With("playerId", dc.PlayerID)

	detections := e.evaluate(ctx, dc)
	span.SetAttributes(traces.DetectionCount(len(detections)))

	newScore := dc.RiskScore
	if len(detections) > 0 {
		if err := e.persistAlerts(ctx, dc, detections, req.BatchMode); err != nil {
			metrics.InvocationsTotal.WithLabelValues("persist_error").Inc()
			return nil, err
		}

		delta := 0
		for _, d := range detections {
			delta += RiskPoints(d.Severity)
		}
		newScore, err = e.scores.AtomicAdd(ctx, dc.PlayerID, delta)
		if err != nil {
			metrics.InvocationsTotal.WithLabelValues("persist_error").Inc()
			return nil, fmt.Errorf("failed to update risk score: %w", err)
		}
		metrics.RiskPointsTotal.Add(float64(delta))
		span.SetAttributes(traces.RiskScore(newScore))

		log.Info("detections triggered",
			"count", len(detections),
			"delta", delta,
			"newRiskScore", newScore)
	}

	flagged, err := e.respond(ctx, dc, detections, newScore, req.BatchMode)
	if err != nil {
		metrics.InvocationsTotal.WithLabelValues("persist_error").Inc()
		return nil, err
	}

	metrics.InvocationsTotal.WithLabelValues("ok").Inc()
	metrics.InvocationDuration.Observe(time.Since(start).Seconds())

	return &AnalyzeResult{
		Success:             true,
		DetectionsTriggered: len(detections),
		NewRiskScore:        newScore,
		Detections:          detections,
		PlayerFlagged:       flagged,
	}, nil
}

// evaluate runs every enabled rule against the context. A panicking rule is
// logged and skipped; it never blocks the remaining rules.
func (e *Engine) evaluate(ctx context.Context, dc *DetectionContext) []*Detection {
	detections := make([]*Detection, 0, 2)
	for _, rule := range e.rules {
		if !dc.ConfigBool(rule.Name()+"_enabled", true) {
			continue
		}
		d := e.evaluateOne(ctx, rule, dc)
		if d == nil {
			continue
		}
		detections = append(detections, d)
		metrics.DetectionsTotal.WithLabelValues(d.Rule, d.Severity).Inc()
	}
	return detections
}

func (e *Engine) evaluateOne(ctx context.Context, rule Rule, dc *DetectionContext) (d *Detection) {
	defer func() {
		if r := recover(); r != nil {
			logging.L(ctx).Error("rule evaluation panicked",
				"rule", rule.Name(),
				"panic", fmt.Sprint(r))
			metrics.RuleFailuresTotal.WithLabelValues(rule.Name()).Inc()
			d = nil
		}
	}()
	return rule.Evaluate(dc)
}

// persistAlerts writes one alert per detection. Writes go through the retry
// helper; the store's (logId, rule) dedup makes retried writes safe.
func (e *Engine) persistAlerts(ctx context.Context, dc *DetectionContext, detections []*Detection, batchMode bool) error {
	for _, d := range detections {
		alert := &alerts.SecurityAlert{
			PlayerID:       dc.PlayerID,
			LogID:          dc.LogEntry.ID,
			AlertType:      d.Rule,
			Severity:       d.Severity,
			Confidence:     d.Confidence,
			Description:    d.Description,
			Evidence:       d.Evidence,
			RequiresReview: d.Severity == SeverityCritical,
		}

		err := retry.Do(ctx, 3, 50*time.Millisecond, func() error {
			_, err := e.alerts.Insert(ctx, alert)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to persist alert for rule %s: %w", d.Rule, err)
		}
		metrics.AlertsWrittenTotal.WithLabelValues(d.Severity).Inc()

		if e.broadcaster != nil && !batchMode {
			e.broadcaster.BroadcastAlert(alert)
		}
	}
	return nil
}

// respond applies the automated response: auto-flag when the updated score
// crosses the threshold, and audit every critical detection regardless of
// the threshold.
func (e *Engine) respond(ctx context.Context, dc *DetectionContext, detections []*Detection, newScore int, batchMode bool) (bool, error) {
	log := logging.L(ctx)

	var criticalRules []string
	for _, d := range detections {
		if d.Severity == SeverityCritical {
			criticalRules = append(criticalRules, d.Rule)
		}
	}
	if len(criticalRules) > 0 {
		err := e.audit.Append(ctx, &audit.Entry{
			PlayerID: dc.PlayerID,
			Action:   audit.ActionCriticalAlert,
			Detail:   fmt.Sprintf("critical detections: %s", strings.Join(criticalRules, ", ")),
			Context: map[string]any{
				"logId":     dc.LogEntry.ID,
				"rules":     criticalRules,
				"riskScore": newScore,
			},
		})
		if err != nil {
			return false, fmt.Errorf("failed to audit critical detections: %w", err)
		}
	}

	enabled := dc.ConfigBool(ruleconfig.KeyAutoFlagEnabled, true)
	threshold := dc.ConfigInt(ruleconfig.KeyAutoFlagThreshold, 150)
	if !enabled || newScore < threshold {
		return false, nil
	}
	alreadyFlagged := dc.Profile != nil && dc.Profile.Flagged

	if err := e.players.SetFlagged(ctx, dc.PlayerID, true); err != nil {
		if errors.Is(err, player.ErrNotFound) {
			// Telemetry for a player with no profile row yet. Nothing to
			// flag; the alerts and score still stand.
			log.Warn("auto-flag skipped, player profile missing", "playerId", dc.PlayerID)
			return false, nil
		}
		return false, fmt.Errorf("failed to flag player: %w", err)
	}

	if !alreadyFlagged {
		err := e.audit.Append(ctx, &audit.Entry{
			PlayerID: dc.PlayerID,
			Action:   audit.ActionPlayerFlagged,
			Detail:   fmt.Sprintf("risk score %d crossed threshold %d", newScore, threshold),
			Context: map[string]any{
				"logId":     dc.LogEntry.ID,
				"riskScore": newScore,
				"threshold": threshold,
			},
		})
		if err != nil {
			return false, fmt.Errorf("failed to audit player flag: %w", err)
		}
		metrics.PlayersFlaggedTotal.Inc()
		log.Warn("player auto-flagged", "playerId", dc.PlayerID, "riskScore", newScore)

		if e.broadcaster != nil && !batchMode {
			e.broadcaster.BroadcastFlag(dc.PlayerID, newScore)
		}
	}
	return true, nil
}

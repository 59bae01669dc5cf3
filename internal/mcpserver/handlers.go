package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *WardenClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *WardenClient) *Handlers {
	return &Handlers{client: client}
}

// HandleAnalyzeLog re-runs detection for one log entry.
func (h *Handlers) HandleAnalyzeLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logID := req.GetString("log_id", "")
	if logID == "" {
		return mcp.NewToolResultError("log_id is required"), nil
	}
	batchMode := req.GetBool("batch_mode", false)

	raw, err := h.client.AnalyzeLog(ctx, logID, batchMode)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Analysis failed: %v", err)), nil
	}

	text, err := formatAnalysis(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse analysis: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetPlayerRisk returns a player's score and flag state.
func (h *Handlers) HandleGetPlayerRisk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	playerID := req.GetString("player_id", "")
	if playerID == "" {
		return mcp.NewToolResultError("player_id is required"), nil
	}

	raw, err := h.client.GetPlayerRisk(ctx, playerID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get player risk: %v", err)), nil
	}

	text, err := formatRisk(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse risk: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleListPendingAlerts lists alerts awaiting review.
func (h *Handlers) HandleListPendingAlerts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(req.GetFloat("limit", 20))

	raw, err := h.client.ListPendingAlerts(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list alerts: %v", err)), nil
	}

	text, err := formatAlertList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse alerts: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetPlayerHistory combines a player's alerts and audit trail.
func (h *Handlers) HandleGetPlayerHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	playerID := req.GetString("player_id", "")
	if playerID == "" {
		return mcp.NewToolResultError("player_id is required"), nil
	}
	limit := int(req.GetFloat("limit", 20))

	alertsRaw, err := h.client.ListPlayerAlerts(ctx, playerID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get alerts: %v", err)), nil
	}
	auditRaw, err := h.client.ListPlayerAudit(ctx, playerID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get audit trail: %v", err)), nil
	}

	alertsText, err := formatAlertList(alertsRaw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse alerts: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "History for player %s\n\n", playerID)
	sb.WriteString("Alerts:\n")
	sb.WriteString(alertsText)
	sb.WriteString("\nAutomated actions:\n")
	sb.WriteString(formatJSON(auditRaw))
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleReviewAlert resolves a pending alert.
func (h *Handlers) HandleReviewAlert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	alertID := req.GetString("alert_id", "")
	status := req.GetString("status", "")
	if alertID == "" || status == "" {
		return mcp.NewToolResultError("alert_id and status are required"), nil
	}
	if status != "reviewed" && status != "dismissed" {
		return mcp.NewToolResultError("status must be 'reviewed' or 'dismissed'"), nil
	}

	if _, err := h.client.SetAlertStatus(ctx, alertID, status); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update alert: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Alert %s marked %s.", alertID, status)), nil
}

// ---------------------------------------------------------------------------
// Response formatting
// ---------------------------------------------------------------------------

func formatAnalysis(raw json.RawMessage) (string, error) {
	var resp struct {
		DetectionsTriggered int `json:"detectionsTriggered"`
		NewRiskScore        int `json:"newRiskScore"`
		Detections          []struct {
			Rule        string  `json:"rule"`
			Severity    string  `json:"severity"`
			Confidence  float64 `json:"confidence"`
			Description string  `json:"description"`
		} `json:"detections"`
		PlayerFlagged bool `json:"playerFlagged"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if resp.DetectionsTriggered == 0 {
		return fmt.Sprintf("No detections. Risk score unchanged at %d.", resp.NewRiskScore), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d detection(s), risk score now %d:\n\n", resp.DetectionsTriggered, resp.NewRiskScore)
	for i, d := range resp.Detections {
		fmt.Fprintf(&sb, "%d. %s [%s, confidence %.2f]\n", i+1, d.Rule, d.Severity, d.Confidence)
		if d.Description != "" {
			fmt.Fprintf(&sb, "   %s\n", d.Description)
		}
	}
	if resp.PlayerFlagged {
		sb.WriteString("\nPlayer has been AUTO-FLAGGED.\n")
	}
	return sb.String(), nil
}

func formatRisk(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Player Risk:\n")
	if v := getString(m, "playerId"); v != "" {
		fmt.Fprintf(&sb, "  Player: %s\n", v)
	}
	if v := getString(m, "username"); v != "" {
		fmt.Fprintf(&sb, "  Username: %s\n", v)
	}
	if v, ok := getFloat(m, "totalRiskScore"); ok {
		fmt.Fprintf(&sb, "  Risk Score: %.0f\n", v)
	}
	if flagged, ok := m["flagged"].(bool); ok {
		fmt.Fprintf(&sb, "  Flagged: %t\n", flagged)
	}
	return sb.String(), nil
}

func formatAlertList(raw json.RawMessage) (string, error) {
	var resp struct {
		Alerts []map[string]any `json:"alerts"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Alerts == nil {
		// Try as direct array
		if err := json.Unmarshal(raw, &resp.Alerts); err != nil {
			return "", fmt.Errorf("unexpected alerts response format")
		}
	}

	if len(resp.Alerts) == 0 {
		return "No alerts found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d alert(s):\n\n", len(resp.Alerts))
	for i, a := range resp.Alerts {
		fmt.Fprintf(&sb, "%d. [%s] %s - player %s (alert %s)\n",
			i+1, getString(a, "severity"), getString(a, "alertType"),
			getString(a, "playerId"), getString(a, "id"))
		if desc := getString(a, "description"); desc != "" {
			fmt.Fprintf(&sb, "   %s\n", desc)
		}
	}
	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}

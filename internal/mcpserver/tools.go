package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Warden MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolAnalyzeLog = mcp.NewTool("analyze_log",
	mcp.WithDescription(
		"Run the anti-cheat detection engine against a stored action log entry. "+
			"Returns the triggered rules, their severities, and the player's updated risk score. "+
			"Use this to re-check a suspicious event a moderator is looking at."),
	mcp.WithString("log_id",
		mcp.Required(),
		mcp.Description("The action log entry id (e.g. 'log_a1b2c3')")),
	mcp.WithBoolean("batch_mode",
		mcp.Description("Suppress realtime dashboard broadcasts (use when re-analyzing in bulk)")),
)

var ToolGetPlayerRisk = mcp.NewTool("get_player_risk",
	mcp.WithDescription(
		"Get a player's current cumulative risk score and whether they are flagged. "+
			"Risk accumulates from detections: critical=25, high=15, medium=10, low=5 points; "+
			"players are auto-flagged at the configured threshold (default 150)."),
	mcp.WithString("player_id",
		mcp.Required(),
		mcp.Description("The player's id")),
)

var ToolListPendingAlerts = mcp.NewTool("list_pending_alerts",
	mcp.WithDescription(
		"List security alerts awaiting human review, oldest first. "+
			"Critical alerts always require review. Use get_player_history for context on a specific player."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of alerts to return (default 20)")),
)

var ToolGetPlayerHistory = mcp.NewTool("get_player_history",
	mcp.WithDescription(
		"Get a player's enforcement history: their alerts (which rules fired, with evidence) "+
			"and the automated actions taken against them (flags, critical-detection audit entries)."),
	mcp.WithString("player_id",
		mcp.Required(),
		mcp.Description("The player's id")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum entries per section (default 20)")),
)

var ToolReviewAlert = mcp.NewTool("review_alert",
	mcp.WithDescription(
		"Resolve a pending security alert after review. "+
			"Mark it 'reviewed' when the detection was correct or 'dismissed' for a false positive."),
	mcp.WithString("alert_id",
		mcp.Required(),
		mcp.Description("The alert id (e.g. 'alert_a1b2c3')")),
	mcp.WithString("status",
		mcp.Required(),
		mcp.Description("The resolution: 'reviewed' or 'dismissed'"),
		mcp.Enum("reviewed", "dismissed")),
)

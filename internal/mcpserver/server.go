package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Warden tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("warden", "1.0.0")
	client := NewWardenClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolAnalyzeLog, h.HandleAnalyzeLog)
	s.AddTool(ToolGetPlayerRisk, h.HandleGetPlayerRisk)
	s.AddTool(ToolListPendingAlerts, h.HandleListPendingAlerts)
	s.AddTool(ToolGetPlayerHistory, h.HandleGetPlayerHistory)
	s.AddTool(ToolReviewAlert, h.HandleReviewAlert)

	return s
}

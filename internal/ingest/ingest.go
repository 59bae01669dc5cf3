// Package ingest exposes the telemetry write path: accept one player
// action, persist it and its side records, then run the detection engine
// on the fresh entry.
package ingest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/internal/detection"
	"github.com/wardenhq/warden/internal/idgen"
	"github.com/wardenhq/warden/internal/inventory"
	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/sessions"
	"github.com/wardenhq/warden/internal/telemetry"
	"github.com/wardenhq/warden/internal/validation"
)

// Request is the body of POST /v1/logs.
type Request struct {
	PlayerID          string         `json:"playerId" binding:"required"`
	ActionType        string         `json:"actionType" binding:"required"`
	ActionCategory    string         `json:"actionCategory"`
	ValueDiff         int64          `json:"valueDiff"`
	Metadata          map[string]any `json:"metadata"`
	DeviceFingerprint string         `json:"deviceFingerprint"`
	// BatchMode is forwarded to the engine, suppressing realtime
	// broadcasts during bulk replays.
	BatchMode bool `json:"batchMode"`
}

// Handler accepts action telemetry and feeds it through the engine.
type Handler struct {
	logs      telemetry.Store
	sessions  sessions.Store
	inventory inventory.Store
	engine    *detection.Engine
}

// NewHandler creates an ingestion handler.
func NewHandler(logs telemetry.Store, sessionStore sessions.Store,
	inventoryStore inventory.Store, engine *detection.Engine) *Handler {
	return &Handler{
		logs:      logs,
		sessions:  sessionStore,
		inventory: inventoryStore,
		engine:    engine,
	}
}

// RegisterRoutes sets up ingestion routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/logs", h.IngestLog)
	r.GET("/logs/:id", h.GetLog)
}

// IngestLog handles POST /v1/logs
func (h *Handler) IngestLog(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "playerId and actionType are required",
		})
		return
	}
	if !validation.IsValidID(req.PlayerID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "playerId must be 1-64 chars of [a-zA-Z0-9_-]",
		})
		return
	}

	ctx := c.Request.Context()
	entry := &telemetry.LogEntry{
		ID:                idgen.WithPrefix("log_"),
		PlayerID:          req.PlayerID,
		ActionType:        validation.SanitizeString(req.ActionType, 64),
		ActionCategory:    validation.SanitizeString(req.ActionCategory, 64),
		ValueDiff:         req.ValueDiff,
		Metadata:          req.Metadata,
		DeviceFingerprint: validation.SanitizeString(req.DeviceFingerprint, 128),
		CreatedAt:         time.Now(),
	}

	if err := h.logs.Insert(ctx, entry); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	// Side records feed the multi-account and duplication detectors. Their
	// failure is logged but does not reject the telemetry write.
	if entry.DeviceFingerprint != "" {
		if err := h.sessions.Record(ctx, entry.PlayerID, entry.DeviceFingerprint); err != nil {
			logging.L(ctx).Error("failed to record session", "playerId", entry.PlayerID, "error", err)
		}
	}
	if change := inventoryChange(entry); change != nil {
		if err := h.inventory.Record(ctx, change); err != nil {
			logging.L(ctx).Error("failed to record inventory change", "playerId", entry.PlayerID, "error", err)
		}
	}

	result, err := h.engine.Analyze(ctx, &detection.AnalyzeRequest{
		LogID:      entry.ID,
		PlayerID:   entry.PlayerID,
		ActionType: entry.ActionType,
		BatchMode:  req.BatchMode,
	})
	if err != nil {
		logging.L(ctx).Error("analysis failed after ingestion", "logId", entry.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
			"logId":   entry.ID,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"logId":    entry.ID,
		"analysis": result,
	})
}

// GetLog handles GET /v1/logs/:id
func (h *Handler) GetLog(c *gin.Context) {
	entry, err := h.logs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, telemetry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No log entry found with this id",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": entry})
}

// inventoryChange extracts an inventory mutation from an inventory-category
// entry carrying itemId metadata.
func inventoryChange(entry *telemetry.LogEntry) *inventory.Change {
	if entry.ActionCategory != "inventory" {
		return nil
	}
	itemID, ok := entry.Metadata["itemId"].(string)
	if !ok || itemID == "" {
		return nil
	}
	changeType := inventory.ChangeAdd
	if ct, ok := entry.Metadata["changeType"].(string); ok && ct == inventory.ChangeRemove {
		changeType = inventory.ChangeRemove
	}
	quantity := 1
	if q, ok := entry.Metadata["quantity"].(float64); ok && q > 0 {
		quantity = int(q)
	}
	return &inventory.Change{
		PlayerID:   entry.PlayerID,
		ItemID:     itemID,
		ChangeType: changeType,
		Quantity:   quantity,
		CreatedAt:  entry.CreatedAt,
	}
}

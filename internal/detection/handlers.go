package detection

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/internal/alerts"
	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/player"
	"github.com/wardenhq/warden/internal/riskscore"
	"github.com/wardenhq/warden/internal/telemetry"
)

// Handler provides the analysis endpoint and the moderation read API.
type Handler struct {
	engine  *Engine
	alerts  alerts.Store
	scores  riskscore.Store
	players player.Store
	audit   audit.Store
	logs    telemetry.Store
}

// NewHandler creates a detection handler.
func NewHandler(engine *Engine, alertStore alerts.Store, scoreStore riskscore.Store,
	playerStore player.Store, auditStore audit.Store, logStore telemetry.Store) *Handler {
	return &Handler{
		engine:  engine,
		alerts:  alertStore,
		scores:  scoreStore,
		players: playerStore,
		audit:   auditStore,
		logs:    logStore,
	}
}

// RegisterRoutes sets up detection and moderation routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/analyze", h.Analyze)
	r.GET("/players/:id/risk", h.GetPlayerRisk)
	r.GET("/players/:id/alerts", h.ListPlayerAlerts)
	r.GET("/players/:id/audit", h.ListPlayerAudit)
	r.GET("/alerts/pending", h.ListPendingAlerts)
	r.GET("/alerts/:id", h.GetAlert)
}

// RegisterModeratorRoutes sets up routes requiring moderator access.
func (h *Handler) RegisterModeratorRoutes(r *gin.RouterGroup) {
	r.POST("/alerts/:id/status", h.SetAlertStatus)
}

// Analyze handles POST /v1/analyze
func (h *Handler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "logId is required",
		})
		return
	}

	result, err := h.engine.Analyze(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, telemetry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No log entry found with this id",
			})
			return
		}
		logging.L(c.Request.Context()).Error("analysis failed", "logId", req.LogID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetPlayerRisk handles GET /v1/players/:id/risk
func (h *Handler) GetPlayerRisk(c *gin.Context) {
	playerID := c.Param("id")

	score, err := h.scores.Get(c.Request.Context(), playerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	resp := gin.H{
		"playerId":       playerID,
		"totalRiskScore": score,
	}
	profile, err := h.players.GetByID(c.Request.Context(), playerID)
	if err == nil {
		resp["flagged"] = profile.Flagged
		resp["username"] = profile.Username
	} else if !errors.Is(err, player.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListPlayerAlerts handles GET /v1/players/:id/alerts
func (h *Handler) ListPlayerAlerts(c *gin.Context) {
	list, err := h.alerts.ListByPlayer(c.Request.Context(), c.Param("id"), queryLimit(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": list, "count": len(list)})
}

// ListPlayerAudit handles GET /v1/players/:id/audit
func (h *Handler) ListPlayerAudit(c *gin.Context) {
	list, err := h.audit.ListByPlayer(c.Request.Context(), c.Param("id"), queryLimit(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": list, "count": len(list)})
}

// ListPendingAlerts handles GET /v1/alerts/pending
func (h *Handler) ListPendingAlerts(c *gin.Context) {
	list, err := h.alerts.ListPending(c.Request.Context(), queryLimit(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": list, "count": len(list)})
}

// GetAlert handles GET /v1/alerts/:id
func (h *Handler) GetAlert(c *gin.Context) {
	alert, err := h.alerts.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No alert found with this id",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert": alert})
}

// SetAlertStatus handles POST /v1/alerts/:id/status
func (h *Handler) SetAlertStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "status is required",
		})
		return
	}

	err := h.alerts.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No alert found with this id",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": req.Status})
}

func queryLimit(c *gin.Context, def int) int {
	limit := def
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	return limit
}

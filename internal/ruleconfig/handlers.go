package ruleconfig

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/logging"
)

// Handler provides the admin API for runtime rule tuning. The engine reads
// the store fresh each invocation, so changes apply immediately.
type Handler struct {
	store Store
	audit audit.Store
}

// NewHandler creates a rule config handler.
func NewHandler(store Store, auditStore audit.Store) *Handler {
	return &Handler{store: store, audit: auditStore}
}

// RegisterAdminRoutes sets up admin-only rule config routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/rules", h.ListRules)
	r.PUT("/rules", h.UpsertRule)
	r.DELETE("/rules/:key", h.DeleteRule)
}

// ListRules handles GET /v1/admin/rules
func (h *Handler) ListRules(c *gin.Context) {
	entries, err := h.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rules":    entries,
		"count":    len(entries),
		"defaults": Defaults(),
	})
}

// UpsertRule handles PUT /v1/admin/rules
func (h *Handler) UpsertRule(c *gin.Context) {
	var req struct {
		Key     string `json:"key" binding:"required"`
		Value   any    `json:"value" binding:"required"`
		Enabled *bool  `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "key and value are required",
		})
		return
	}
	switch req.Value.(type) {
	case bool, float64:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "value must be a boolean or a number",
		})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	entry := &Entry{Key: req.Key, Value: req.Value, Enabled: enabled}
	if err := h.store.Upsert(c.Request.Context(), entry); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	if err := h.audit.Append(c.Request.Context(), &audit.Entry{
		Action: audit.ActionRuleConfigSaved,
		Detail: "rule config updated: " + req.Key,
		Context: map[string]any{
			"key":     req.Key,
			"value":   req.Value,
			"enabled": enabled,
		},
	}); err != nil {
		logging.L(c.Request.Context()).Error("failed to audit config change", "key", req.Key, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"rule": entry})
}

// DeleteRule handles DELETE /v1/admin/rules/:key
func (h *Handler) DeleteRule(c *gin.Context) {
	key := c.Param("key")
	if err := h.store.Delete(c.Request.Context(), key); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No config entry with this key",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": key})
}

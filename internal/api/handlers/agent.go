package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mailpilot/agent/internal/api/middleware"
	"github.com/mailpilot/agent/internal/services"
)

// AgentHandler handles status, settings and action log requests for the
// authenticated account
type AgentHandler struct {
	accountService *services.AccountService
	logService     *services.LogService
	scheduler      *services.Scheduler
}

// NewAgentHandler creates a new AgentHandler instance
func NewAgentHandler(accountService *services.AccountService, logService *services.LogService, scheduler *services.Scheduler) *AgentHandler {
	return &AgentHandler{
		accountService: accountService,
		logService:     logService,
		scheduler:      scheduler,
	}
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "AUTH_FAILED",
			"message": "Account not authenticated",
		},
	})
}

func accountError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "Account not found",
			},
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "INTERNAL_ERROR",
			"message": err.Error(),
		},
	})
}

// GetStatus returns the scheduling state of the account
// GET /api/agent/status
func (h *AgentHandler) GetStatus(c *gin.Context) {
	_, email, ok := middleware.GetAccountFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}

	status, err := h.accountService.GetStatus(email, time.Now())
	if err != nil {
		accountError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    status,
	})
}

// SettingsRequest represents an interval update
type SettingsRequest struct {
	Interval int `json:"interval" binding:"required,min=1"`
}

// UpdateSettings changes the polling interval
// PUT /api/agent/settings
func (h *AgentHandler) UpdateSettings(c *gin.Context) {
	_, email, ok := middleware.GetAccountFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}

	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request body",
				"details": err.Error(),
			},
		})
		return
	}

	if err := h.accountService.SetInterval(email, req.Interval); err != nil {
		accountError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"interval": req.Interval},
	})
}

// ToggleRequest represents an active flag change
type ToggleRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// Toggle switches the agent on or off for the account
// PUT /api/agent/toggle
func (h *AgentHandler) Toggle(c *gin.Context) {
	_, email, ok := middleware.GetAccountFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}

	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request body",
				"details": err.Error(),
			},
		})
		return
	}

	if err := h.accountService.SetActive(email, *req.Active); err != nil {
		accountError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"active": *req.Active},
	})
}

// ListLogs returns recent action log entries for the account
// GET /api/agent/logs
func (h *AgentHandler) ListLogs(c *gin.Context) {
	accountID, _, ok := middleware.GetAccountFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}

	limit := 50
	if val := c.Query("limit"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			limit = n
		}
	}

	logs, err := h.logService.ListByAccount(accountID, limit)
	if err != nil {
		accountError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    logs,
	})
}

// Run triggers an out-of-band cycle for the account
// POST /api/agent/run
func (h *AgentHandler) Run(c *gin.Context) {
	accountID, _, ok := middleware.GetAccountFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}

	if err := h.scheduler.TriggerAccount(accountID); err != nil {
		if errors.Is(err, services.ErrCycleInProgress) {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "CYCLE_IN_PROGRESS",
					"message": "A cycle for this account is already running",
				},
			})
			return
		}
		accountError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"message": "Cycle completed"},
	})
}

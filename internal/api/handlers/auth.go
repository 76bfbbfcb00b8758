package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mailpilot/agent/internal/api/middleware"
	"github.com/mailpilot/agent/internal/services"
)

// AuthHandler handles account registration and login
type AuthHandler struct {
	accountService *services.AccountService
	scheduler      *services.Scheduler
	jwtManager     *middleware.JWTManager
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(accountService *services.AccountService, scheduler *services.Scheduler, jwtManager *middleware.JWTManager) *AuthHandler {
	return &AuthHandler{
		accountService: accountService,
		scheduler:      scheduler,
		jwtManager:     jwtManager,
	}
}

// LoginRequest represents the login/registration request
type LoginRequest struct {
	Email       string `json:"email" binding:"required,email"`
	AppPassword string `json:"app_password" binding:"required"`
	APIKey      string `json:"openrouter_key" binding:"required"`
	Interval    int    `json:"interval"`
}

// Login registers the account (or refreshes its credentials), verifies the
// mailbox password with a live IMAP login and issues a session token. An
// account that has never run gets an immediate first cycle in the background.
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
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

	account, err := h.accountService.Register(services.RegisterInput{
		Email:           req.Email,
		Password:        req.AppPassword,
		APIKey:          req.APIKey,
		IntervalMinutes: req.Interval,
	})
	if err != nil {
		status := http.StatusInternalServerError
		code := "INTERNAL_ERROR"
		switch {
		case errors.Is(err, services.ErrInvalidAccountData):
			status = http.StatusBadRequest
			code = "VALIDATION_ERROR"
		case errors.Is(err, services.ErrLoginFailed):
			status = http.StatusUnauthorized
			code = "LOGIN_FAILED"
		}
		c.JSON(status, gin.H{
			"success": false,
			"error": gin.H{
				"code":    code,
				"message": err.Error(),
			},
		})
		return
	}

	token, expiresAt, err := h.jwtManager.GenerateToken(account.ID, account.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to issue token",
			},
		})
		return
	}

	// First registration: kick off a cycle right away instead of waiting for
	// the next tick
	if account.LastRunAt == nil {
		accountID := account.ID
		go func() {
			if err := h.scheduler.TriggerAccount(accountID); err != nil {
				log.Printf("[API] First cycle for account %d failed to start: %v", accountID, err)
			}
		}()
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"token":      token,
			"expires_at": expiresAt,
			"email":      account.Email,
			"interval":   account.IntervalMinutes,
		},
	})
}

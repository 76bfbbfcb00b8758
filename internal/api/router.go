package api

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mailpilot/agent/internal/agent"
	"github.com/mailpilot/agent/internal/api/handlers"
	"github.com/mailpilot/agent/internal/api/middleware"
	"github.com/mailpilot/agent/internal/classify"
	"github.com/mailpilot/agent/internal/config"
	"github.com/mailpilot/agent/internal/llm"
	"github.com/mailpilot/agent/internal/mailbox"
	"github.com/mailpilot/agent/internal/services"
	"gorm.io/gorm"
)

// SetupRouter wires the pipeline and returns the Gin router plus the
// scheduler that owns the tick loop. The caller starts and stops the
// scheduler with the process lifecycle.
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *services.Scheduler, error) {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(cfg.CORSOrigins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	jwtManager := middleware.NewJWTManager(cfg.JWTSecret, middleware.DefaultTokenExpiry)

	// Pipeline components
	gateway := mailbox.NewIMAPGateway()
	classifier := classify.NewClassifier(classify.Ruleset{
		Promotional: cfg.Keywords.Promotional,
		Meeting:     cfg.Keywords.Meeting,
		Support:     cfg.Keywords.Support,
		NoReply:     cfg.Keywords.NoReply,
	})
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMModel)
	runner := agent.NewRunner(gateway, classifier, llmClient, cfg.FetchLimit)

	// Services
	accountService := services.NewAccountService(db, cfg.GetEncryptionKey(), gateway, services.ServerDefaults{
		IMAPHost: cfg.IMAPHost,
		IMAPPort: cfg.IMAPPort,
		SMTPHost: cfg.SMTPHost,
		SMTPPort: cfg.SMTPPort,
	})
	logService := services.NewLogService(db)
	scheduler := services.NewScheduler(accountService, logService, runner, cfg.TickInterval())

	// Handlers
	authHandler := handlers.NewAuthHandler(accountService, scheduler, jwtManager)
	agentHandler := handlers.NewAgentHandler(accountService, logService, scheduler)

	// Health check endpoint (no auth required)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
		}

		protected := api.Group("/agent")
		protected.Use(middleware.JWTMiddleware(jwtManager))
		{
			protected.GET("/status", agentHandler.GetStatus)
			protected.PUT("/settings", agentHandler.UpdateSettings)
			protected.PUT("/toggle", agentHandler.Toggle)
			protected.GET("/logs", agentHandler.ListLogs)
			protected.POST("/run", agentHandler.Run)
		}
	}

	return router, scheduler, nil
}

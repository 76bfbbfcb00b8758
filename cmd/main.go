package main

import (
	"log"
	"os"

	"github.com/mailpilot/agent/internal/api"
	"github.com/mailpilot/agent/internal/cli"
	"github.com/mailpilot/agent/internal/config"
	"github.com/mailpilot/agent/internal/database"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Initialize database
	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Check if running a CLI command
	if len(os.Args) > 1 {
		cli.Execute(db, cfg)
		return
	}

	// Start API server and scheduler
	router, scheduler, err := api.SetupRouter(db, cfg)
	if err != nil {
		log.Fatalf("Failed to setup router: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.Printf("Starting Mail Pilot server on port %s", cfg.APIPort)
	log.Printf("Database path: %s", cfg.DatabasePath)
	log.Printf("Scheduler tick: %v", cfg.TickInterval())
	if err := router.Run(":" + cfg.APIPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"catalogsync/internal/app"
	"catalogsync/internal/config"
	"catalogsync/internal/database"
	"catalogsync/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	logger := logger.NewForEnv(cfg.LogLevel, cfg.Env)
	defer logger.Sync()

	db, err := database.New(cfg.DatabaseURL, cfg.LogLevel)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to migrate database: %v", err)
	}

	a, err := app.Build(cfg, db, logger)
	if err != nil {
		logger.Fatal("Failed to build components: %v", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting worker...")
	if err := a.Worker.Start(ctx); err != nil {
		logger.Error("Worker stopped: %v", err)
	}
	logger.Info("Worker shut down")
}

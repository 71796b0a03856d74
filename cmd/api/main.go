package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

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

	if err := a.SeedStores(context.Background()); err != nil {
		logger.Fatal("Failed to seed stores: %v", err)
	}

	server := a.Server()
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}
}

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

	"github.com/plew99/cytokines-metaanalysis/adapters/api"
	"github.com/plew99/cytokines-metaanalysis/internal"
	"github.com/plew99/cytokines-metaanalysis/internal/config"
	"github.com/plew99/cytokines-metaanalysis/internal/container"
	"github.com/plew99/cytokines-metaanalysis/internal/database"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load application configuration (.env is read by config.Load when present)
	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := internal.NewLogger(internal.ParseLogLevel(appConfig.LogLevel))
	defer logger.Sync()
	gin.SetMode(appConfig.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.OpenAndMigrate(ctx, appConfig)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Create dependency injection container
	appContainer, err := container.New(ctx, appConfig, logger)
	if err != nil {
		db.Close()
		log.Fatalf("Failed to create application container: %v", err)
	}
	defer appContainer.Shutdown(context.Background())

	if err := appContainer.InitWithDatabase(db); err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	if err := appContainer.StartAudit(); err != nil {
		log.Fatalf("Failed to schedule audit: %v", err)
	}

	server := api.NewServer(api.Services{
		Studies: appContainer.Studies,
		Effects: appContainer.Effects,
		Imports: appContainer.Imports,
		Metrics: appContainer.Metrics,
	}, logger)

	httpServer := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting on port %s", appConfig.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}
}

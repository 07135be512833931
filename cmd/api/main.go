package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattgold/scoutline/internal/api"
	"github.com/mattgold/scoutline/internal/api/handler"
	"github.com/mattgold/scoutline/internal/api/middleware"
	"github.com/mattgold/scoutline/internal/config"
	"github.com/mattgold/scoutline/internal/gateway"
	"github.com/mattgold/scoutline/internal/ingest"
	"github.com/mattgold/scoutline/internal/logger"
	"github.com/mattgold/scoutline/internal/repository"
	"github.com/mattgold/scoutline/internal/resolver"
	"github.com/mattgold/scoutline/internal/service"
	"github.com/mattgold/scoutline/internal/storage"
)

func main() {
	// Initialize logger first
	appLogger := logger.NewFromEnv()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	jobRepo := repository.NewJobRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	resultRepo := repository.NewResultRepository(db)
	resolutionRepo := repository.NewResolutionRepository(db)
	choiceRepo := repository.NewChoiceRepository(db)

	// Initialize upload archive when configured
	var objectStorage storage.ObjectStorage
	if cfg.Storage.Enabled {
		s3Storage, err := storage.NewS3Storage(&cfg.Storage)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}
		if err := s3Storage.EnsureBucket(context.Background()); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
		objectStorage = s3Storage
	}

	// Initialize the outbound gateway
	gw := gateway.New(
		gateway.NewHTTPClient(&gateway.ClientConfig{
			BaseURL: cfg.Gateway.BaseURL,
			APIKey:  cfg.Gateway.APIKey,
			Timeout: cfg.Gateway.Timeout,
		}),
		&gateway.Config{
			Policies: buildPolicies(cfg.Gateway.Budgets),
			Retry: gateway.RetryPolicy{
				MaxAttempts: cfg.Gateway.Retry.MaxAttempts,
				BaseDelay:   cfg.Gateway.Retry.BaseDelay,
				MaxDelay:    cfg.Gateway.Retry.MaxDelay,
			},
		},
		appLogger,
	)

	// Initialize services
	upcResolver := resolver.New(resolutionRepo, choiceRepo, gw, &resolver.Config{
		Marketplace:   cfg.Pipeline.Marketplace,
		MaxCandidates: cfg.Pipeline.MaxCandidates,
	}, appLogger)

	orchestrator := service.NewOrchestrator(
		jobRepo,
		chunkRepo,
		resultRepo,
		upcResolver,
		service.NewGatewayEnricher(gw, appLogger),
		service.Config{
			ChunkSize:       cfg.Pipeline.ChunkSize,
			Workers:         cfg.Pipeline.Workers,
			ErrorSummaryCap: cfg.Pipeline.ErrorSummaryCap,
		},
		appLogger,
	)

	// Setup router
	scanHandler := handler.NewScanHandler(orchestrator, ingest.NewParser(), resultRepo, jobRepo, objectStorage)
	resolutionHandler := handler.NewResolutionHandler(resolutionRepo, upcResolver, gw)
	router := api.SetupRouter(scanHandler, resolutionHandler, cfg.Server.Mode, middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}, appLogger)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}

// buildPolicies overlays configured budgets on the built-in defaults. Absent
// fields keep the default for that capability.
func buildPolicies(budgets map[string]config.CapabilityBudget) map[gateway.Capability]gateway.Policy {
	policies := gateway.DefaultPolicies()
	for name, budget := range budgets {
		cap := gateway.Capability(name)
		policy, ok := policies[cap]
		if !ok {
			continue
		}
		if budget.RatePerSec > 0 {
			policy.RatePerSec = budget.RatePerSec
		}
		if budget.Burst > 0 {
			policy.Burst = budget.Burst
		}
		if budget.CacheTTL > 0 {
			policy.CacheTTL = budget.CacheTTL
		}
		policies[cap] = policy
	}
	return policies
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattgold/scoutline/internal/config"
	"github.com/mattgold/scoutline/internal/gateway"
	"github.com/mattgold/scoutline/internal/ingest"
	"github.com/mattgold/scoutline/internal/logger"
	"github.com/mattgold/scoutline/internal/repository"
	"github.com/mattgold/scoutline/internal/resolver"
	"github.com/mattgold/scoutline/internal/service"
)

// scan runs one supplier list through the pipeline from the command line and
// blocks until the job is terminal.
func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "scoutline-scan",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	filePath := flag.String("file", "", "Supplier CSV file to scan")
	tenantID := flag.String("tenant", "", "Tenant the scan belongs to")
	marketplace := flag.String("marketplace", "", "Marketplace to analyze against (default from config)")
	codeColumn := flag.String("code-column", "upc", "Column holding the product code (name or index)")
	costColumn := flag.String("cost-column", "cost", "Column holding the wholesale cost (name or index)")
	packColumn := flag.String("pack-column", "", "Column holding the pack size (optional)")
	noHeader := flag.Bool("no-header", false, "File has no header row; columns must be indexes")
	chunkSize := flag.Int("chunk-size", 0, "Rows per chunk (default from config)")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *filePath == "" || *tenantID == "" {
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if *marketplace == "" {
		*marketplace = cfg.Pipeline.Marketplace
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

	// Initialize the outbound gateway and pipeline services
	gw := gateway.New(
		gateway.NewHTTPClient(&gateway.ClientConfig{
			BaseURL: cfg.Gateway.BaseURL,
			APIKey:  cfg.Gateway.APIKey,
			Timeout: cfg.Gateway.Timeout,
		}),
		&gateway.Config{
			Retry: gateway.RetryPolicy{
				MaxAttempts: cfg.Gateway.Retry.MaxAttempts,
				BaseDelay:   cfg.Gateway.Retry.BaseDelay,
				MaxDelay:    cfg.Gateway.Retry.MaxDelay,
			},
		},
		appLogger,
	)

	upcResolver := resolver.New(resolutionRepo, choiceRepo, gw, &resolver.Config{
		Marketplace:   *marketplace,
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

	// Parse the supplier file at the boundary
	file, err := os.Open(*filePath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to open supplier file")
	}
	parsed, err := ingest.NewParser().Parse(file, ingest.ColumnMapping{
		CodeColumn:     *codeColumn,
		CostColumn:     *costColumn,
		PackSizeColumn: *packColumn,
		HasHeader:      !*noHeader,
	})
	file.Close()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to parse supplier file")
	}

	appLogger.WithFields(logger.Fields{
		"file":     *filePath,
		"rows":     len(parsed.Rows),
		"rejected": len(parsed.Rejected),
	}).Info("Supplier file parsed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job, err := orchestrator.Submit(ctx, service.SubmitRequest{
		TenantID:    *tenantID,
		Marketplace: *marketplace,
		SourceFile:  *filePath,
		ChunkSize:   *chunkSize,
		Rows:        parsed.Rows,
		Rejected:    parsed.Rejected,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to submit scan job")
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, cancelling scan...")
		if err := orchestrator.Cancel(context.Background(), job.ID); err != nil {
			appLogger.WithError(err).Error("Failed to cancel scan")
		}
	}()

	runCtx := logger.SetJobID(appLogger.WithContext(ctx), job.ID)
	if err := orchestrator.Run(runCtx, job.ID); err != nil {
		appLogger.WithError(err).Fatal("Scan run failed")
	}

	final, err := orchestrator.GetJob(context.Background(), job.ID)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load final job state")
	}
	appLogger.WithFields(logger.Fields{
		logger.FieldJobID:  final.ID,
		logger.FieldStatus: string(final.Status),
		"total_rows":       final.TotalRows,
		"processed":        final.Processed,
		"succeeded":        final.Succeeded,
		"failed":           final.Failed,
		"skipped":          final.Skipped,
	}).Info("Scan completed")
	for _, group := range final.Errors {
		appLogger.WithFields(logger.Fields{
			"reason":          group.Reason,
			"sample_row":      group.SampleRow,
			logger.FieldCount: group.Count,
		}).Warn("Rows did not produce a verdict")
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mforney/docpipe/internal/api"
	"github.com/mforney/docpipe/internal/api/middleware"
	"github.com/mforney/docpipe/internal/command"
	"github.com/mforney/docpipe/internal/config"
	"github.com/mforney/docpipe/internal/logger"
	"github.com/mforney/docpipe/internal/pipeline"
	"github.com/mforney/docpipe/internal/queue"
	"github.com/mforney/docpipe/internal/repository"
	"github.com/mforney/docpipe/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger.SetDefaultLogger(logger.NewFromEnv(logger.LoadFromEnv()))
	defer logger.Sync()

	ctx := context.Background()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}
	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(db); err != nil {
			logger.Fatal("Failed to migrate database: %v", err)
		}
	}

	// Initialize repositories
	jobRepo := repository.NewJobRepository(db)
	checkpointRepo := repository.NewCheckpointRepository(db)
	streamRepo := repository.NewStreamRepository(db)
	trackerRepo := repository.NewTrackerRepository(db)

	// Initialize storage (supports MinIO, R2, S3)
	objectStorage, err := storage.NewStorage(&storage.S3Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		logger.Fatal("Failed to ensure storage bucket: %v", err)
	}
	blobStore := storage.NewBlobStore(objectStorage, db)

	// Compile queue rules
	infos := make([]*queue.QueueInfo, 0, len(cfg.Queues))
	for _, qc := range cfg.Queues {
		info, err := queue.NewQueueInfo(qc)
		if err != nil {
			logger.Fatal("Invalid queue configuration: %v", err)
		}
		infos = append(infos, info)
	}

	// Initialize the dispatch engine
	manager, err := queue.NewQueueManager(
		streamRepo, checkpointRepo, jobRepo, infos,
		cfg.Tenants, cfg.Engine.BatchSize, cfg.Engine.PollInterval,
	)
	if err != nil {
		logger.Fatal("Failed to build queue manager: %v", err)
	}

	// Initialize the command bus
	var bus command.Bus
	switch cfg.Commands.Bus {
	case "http":
		bus = command.NewHTTPBus(cfg.Commands.Endpoint, cfg.Commands.Timeout)
	default:
		bus = command.NewLocalBus(streamRepo, manager)
	}

	// Register pipelines and validate the conversion graph
	requester := pipeline.NewStoreJobRequester(jobRepo, infos)
	pipelineManager := pipeline.NewManager()
	for _, p := range []pipeline.Pipeline{
		pipeline.NewOfficePipeline(requester),
		pipeline.NewTikaPipeline(requester),
		pipeline.NewImagePipeline(requester),
		pipeline.NewVideoPipeline(requester),
		pipeline.NewEmailPipeline(requester),
		pipeline.NewHTMLPipeline(requester),
	} {
		if err := pipelineManager.Register(p); err != nil {
			logger.Fatal("Failed to register pipeline: %v", err)
		}
	}
	if err := pipelineManager.ValidateGraph(infos); err != nil {
		logger.Fatal("Invalid conversion configuration: %v", err)
	}
	manager.SetListener(pipelineManager)

	// Start polling and timeout recovery
	if err := manager.Start(ctx); err != nil {
		logger.Fatal("Failed to start queue manager: %v", err)
	}
	monitor := queue.NewTimeoutMonitor(
		jobRepo, trackerRepo,
		cfg.Engine.JobTimeout, cfg.Engine.RetryLimit,
		cfg.Engine.MonitorInterval, cfg.Engine.MonitorInitialDelay,
	)
	if err := monitor.Start(ctx); err != nil {
		logger.Fatal("Failed to start timeout monitor: %v", err)
	}

	// Setup router
	router := api.SetupRouter(api.Deps{
		Manager:        manager,
		Jobs:           jobRepo,
		Trackers:       trackerRepo,
		Stream:         streamRepo,
		Blobs:          blobStore,
		Bus:            bus,
		RetryLimit:     cfg.Engine.RetryLimit,
		LocalIngestion: cfg.Commands.Bus != "http",
	}, cfg.Server.Mode, middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting API server on port %d (mode=%s)", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}
	monitor.Stop()
	manager.Stop()

	logger.Info("Server exited")
}

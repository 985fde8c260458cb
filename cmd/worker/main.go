package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mforney/docpipe/internal/config"
	"github.com/mforney/docpipe/internal/logger"
	"github.com/mforney/docpipe/internal/worker"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger.SetDefaultLogger(logger.NewFromEnv(logger.LoadFromEnv()))
	defer logger.Sync()

	queues := cfg.Worker.Queues
	if len(queues) == 0 {
		queues = []string{"office", "tika", "imgresize", "videothumb"}
	}

	heartbeat := cfg.Worker.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = worker.HeartbeatIntervalFor(cfg.Engine.JobTimeout)
	}

	client := worker.NewClient(cfg.Worker.APIBaseURL, 5*time.Minute)
	converters := worker.DefaultConverters(cfg.Worker.SofficePath)
	w, err := worker.NewWorker(client, queues, converters, cfg.Worker.PollInterval, heartbeat, cfg.Worker.WorkDir)
	if err != nil {
		logger.Fatal("Failed to build worker: %v", err)
	}

	// Run until interrupted
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down worker...")
		cancel()
	}()

	if err := w.Run(ctx); err != nil {
		logger.Fatal("Worker stopped: %v", err)
	}
	logger.Info("Worker exited")
}

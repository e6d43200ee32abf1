// Command worker runs the cascade processor on its own, for deployments
// where the API runs as a Lambda function and cannot hold a ticker.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"qalam-backend/internal/config"
	"qalam-backend/internal/di"
)

func main() {
	once := flag.Bool("once", false, "process pending cascade jobs once and exit")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer cleanup()
	logger := container.Logger

	if monitor := container.IndexMonitor; monitor != nil {
		if err := monitor.Refresh(ctx); err != nil {
			logger.Warn("Initial index refresh failed", zap.Error(err))
		}
		go monitor.Run(ctx, cfg.Database.IndexPollInterval)
	}

	if *once {
		n, err := container.Processor.ProcessPending(ctx)
		if err != nil {
			logger.Error("Cascade processing failed", zap.Int("processed", n), zap.Error(err))
			cleanup()
			os.Exit(1)
		}
		logger.Info("Cascade processing finished", zap.Int("processed", n))
		return
	}

	logger.Info("Starting worker service",
		zap.String("environment", string(cfg.Environment)),
		zap.Duration("interval", cfg.Cascade.Interval),
	)
	container.Processor.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down worker service...")
	container.Processor.Stop()
	logger.Info("Worker service stopped")
}

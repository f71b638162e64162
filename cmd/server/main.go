package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/config"
	"github.com/garyjia/approvalflow/internal/container"
	"github.com/garyjia/approvalflow/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting approval workflow service",
		zap.String("config", *configPath),
		zap.Int("port", cfg.Server.Port),
		zap.Strings("channels", cfg.Notification.Channels))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Service stopped with error", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container shutdown failed", zap.Error(err))
		}
	}()

	// Blocks until a signal arrives or the listener fails
	if err := c.Server().Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("Shutting down server...")
	return nil
}

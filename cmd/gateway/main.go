package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rentora-hq/extraction-gateway/internal/app"
	"github.com/rentora-hq/extraction-gateway/internal/config"
	"github.com/rentora-hq/extraction-gateway/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, err := logger.Init(cfg.LogLevel); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("gateway starting", "config", map[string]any{
		"app_name":       cfg.AppName,
		"env":            cfg.Env,
		"listen_address": cfg.ListenAddress,
		"storage_type":   cfg.StorageType,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateway, err := app.NewGateway(ctx, cfg, logger.Default())
	if err != nil {
		logger.ErrorObj("failed to initialize gateway", "error", err)
		return err
	}

	if err := gateway.Run(ctx); err != nil {
		return fmt.Errorf("gateway run: %w", err)
	}

	return nil
}

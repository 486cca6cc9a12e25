// Package main is the entry point for meshpart, which partitions a mesh into a stream document.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Faultbox/meshstream/internal/config"
	"github.com/Faultbox/meshstream/internal/logger"
)

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== meshpart ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Input.Watch && cfg.Input.Path != "" {
		if err := watch(ctx, cfg); err != nil {
			logger.Error("watch stopped", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	m, err := run(cfg)
	if err != nil {
		logger.Error("partitioning failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("document written",
		zap.String("document", m.Document),
		zap.Int("partitions", len(m.Partitions)))
}

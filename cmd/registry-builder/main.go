// Package main is the entry point for the chain-registry builder: one run
// reads the deployed registries, discovers pairs over RPC, and writes the
// generated snapshot.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcryptoex/tempo/internal/config"
	"github.com/mcryptoex/tempo/internal/registry"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("building chain registry",
		slog.String("deploy_dir", cfg.Builder.DeployDir),
		slog.String("output", cfg.Builder.OutputPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	builder := registry.NewBuilder(cfg.Builder, logger)
	snap, err := builder.Build(ctx)
	if err != nil {
		log.Fatalf("Registry build failed: %v", err)
	}

	if err := registry.WriteSnapshot(cfg.Builder.OutputPath, snap); err != nil {
		log.Fatalf("Failed to write snapshot: %v", err)
	}

	logger.Info("chain registry written",
		slog.Int("version", snap.Version),
		slog.Int("chains", len(snap.Chains)),
	)
}

// Package main is the entry point for the tempo chain indexer.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mcryptoex/tempo/internal/config"
	"github.com/mcryptoex/tempo/internal/indexer"
	"github.com/mcryptoex/tempo/internal/registry"
	"github.com/mcryptoex/tempo/internal/stream"
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

	refresh := time.Duration(cfg.Indexer.RegistryRefreshSeconds) * time.Second
	if refresh <= 0 {
		refresh = 30 * time.Second
	}
	loader := registry.NewLoader(cfg.ChainRegistryPath, refresh)

	settings := indexer.ResolveSettings(cfg, loader, os.Getenv)
	logger.Info("starting tempo indexer",
		slog.String("chain_key", settings.ChainKey),
		slog.Int64("chain_id", settings.ChainID),
		slog.String("rpc_url", settings.RPCURL),
	)

	producer := stream.NewProducer(config.CSV(cfg.KafkaBootstrapServers))
	defer producer.Close()

	var eth *ethclient.Client
	if settings.RPCURL != "" {
		eth, err = ethclient.Dial(settings.RPCURL)
		if err != nil {
			// The loop retries registry refresh and can still simulate.
			logger.Warn("rpc dial failed; continuing without a backend", "error", err)
			eth = nil
		} else {
			defer eth.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ix *indexer.Indexer
	if eth != nil {
		ix = indexer.New(settings, cfg.Topics, loader, producer, eth, logger)
	} else {
		ix = indexer.New(settings, cfg.Topics, loader, producer, nil, logger)
	}

	if err := ix.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Indexer error: %v", err)
	}
	logger.Info("indexer stopped gracefully")
}

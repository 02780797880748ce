// Package main is the entry point for the tempo ledger writer.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcryptoex/tempo/internal/config"
	"github.com/mcryptoex/tempo/internal/database"
	"github.com/mcryptoex/tempo/internal/ledger"
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

	logger.Info("starting tempo ledger writer",
		slog.String("group_id", cfg.LedgerWriterGroupID),
		slog.String("topic", cfg.Topics.Valid),
	)

	// Postgres is the source of truth; no degraded mode without it.
	db, err := database.NewPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("database migrations completed")

	ch := database.NewClickHouse(cfg.ClickHouse, logger)
	defer ch.Close()

	servers := config.CSV(cfg.KafkaBootstrapServers)
	producer := stream.NewProducer(servers)
	defer producer.Close()
	consumer := stream.NewConsumer(servers, cfg.LedgerWriterGroupID, cfg.Topics.Valid)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	writer := ledger.NewWriter(cfg.Topics, consumer, producer, ledger.NewRepository(db.Pool()), ch, logger)
	if err := writer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Ledger writer error: %v", err)
	}
	logger.Info("ledger writer stopped gracefully")
}

// Package main is the entry point for the tempo note validator.
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
	"github.com/mcryptoex/tempo/internal/stream"
	"github.com/mcryptoex/tempo/internal/validator"
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

	logger.Info("starting tempo validator",
		slog.String("group_id", cfg.ValidatorGroupID),
		slog.String("topic", cfg.Topics.Raw),
	)

	servers := config.CSV(cfg.KafkaBootstrapServers)
	producer := stream.NewProducer(servers)
	defer producer.Close()
	consumer := stream.NewConsumer(servers, cfg.ValidatorGroupID, cfg.Topics.Raw)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := validator.NewRunner(cfg.Topics, consumer, producer, logger)
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Validator error: %v", err)
	}
	logger.Info("validator stopped gracefully")
}

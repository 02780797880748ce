// Package main is the entry point for the tempo HTTP API.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcryptoex/tempo/internal/compliance"
	"github.com/mcryptoex/tempo/internal/config"
	"github.com/mcryptoex/tempo/internal/database"
	"github.com/mcryptoex/tempo/internal/handler"
	"github.com/mcryptoex/tempo/internal/ledger"
	"github.com/mcryptoex/tempo/internal/quote"
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

	logger.Info("starting tempo api",
		slog.String("app", cfg.AppName),
		slog.String("environment", cfg.Environment),
		slog.String("addr", cfg.APIListenAddr),
	)

	db, err := database.NewPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("connected to postgres")

	if err := db.RunMigrations(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("database migrations completed")

	// ClickHouse is optional at startup; analytics degrades until it answers.
	ch := database.NewClickHouse(cfg.ClickHouse, logger)
	defer ch.Close()

	producer := stream.NewProducer(config.CSV(cfg.KafkaBootstrapServers))
	defer producer.Close()

	ttl := time.Duration(cfg.Quote.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 20 * time.Second
	}
	loader := registry.NewLoader(cfg.ChainRegistryPath, ttl)
	engine := quote.NewEngine(cfg.Quote, loader, logger)
	policy := compliance.NewPolicy(cfg.Compliance)
	repo := ledger.NewRepository(db.Pool())

	h := handler.New(cfg, logger, loader, engine, policy, repo, db, ch, producer)

	srv := &http.Server{
		Addr:         cfg.APIListenAddr,
		Handler:      h.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  time.Minute,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down", slog.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	logger.Info("server stopped gracefully")
}

// Package handler exposes the tempo HTTP surface: registry reads, quotes,
// pair and ledger views, ClickHouse analytics, and the debug note emitter.
// Handlers are thin delegates; business logic lives in the core packages.
package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcryptoex/tempo/internal/compliance"
	"github.com/mcryptoex/tempo/internal/config"
	"github.com/mcryptoex/tempo/internal/database"
	"github.com/mcryptoex/tempo/internal/ledger"
	"github.com/mcryptoex/tempo/internal/middleware"
	"github.com/mcryptoex/tempo/internal/quote"
	"github.com/mcryptoex/tempo/internal/registry"
)

type publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, correlationID string) error
}

// Handler carries the API's collaborators, constructed once at startup.
type Handler struct {
	cfg        *config.Settings
	log        *slog.Logger
	loader     *registry.Loader
	engine     *quote.Engine
	policy     *compliance.Policy
	repo       *ledger.Repository
	postgres   *database.Postgres
	clickhouse *database.ClickHouse
	producer   publisher
	validate   *validator.Validate
}

// New creates the handler set.
func New(
	cfg *config.Settings,
	log *slog.Logger,
	loader *registry.Loader,
	engine *quote.Engine,
	policy *compliance.Policy,
	repo *ledger.Repository,
	pg *database.Postgres,
	ch *database.ClickHouse,
	producer publisher,
) *Handler {
	return &Handler{
		cfg:        cfg,
		log:        log,
		loader:     loader,
		engine:     engine,
		policy:     policy,
		repo:       repo,
		postgres:   pg,
		clickhouse: ch,
		producer:   producer,
		validate:   validator.New(),
	}
}

// Routes builds the chi router with the shared middleware stack.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(middleware.Logging(h.log))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(h.cfg.CORSOrigins))

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)
	r.Get("/tokens", h.Tokens)
	r.Get("/risk/assumptions", h.RiskAssumptions)
	r.Get("/quote", h.Quote)
	r.Get("/pairs", h.Pairs)
	r.Get("/ledger/recent", h.LedgerRecent)
	r.Get("/analytics", h.Analytics)
	r.Post("/debug/emit-swap-note", h.EmitSwapNote)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

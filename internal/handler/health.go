package handler

import (
	"net/http"

	"github.com/mcryptoex/tempo/internal/pkg/apierror"
	"github.com/mcryptoex/tempo/internal/pkg/response"
)

// Root handles GET / with basic service info.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"service": h.cfg.AppName,
		"status":  "ok",
	})
}

// Health handles GET /health: process liveness only.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{"status": "ok"})
}

// Ready handles GET /health/ready: both stores must answer.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.postgres.Ping(ctx); err != nil {
		h.log.Warn("readiness: postgres ping failed", "error", err)
		response.Error(w, apierror.ErrServiceUnavailable.WithDetail("postgres unavailable"))
		return
	}
	if err := h.clickhouse.Ping(ctx); err != nil {
		h.log.Warn("readiness: clickhouse ping failed", "error", err)
		response.Error(w, apierror.ErrServiceUnavailable.WithDetail("clickhouse unavailable"))
		return
	}

	response.OK(w, map[string]string{"status": "ready"})
}

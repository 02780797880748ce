package handler

import (
	"fmt"
	"net/http"

	"github.com/mcryptoex/tempo/internal/pkg/apierror"
	"github.com/mcryptoex/tempo/internal/pkg/response"
	"github.com/mcryptoex/tempo/internal/registry"
)

// Tokens handles GET /tokens.
func (h *Handler) Tokens(w http.ResponseWriter, r *http.Request) {
	snap := h.loader.Snapshot()
	response.OK(w, registry.Tokens(snap))
}

// RiskAssumptions handles GET /risk/assumptions?chain_id=N.
func (h *Handler) RiskAssumptions(w http.ResponseWriter, r *http.Request) {
	chainID, err := queryChainID(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	if chainID == 0 {
		response.Error(w, apierror.NewValidationError("chain_id", "is required"))
		return
	}

	snap := h.loader.Snapshot()
	payload := registry.RiskAssumptions(snap, chainID)
	if payload == nil {
		response.NotFound(w, fmt.Sprintf("chain_id=%d not found in registry", chainID))
		return
	}
	response.OK(w, payload)
}

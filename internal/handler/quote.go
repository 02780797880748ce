package handler

import (
	"net/http"
	"strings"

	"github.com/mcryptoex/tempo/internal/pkg/apierror"
	"github.com/mcryptoex/tempo/internal/pkg/response"
	"github.com/mcryptoex/tempo/internal/quote"
)

// Quote handles GET /quote. Compliance is enforced before any pricing work.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	chainID, err := queryChainID(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	if chainID == 0 {
		response.Error(w, apierror.NewValidationError("chain_id", "is required"))
		return
	}

	slippageBps, err := queryInt(r, "slippage_bps", 50, 1, 3000)
	if err != nil {
		response.Error(w, err)
		return
	}

	countryCode := strings.TrimSpace(q.Get("country_code"))
	if countryCode != "" && len(countryCode) != 2 {
		response.Error(w, apierror.NewValidationError("country_code", "must be a two-letter ISO code"))
		return
	}
	if err := h.policy.Enforce(countryCode, q.Get("wallet_address")); err != nil {
		response.Error(w, err)
		return
	}

	payload, err := h.engine.Quote(quote.Request{
		ChainID:     chainID,
		TokenIn:     q.Get("token_in"),
		TokenOut:    q.Get("token_out"),
		AmountIn:    q.Get("amount_in"),
		SlippageBps: slippageBps,
	})
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, payload)
}

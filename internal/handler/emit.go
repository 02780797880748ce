package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mcryptoex/tempo/internal/notes"
	"github.com/mcryptoex/tempo/internal/pkg/apierror"
	"github.com/mcryptoex/tempo/internal/pkg/response"
)

var debugNotesPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tempo_api_notes_published_total",
		Help: "Synthetic raw notes published via the debug endpoint.",
	},
	[]string{"action", "chain_id"},
)

// EmitSwapRequest is the POST /debug/emit-swap-note body. Every field has a
// working default so an empty body publishes one plausible local swap.
type EmitSwapRequest struct {
	ChainID            int64  `json:"chain_id" validate:"gt=0"`
	TxHash             string `json:"tx_hash" validate:"required,startswith=0x"`
	UserAddress        string `json:"user_address" validate:"required"`
	PoolAddress        string `json:"pool_address" validate:"required"`
	TokenIn            string `json:"token_in" validate:"required"`
	TokenOut           string `json:"token_out" validate:"required"`
	AmountIn           string `json:"amount_in" validate:"required"`
	AmountOut          string `json:"amount_out" validate:"required"`
	FeeUSD             string `json:"fee_usd" validate:"required"`
	GasUsed            string `json:"gas_used" validate:"required"`
	GasCostUSD         string `json:"gas_cost_usd" validate:"required"`
	ProtocolRevenueUSD string `json:"protocol_revenue_usd" validate:"required"`
	MinOut             string `json:"min_out" validate:"required"`
	BlockNumber        int64  `json:"block_number" validate:"gte=0"`
	Action             string `json:"action" validate:"required,oneof=SWAP LIQUIDITY_ADD LIQUIDITY_REMOVE MUSD_MINT MUSD_BURN PROTOCOL_FEE_ACCRUED FEE_TRANSFERRED_TO_TREASURY TREASURY_CONVERTED_TO_MUSD DISTRIBUTION_EXECUTED"`
}

func (req *EmitSwapRequest) applyDefaults() {
	if req.ChainID == 0 {
		req.ChainID = 31337
	}
	if req.TxHash == "" {
		req.TxHash = fmt.Sprintf("0x%x%x", [16]byte(uuid.New()), [16]byte(uuid.New()))
	}
	if req.UserAddress == "" {
		req.UserAddress = os.Getenv("DEBUG_EMIT_USER_ADDRESS")
	}
	if req.UserAddress == "" {
		req.UserAddress = "0x1000000000000000000000000000000000000001"
	}
	if req.PoolAddress == "" {
		req.PoolAddress = "0x1111111111111111111111111111111111111111"
	}
	if req.TokenIn == "" {
		req.TokenIn = "mUSD"
	}
	if req.TokenOut == "" {
		req.TokenOut = "WETH"
	}
	if req.AmountIn == "" {
		req.AmountIn = "100.0"
	}
	if req.AmountOut == "" {
		req.AmountOut = "0.03"
	}
	if req.FeeUSD == "" {
		req.FeeUSD = "0.30"
	}
	if req.GasUsed == "" {
		req.GasUsed = "117104"
	}
	if req.GasCostUSD == "" {
		req.GasCostUSD = "0.22"
	}
	if req.ProtocolRevenueUSD == "" {
		req.ProtocolRevenueUSD = "0.12"
	}
	if req.MinOut == "" {
		req.MinOut = "0"
	}
	if req.BlockNumber == 0 {
		req.BlockNumber = 1
	}
	if req.Action == "" {
		req.Action = notes.ActionSwap
	}
}

// EmitSwapNote handles POST /debug/emit-swap-note: publish one synthetic raw
// note through the real pipeline topic.
func (h *Handler) EmitSwapNote(w http.ResponseWriter, r *http.Request) {
	var req EmitSwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	req.applyDefaults()

	if err := h.validate.Struct(&req); err != nil {
		response.Error(w, apierror.NewValidationError("body", err.Error()))
		return
	}
	if err := h.policy.Enforce("", req.UserAddress); err != nil {
		response.Error(w, err)
		return
	}

	noteID := uuid.NewString()
	correlationID := uuid.NewString()

	note := notes.RawNote{
		NoteID:             noteID,
		CorrelationID:      correlationID,
		ChainID:            req.ChainID,
		TxHash:             req.TxHash,
		Action:             req.Action,
		UserAddress:        req.UserAddress,
		PoolAddress:        req.PoolAddress,
		TokenIn:            req.TokenIn,
		TokenOut:           req.TokenOut,
		AmountIn:           req.AmountIn,
		AmountOut:          req.AmountOut,
		FeeUSD:             req.FeeUSD,
		GasUsed:            req.GasUsed,
		GasCostUSD:         req.GasCostUSD,
		ProtocolRevenueUSD: req.ProtocolRevenueUSD,
		MinOut:             req.MinOut,
		BlockNumber:        req.BlockNumber,
		OccurredAt:         time.Now().UTC(),
		Source:             notes.SourceAPIDebug,
	}

	payload, err := note.Marshal()
	if err != nil {
		h.log.Error("debug note marshal failed", "error", err)
		response.Error(w, apierror.ErrInternal)
		return
	}
	if err := h.producer.Publish(r.Context(), h.cfg.Topics.Raw, []byte(noteID), payload, correlationID); err != nil {
		h.log.Error("debug note publish failed", "error", err)
		response.Error(w, apierror.ErrServiceUnavailable.WithDetail("failed to publish note"))
		return
	}

	debugNotesPublishedTotal.WithLabelValues(req.Action, strconv.FormatInt(req.ChainID, 10)).Inc()
	h.log.Info("debug note published", "note_id", noteID, "action", req.Action, "chain_id", req.ChainID)

	response.Accepted(w, map[string]any{
		"status":         "accepted",
		"note_id":        noteID,
		"correlation_id": correlationID,
		"topic":          h.cfg.Topics.Raw,
		"published_at":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

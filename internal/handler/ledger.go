package handler

import (
	"net/http"
	"strings"

	"github.com/mcryptoex/tempo/internal/ledger"
	"github.com/mcryptoex/tempo/internal/pkg/response"
)

// LedgerRecent handles GET /ledger/recent.
func (h *Handler) LedgerRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100, 1, 2000)
	if err != nil {
		response.Error(w, err)
		return
	}
	chainID, err := queryChainID(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	entryType := strings.TrimSpace(r.URL.Query().Get("entry_type"))

	rows, err := h.repo.RecentEntries(r.Context(), limit, chainID, entryType)
	if err != nil {
		h.log.Error("ledger entries query failed", "error", err)
		response.Error(w, err)
		return
	}
	if rows == nil {
		rows = []ledger.EntryRow{}
	}
	response.OK(w, map[string][]ledger.EntryRow{"rows": rows})
}

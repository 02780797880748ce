package handler

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcryptoex/tempo/internal/ledger"
	"github.com/mcryptoex/tempo/internal/pkg/response"
	"github.com/mcryptoex/tempo/internal/quote"
	"github.com/mcryptoex/tempo/internal/registry"
)

// PairRow is one merged /pairs row: registry liquidity joined with ledger
// swap statistics.
type PairRow struct {
	ChainID        int64      `json:"chain_id"`
	PoolAddress    string     `json:"pool_address"`
	Token0Symbol   string     `json:"token0_symbol"`
	Token1Symbol   string     `json:"token1_symbol"`
	Token0Address  string     `json:"token0_address"`
	Token1Address  string     `json:"token1_address"`
	Reserve0       string     `json:"reserve0_decimal"`
	Reserve1       string     `json:"reserve1_decimal"`
	Swaps          int64      `json:"swaps"`
	TotalAmountIn  string     `json:"total_amount_in"`
	TotalAmountOut string     `json:"total_amount_out"`
	TotalFeeUSD    string     `json:"total_fee_usd"`
	LastSwapAt     *time.Time `json:"last_swap_at"`
	CheckedAt      string     `json:"checked_at,omitempty"`
	Source         string     `json:"source"`
	Canonical      bool       `json:"canonical"`
	External       bool       `json:"external"`
}

type poolKey struct {
	chainID int64
	address string // lowercase
}

// Pairs handles GET /pairs.
func (h *Handler) Pairs(w http.ResponseWriter, r *http.Request) {
	chainID, err := queryChainID(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 100, 1, 1000)
	if err != nil {
		response.Error(w, err)
		return
	}
	dedupeSymbols := queryBool(r, "dedupe_symbols", true)
	includeExternal := queryBool(r, "include_external", false)

	snap := h.loader.Snapshot()
	registryPairs := collectRegistryPairs(snap, chainID)
	canonicalKeys := selectCanonicalPairs(registryPairs, h.engine.Allowlist())

	// A wider stats window than the page size keeps high-activity pools
	// visible after symbol dedupe trims the merged set.
	statsLimit := limit * 8
	if statsLimit < 500 {
		statsLimit = 500
	}
	if statsLimit > 5000 {
		statsLimit = 5000
	}
	stats, err := h.repo.PoolStats(r.Context(), chainID, statsLimit)
	if err != nil {
		h.log.Error("pool stats query failed", "error", err)
		response.Error(w, err)
		return
	}
	statsMap := make(map[poolKey]ledger.PoolStat, len(stats))
	for _, stat := range stats {
		statsMap[poolKey{stat.ChainID, strings.ToLower(stat.PoolAddress)}] = stat
	}

	merged := make([]PairRow, 0, len(registryPairs)+len(statsMap))
	for key, pair := range registryPairs {
		row := PairRow{
			ChainID:        key.chainID,
			PoolAddress:    key.address,
			Token0Symbol:   pair.Token0Symbol,
			Token1Symbol:   pair.Token1Symbol,
			Token0Address:  pair.Token0Address,
			Token1Address:  pair.Token1Address,
			Reserve0:       pair.Reserve0Decimal,
			Reserve1:       pair.Reserve1Decimal,
			TotalAmountIn:  "0",
			TotalAmountOut: "0",
			TotalFeeUSD:    "0",
			CheckedAt:      pair.CheckedAt,
			Source:         "registry",
		}
		if stat, ok := statsMap[key]; ok {
			delete(statsMap, key)
			row.Swaps = stat.Swaps
			row.TotalAmountIn = stat.TotalAmountIn
			row.TotalAmountOut = stat.TotalAmountOut
			row.TotalFeeUSD = stat.TotalFeeUSD
			row.LastSwapAt = stat.LastSwapAt
			row.Source = "registry+ledger"
		}
		if _, ok := canonicalKeys[key]; ok {
			row.Canonical = true
		}
		row.External = !row.Canonical
		merged = append(merged, row)
	}

	// Pools seen only in the ledger: no registry addresses or reserves.
	for _, stat := range statsMap {
		tokenIn := strings.TrimSpace(stat.TokenIn)
		tokenOut := strings.TrimSpace(stat.TokenOut)
		if tokenIn != "" && tokenOut != "" && strings.EqualFold(tokenIn, tokenOut) {
			continue
		}
		merged = append(merged, PairRow{
			ChainID:        stat.ChainID,
			PoolAddress:    strings.ToLower(stat.PoolAddress),
			Token0Symbol:   tokenIn,
			Token1Symbol:   tokenOut,
			Reserve0:       "0",
			Reserve1:       "0",
			Swaps:          stat.Swaps,
			TotalAmountIn:  stat.TotalAmountIn,
			TotalAmountOut: stat.TotalAmountOut,
			TotalFeeUSD:    stat.TotalFeeUSD,
			LastSwapAt:     stat.LastSwapAt,
			Source:         "ledger",
			External:       true,
		})
	}

	sortPairRows(merged, false)

	if dedupeSymbols {
		merged = dedupePairRows(merged)
		sortPairRows(merged, true)
	}

	if !includeExternal {
		canonicalOnly := make([]PairRow, 0, len(merged))
		for _, row := range merged {
			if row.Canonical {
				canonicalOnly = append(canonicalOnly, row)
			}
		}
		if len(canonicalOnly) > 0 {
			merged = canonicalOnly
		}
	}

	if len(merged) > limit {
		merged = merged[:limit]
	}
	response.OK(w, map[string][]PairRow{"rows": merged})
}

// collectRegistryPairs flattens the snapshot's pairs, dropping degenerate
// same-symbol or same-address entries. chainID == 0 means all chains.
func collectRegistryPairs(snap *registry.Snapshot, chainID int64) map[poolKey]registry.Pair {
	out := map[poolKey]registry.Pair{}
	for i := range snap.Chains {
		chain := &snap.Chains[i]
		if chain.ChainID <= 0 {
			continue
		}
		if chainID != 0 && chain.ChainID != chainID {
			continue
		}
		for _, pair := range chain.Pairs {
			address := strings.ToLower(strings.TrimSpace(pair.PairAddress))
			if address == "" {
				continue
			}
			sym0 := strings.TrimSpace(pair.Token0Symbol)
			sym1 := strings.TrimSpace(pair.Token1Symbol)
			if sym0 != "" && sym1 != "" && strings.EqualFold(sym0, sym1) {
				continue
			}
			addr0 := strings.TrimSpace(pair.Token0Address)
			addr1 := strings.TrimSpace(pair.Token1Address)
			if addr0 != "" && addr1 != "" && strings.EqualFold(addr0, addr1) {
				continue
			}
			out[poolKey{chain.ChainID, address}] = pair
		}
	}
	return out
}

// pairLiquidityScore is reserve0 * reserve1, zero unless both sides are
// strictly positive.
func pairLiquidityScore(pair registry.Pair) decimal.Decimal {
	r0 := parseDecimal(pair.Reserve0Decimal)
	r1 := parseDecimal(pair.Reserve1Decimal)
	if r0.Sign() <= 0 || r1.Sign() <= 0 {
		return decimal.Zero
	}
	return r0.Mul(r1)
}

func parseDecimal(value string) decimal.Decimal {
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero
	}
	return parsed
}

// selectCanonicalPairs picks the canonical pool for each (chain, symbol pair)
// group: allowlisted pools win outright, then deepest liquidity, newest
// checked_at, address as the final tiebreak.
func selectCanonicalPairs(registryPairs map[poolKey]registry.Pair, allow quote.Allowlist) map[poolKey]struct{} {
	type candidate struct {
		key  poolKey
		pair registry.Pair
	}

	grouped := map[string][]candidate{}
	for key, pair := range registryPairs {
		sym0 := strings.ToUpper(strings.TrimSpace(pair.Token0Symbol))
		sym1 := strings.ToUpper(strings.TrimSpace(pair.Token1Symbol))
		if sym0 == "" || sym1 == "" {
			continue
		}
		if sym1 < sym0 {
			sym0, sym1 = sym1, sym0
		}
		groupKey := fmt.Sprintf("%d:%s:%s", key.chainID, sym0, sym1)
		grouped[groupKey] = append(grouped[groupKey], candidate{key, pair})
	}

	canonical := map[poolKey]struct{}{}
	for _, group := range grouped {
		candidates := group
		allowlisted := make([]candidate, 0, len(group))
		for _, c := range group {
			if allow.Contains(c.key.chainID, c.key.address) {
				allowlisted = append(allowlisted, c)
			}
		}
		if len(allowlisted) > 0 {
			candidates = allowlisted
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			aScore := pairLiquidityScore(a.pair)
			bScore := pairLiquidityScore(b.pair)
			if !aScore.Equal(bScore) {
				return aScore.GreaterThan(bScore)
			}
			if a.pair.CheckedAt != b.pair.CheckedAt {
				return a.pair.CheckedAt > b.pair.CheckedAt
			}
			return a.key.address > b.key.address
		})
		canonical[candidates[0].key] = struct{}{}
	}
	return canonical
}

func lastSwapOrZero(row PairRow) time.Time {
	if row.LastSwapAt == nil {
		return time.Time{}
	}
	return *row.LastSwapAt
}

// sortPairRows orders rows by activity descending; after dedupe, canonical
// rows float to the top.
func sortPairRows(rows []PairRow, canonicalFirst bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if canonicalFirst && a.Canonical != b.Canonical {
			return a.Canonical
		}
		if a.Swaps != b.Swaps {
			return a.Swaps > b.Swaps
		}
		return lastSwapOrZero(a).After(lastSwapOrZero(b))
	})
}

// rowScore ranks duplicate symbol-pair rows: canonical beats addressed beats
// registry-backed beats raw swap count.
func rowScore(row PairRow) [4]int64 {
	var score [4]int64
	if row.Canonical {
		score[0] = 1
	}
	if strings.TrimSpace(row.Token0Address) != "" && strings.TrimSpace(row.Token1Address) != "" {
		score[1] = 1
	}
	if strings.HasPrefix(row.Source, "registry") {
		score[2] = 1
	}
	score[3] = row.Swaps
	return score
}

func scoreGreater(a, b [4]int64) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

// dedupePairRows keeps the best row per (chain, symbol pair); rows without
// both symbols dedupe by pool address instead.
func dedupePairRows(rows []PairRow) []PairRow {
	best := map[string]PairRow{}
	order := []string{}
	for _, row := range rows {
		sym0 := strings.ToUpper(strings.TrimSpace(row.Token0Symbol))
		sym1 := strings.ToUpper(strings.TrimSpace(row.Token1Symbol))
		var key string
		if sym0 != "" && sym1 != "" {
			if sym1 < sym0 {
				sym0, sym1 = sym1, sym0
			}
			key = fmt.Sprintf("%d:%s:%s", row.ChainID, sym0, sym1)
		} else {
			key = fmt.Sprintf("%d:pool:%s", row.ChainID, strings.ToLower(row.PoolAddress))
		}
		existing, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = row
			continue
		}
		if scoreGreater(rowScore(row), rowScore(existing)) {
			best[key] = row
		}
	}

	out := make([]PairRow, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

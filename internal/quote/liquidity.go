package quote

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mcryptoex/tempo/internal/registry"
)

const (
	stableSymbol        = "MUSD"
	stableDisplaySymbol = "mUSD"
	maxFeeBps           = 10000

	defaultSwapFeeBps     = 30
	defaultProtocolFeeBps = 5
	defaultTokenDecimals  = 18
)

// pool is one retained AMM pool keyed by its unordered symbol pair.
type pool struct {
	Address  string
	SymbolA  string // UPPER, lexicographically first
	SymbolB  string
	ReserveA decimal.Decimal
	ReserveB decimal.Decimal
}

// minReserve is the smaller side of the pool, used as the route depth signal.
func (p *pool) minReserve() decimal.Decimal {
	if p.ReserveA.LessThan(p.ReserveB) {
		return p.ReserveA
	}
	return p.ReserveB
}

// ChainLiquidity is the quoting view of one chain: registered symbols, their
// display casing and decimals, the canonical pool per symbol pair, and the
// chain's fee schedule.
type ChainLiquidity struct {
	ChainID        int64
	SwapFeeBps     int
	ProtocolFeeBps int

	symbols  map[string]struct{} // UPPER
	display  map[string]string   // UPPER -> registry casing
	decimals map[string]int      // UPPER
	pools    map[string]*pool    // "A|B" with A < B
}

func pairKey(symbolA, symbolB string) string {
	if symbolB < symbolA {
		symbolA, symbolB = symbolB, symbolA
	}
	return symbolA + "|" + symbolB
}

// HasSymbol reports whether the symbol is registered on the chain.
func (c *ChainLiquidity) HasSymbol(symbol string) bool {
	_, ok := c.symbols[strings.ToUpper(symbol)]
	return ok
}

// Display returns the registry casing for a symbol, falling back to the
// caller's spelling when the chain has no record of it.
func (c *ChainLiquidity) Display(symbol string) string {
	if display, ok := c.display[strings.ToUpper(symbol)]; ok {
		return display
	}
	return symbol
}

// DecimalsFor returns the declared decimals for a symbol, defaulting to 18.
func (c *ChainLiquidity) DecimalsFor(symbol string) int {
	if d, ok := c.decimals[strings.ToUpper(symbol)]; ok {
		return d
	}
	return defaultTokenDecimals
}

// reserves returns the pool reserves oriented as (reserve_in, reserve_out)
// for a swap from tokenIn to tokenOut, if a pool exists for the pair.
func (c *ChainLiquidity) reserves(tokenIn, tokenOut string) (decimal.Decimal, decimal.Decimal, *pool, bool) {
	in := strings.ToUpper(tokenIn)
	out := strings.ToUpper(tokenOut)
	p, ok := c.pools[pairKey(in, out)]
	if !ok {
		return decimal.Zero, decimal.Zero, nil, false
	}
	if p.SymbolA == in {
		return p.ReserveA, p.ReserveB, p, true
	}
	return p.ReserveB, p.ReserveA, p, true
}

func (c *ChainLiquidity) registerSymbol(symbol string, decimals int) {
	upper := strings.ToUpper(strings.TrimSpace(symbol))
	if upper == "" {
		return
	}
	c.symbols[upper] = struct{}{}
	if _, ok := c.display[upper]; !ok {
		c.display[upper] = strings.TrimSpace(symbol)
	}
	if _, ok := c.decimals[upper]; !ok && decimals > 0 {
		c.decimals[upper] = decimals
	}
}

// buildChainLiquidity derives the quoting view from one registry chain entry.
// Fee bps are clamped to 0 <= protocol <= swap <= 10000; per symbol pair only
// the canonical pool is retained.
func buildChainLiquidity(chain *registry.Chain, allow Allowlist) *ChainLiquidity {
	liq := &ChainLiquidity{
		ChainID:        chain.ChainID,
		SwapFeeBps:     chain.AMM.SwapFeeBps,
		ProtocolFeeBps: chain.AMM.ProtocolFeeBps,
		symbols:        map[string]struct{}{},
		display:        map[string]string{},
		decimals:       map[string]int{},
		pools:          map[string]*pool{},
	}

	if liq.SwapFeeBps <= 0 {
		liq.SwapFeeBps = defaultSwapFeeBps
	}
	if liq.SwapFeeBps > maxFeeBps {
		liq.SwapFeeBps = maxFeeBps
	}
	if liq.ProtocolFeeBps <= 0 {
		liq.ProtocolFeeBps = defaultProtocolFeeBps
	}
	if liq.ProtocolFeeBps > liq.SwapFeeBps {
		liq.ProtocolFeeBps = liq.SwapFeeBps
	}

	for _, token := range chain.Tokens {
		liq.registerSymbol(token.Symbol, token.Decimals)
	}
	for _, p := range chain.Pairs {
		liq.registerSymbol(p.Token0Symbol, p.Token0Decimals)
		liq.registerSymbol(p.Token1Symbol, p.Token1Decimals)
	}
	liq.registerSymbol(stableDisplaySymbol, defaultTokenDecimals)

	for key, candidates := range groupPairs(chain.Pairs) {
		best := selectCanonicalPair(chain.ChainID, candidates, allow)
		sym0 := strings.ToUpper(best.Token0Symbol)
		sym1 := strings.ToUpper(best.Token1Symbol)
		p := &pool{
			Address: strings.ToLower(best.PairAddress),
			SymbolA: sym0,
			SymbolB: sym1,
		}
		if sym1 < sym0 {
			p.SymbolA, p.SymbolB = sym1, sym0
			p.ReserveA = dec(best.Reserve1Decimal)
			p.ReserveB = dec(best.Reserve0Decimal)
		} else {
			p.ReserveA = dec(best.Reserve0Decimal)
			p.ReserveB = dec(best.Reserve1Decimal)
		}
		liq.pools[key] = p
	}

	return liq
}

func groupPairs(pairs []registry.Pair) map[string][]registry.Pair {
	groups := map[string][]registry.Pair{}
	for _, p := range pairs {
		sym0 := strings.ToUpper(strings.TrimSpace(p.Token0Symbol))
		sym1 := strings.ToUpper(strings.TrimSpace(p.Token1Symbol))
		if sym0 == "" || sym1 == "" || sym0 == sym1 {
			continue
		}
		key := pairKey(sym0, sym1)
		groups[key] = append(groups[key], p)
	}
	return groups
}

// selectCanonicalPair orders a symbol group's candidates and returns the top
// one: allowlisted pools first, then deepest reserves, then newest checked_at,
// then address for a stable tiebreak.
func selectCanonicalPair(chainID int64, candidates []registry.Pair, allow Allowlist) registry.Pair {
	if len(candidates) == 1 {
		return candidates[0]
	}
	sorted := append([]registry.Pair(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		aPinned := allow.Contains(chainID, a.PairAddress)
		bPinned := allow.Contains(chainID, b.PairAddress)
		if aPinned != bPinned {
			return aPinned
		}
		aProduct := dec(a.Reserve0Decimal).Mul(dec(a.Reserve1Decimal))
		bProduct := dec(b.Reserve0Decimal).Mul(dec(b.Reserve1Decimal))
		if !aProduct.Equal(bProduct) {
			return aProduct.GreaterThan(bProduct)
		}
		if a.CheckedAt != b.CheckedAt {
			return a.CheckedAt > b.CheckedAt
		}
		return strings.ToLower(a.PairAddress) > strings.ToLower(b.PairAddress)
	})
	return sorted[0]
}

// dec parses a decimal string, treating anything unparsable as zero.
func dec(value string) decimal.Decimal {
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero
	}
	return parsed
}

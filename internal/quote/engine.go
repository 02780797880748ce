// Package quote prices swaps against the registry's discovered pool
// liquidity: constant-product math over canonical pools, direct or two-hop
// routing through the stable asset, and a static-rate fallback for
// bootstrap environments.
package quote

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcryptoex/tempo/internal/config"
	"github.com/mcryptoex/tempo/internal/pkg/apierror"
	"github.com/mcryptoex/tempo/internal/registry"
)

const (
	// EngineVersion tags every quote payload.
	EngineVersion = "harmony-engine-v2"

	localChainID = 31337

	divisionPrecision = 36
)

// Request is one quote query, already bound from HTTP parameters.
type Request struct {
	ChainID     int64
	TokenIn     string
	TokenOut    string
	AmountIn    string
	SlippageBps int
}

// Payload is the quote response body.
type Payload struct {
	ChainID             int64    `json:"chain_id"`
	TokenIn             string   `json:"token_in"`
	TokenOut            string   `json:"token_out"`
	AmountIn            string   `json:"amount_in"`
	ExpectedOut         string   `json:"expected_out"`
	MinOut              string   `json:"min_out"`
	SlippageBps         int      `json:"slippage_bps"`
	Route               []string `json:"route"`
	RouteDepth          string   `json:"route_depth"`
	SwapFeeBps          int      `json:"swap_fee_bps"`
	ProtocolFeeBps      int      `json:"protocol_fee_bps"`
	LPFeeBps            int      `json:"lp_fee_bps"`
	ProtocolFeeAmountIn string   `json:"protocol_fee_amount_in"`
	PriceSource         string   `json:"price_source"`
	Engine              string   `json:"engine"`
}

// Engine caches per-chain liquidity views and prices quotes against them.
// The cache expires as one unit; a rebuild forces the registry loader to
// re-read the snapshot so quote depth never outlives registry TTL.
type Engine struct {
	cfg    config.QuoteSettings
	loader *registry.Loader
	log    *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	chains    map[int64]*ChainLiquidity
	expiresAt time.Time
}

// NewEngine creates a quote engine over the given registry loader.
func NewEngine(cfg config.QuoteSettings, loader *registry.Loader, log *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		loader: loader,
		log:    log,
		now:    time.Now,
	}
}

// Allowlist returns the parsed canonical-pool allowlist, shared with the
// pairs endpoint so both surfaces agree on what canonical means.
func (e *Engine) Allowlist() Allowlist {
	return ParseAllowlist(e.cfg.CanonicalPoolAllowlist)
}

// chainLiquidity returns the cached liquidity view for a chain, rebuilding
// the whole cache when the TTL lapsed.
func (e *Engine) chainLiquidity(chainID int64) (*ChainLiquidity, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if e.chains == nil || !now.Before(e.expiresAt) {
		e.loader.Invalidate()
		snap := e.loader.Snapshot()
		allow := e.Allowlist()

		chains := make(map[int64]*ChainLiquidity, len(snap.Chains))
		for i := range snap.Chains {
			chain := &snap.Chains[i]
			chains[chain.ChainID] = buildChainLiquidity(chain, allow)
		}
		e.chains = chains

		ttl := e.cfg.CacheTTLSeconds
		if ttl <= 0 {
			ttl = 20
		}
		e.expiresAt = now.Add(time.Duration(ttl) * time.Second)
		e.log.Debug("liquidity cache rebuilt", "chains", len(chains), "registry_version", snap.Version)
	}

	liq, ok := e.chains[chainID]
	return liq, ok
}

// Quote prices a swap. Validation failures and missing liquidity return
// tagged apierror values; the handler maps them to HTTP codes.
func (e *Engine) Quote(req Request) (*Payload, error) {
	amountIn, err := decimal.NewFromString(strings.TrimSpace(req.AmountIn))
	if err != nil {
		return nil, apierror.NewValidationError("amount_in", "must be a decimal number")
	}
	if amountIn.Sign() <= 0 {
		return nil, apierror.NewValidationError("amount_in", "must be greater than zero")
	}

	in := strings.ToUpper(strings.TrimSpace(req.TokenIn))
	out := strings.ToUpper(strings.TrimSpace(req.TokenOut))
	if in == "" || out == "" {
		return nil, apierror.NewValidationError("token", "token_in and token_out are required")
	}
	if in == out {
		return nil, apierror.NewValidationError("token_out", "must differ from token_in")
	}

	liq, ok := e.chainLiquidity(req.ChainID)
	if !ok {
		return nil, apierror.NewNotFoundError(fmt.Sprintf("chain_id=%d not found in registry", req.ChainID))
	}
	if !liq.HasSymbol(in) {
		return nil, apierror.NewValidationError("token_in", fmt.Sprintf("%s is not registered for chain %d", req.TokenIn, req.ChainID))
	}
	if !liq.HasSymbol(out) {
		return nil, apierror.NewValidationError("token_out", fmt.Sprintf("%s is not registered for chain %d", req.TokenOut, req.ChainID))
	}

	route := e.bestRoute(liq, in, out, amountIn)
	priceSource := "pool-liquidity"
	if route.expectedOut.Sign() <= 0 {
		if req.ChainID != localChainID && !e.cfg.AllowStaticFallback {
			return nil, apierror.ErrUnprocessable.WithDetail(fmt.Sprintf(
				"no active pool route for %s/%s on chain %d; bootstrap pool liquidity before quoting",
				liq.Display(in), liq.Display(out), req.ChainID,
			))
		}
		route = staticFallbackRoute(in, out, amountIn)
		priceSource = "static-fallback"
	}

	slippageFactor := decimal.NewFromInt(int64(maxFeeBps - req.SlippageBps)).
		Div(decimal.NewFromInt(maxFeeBps))
	minOut := route.expectedOut.Mul(slippageFactor)
	protocolFee := amountIn.Mul(decimal.NewFromInt(int64(liq.ProtocolFeeBps))).
		Div(decimal.NewFromInt(maxFeeBps))

	lpFeeBps := liq.SwapFeeBps - liq.ProtocolFeeBps
	if lpFeeBps < 0 {
		lpFeeBps = 0
	}

	outDecimals := liq.DecimalsFor(out)
	inDecimals := liq.DecimalsFor(in)

	displayRoute := make([]string, len(route.symbols))
	for i, sym := range route.symbols {
		displayRoute[i] = liq.Display(sym)
	}

	return &Payload{
		ChainID:             req.ChainID,
		TokenIn:             liq.Display(in),
		TokenOut:            liq.Display(out),
		AmountIn:            formatAmount(amountIn, inDecimals),
		ExpectedOut:         formatAmount(route.expectedOut, outDecimals),
		MinOut:              formatAmount(minOut, outDecimals),
		SlippageBps:         req.SlippageBps,
		Route:               displayRoute,
		RouteDepth:          formatAmount(route.depth, defaultTokenDecimals),
		SwapFeeBps:          liq.SwapFeeBps,
		ProtocolFeeBps:      liq.ProtocolFeeBps,
		LPFeeBps:            lpFeeBps,
		ProtocolFeeAmountIn: formatAmount(protocolFee, inDecimals),
		PriceSource:         priceSource,
		Engine:              EngineVersion,
	}, nil
}

// routeResult is one candidate path with its simulated output.
type routeResult struct {
	symbols     []string
	expectedOut decimal.Decimal
	depth       decimal.Decimal
}

// bestRoute tries the direct pool and, when neither endpoint is the stable
// asset, the two-hop route through it, and keeps whichever pays out more.
func (e *Engine) bestRoute(liq *ChainLiquidity, in, out string, amountIn decimal.Decimal) routeResult {
	best := routeResult{symbols: []string{in, out}}

	if rIn, rOut, p, ok := liq.reserves(in, out); ok {
		best.expectedOut = constantProductOut(amountIn, rIn, rOut, liq.SwapFeeBps)
		best.depth = p.minReserve()
	}

	if in != stableSymbol && out != stableSymbol {
		leg1In, leg1Out, p1, ok1 := liq.reserves(in, stableSymbol)
		leg2In, leg2Out, p2, ok2 := liq.reserves(stableSymbol, out)
		if ok1 && ok2 {
			mid := constantProductOut(amountIn, leg1In, leg1Out, liq.SwapFeeBps)
			hopOut := constantProductOut(mid, leg2In, leg2Out, liq.SwapFeeBps)
			if hopOut.GreaterThan(best.expectedOut) {
				depth := p1.minReserve()
				if p2.minReserve().LessThan(depth) {
					depth = p2.minReserve()
				}
				best = routeResult{
					symbols:     []string{in, stableSymbol, out},
					expectedOut: hopOut,
					depth:       depth,
				}
			}
		}
	}

	return best
}

// constantProductOut is the Uniswap-V2 output amount:
// out = (in * fee_mult * reserve_out) / (reserve_in * 10000 + in * fee_mult).
func constantProductOut(amountIn, reserveIn, reserveOut decimal.Decimal, swapFeeBps int) decimal.Decimal {
	if amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return decimal.Zero
	}
	feeMult := decimal.NewFromInt(int64(maxFeeBps - swapFeeBps))
	inWithFee := amountIn.Mul(feeMult)
	numerator := inWithFee.Mul(reserveOut)
	denominator := reserveIn.Mul(decimal.NewFromInt(maxFeeBps)).Add(inWithFee)
	if denominator.Sign() <= 0 {
		return decimal.Zero
	}
	return numerator.DivRound(denominator, divisionPrecision)
}

// staticFallbackRoute prices against flat bootstrap rates when no pool
// liquidity exists yet.
func staticFallbackRoute(in, out string, amountIn decimal.Decimal) routeResult {
	rate := decimal.NewFromFloat(0.06)
	switch {
	case in == stableSymbol:
		if out == "WETH" || out == "WSOL" {
			rate = decimal.NewFromFloat(0.0003)
		} else {
			rate = decimal.NewFromFloat(0.00002)
		}
	case out == stableSymbol:
		if in == "WETH" || in == "WSOL" {
			rate = decimal.NewFromInt(3300)
		} else {
			rate = decimal.NewFromInt(52000)
		}
	}

	symbols := []string{in, out}
	if in != stableSymbol && out != stableSymbol {
		symbols = []string{in, stableSymbol, out}
	}
	return routeResult{
		symbols:     symbols,
		expectedOut: amountIn.Mul(rate),
		depth:       decimal.Zero,
	}
}

// formatAmount rounds down to the token's declared decimals and strips
// trailing zeros, so payload strings never overstate precision.
func formatAmount(value decimal.Decimal, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	s := value.RoundDown(int32(decimals)).String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	if s == "" || s == "-0" {
		s = "0"
	}
	return s
}

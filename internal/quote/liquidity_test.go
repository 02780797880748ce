package quote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcryptoex/tempo/internal/registry"
)

func TestBuildChainLiquidityFeeClamps(t *testing.T) {
	cases := []struct {
		name         string
		swap, proto  int
		wantSwap     int
		wantProtocol int
	}{
		{"defaults", 0, 0, 30, 5},
		{"explicit", 100, 10, 100, 10},
		{"swap capped", 20000, 10, 10000, 10},
		{"protocol capped at swap", 30, 40, 30, 30},
		{"negative defaults", -5, -5, 30, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chain := &registry.Chain{
				ChainID: 1,
				AMM:     registry.AMMFees{SwapFeeBps: tc.swap, ProtocolFeeBps: tc.proto},
			}
			liq := buildChainLiquidity(chain, Allowlist{})
			assert.Equal(t, tc.wantSwap, liq.SwapFeeBps)
			assert.Equal(t, tc.wantProtocol, liq.ProtocolFeeBps)
		})
	}
}

func TestBuildChainLiquidityRegistersStable(t *testing.T) {
	liq := buildChainLiquidity(&registry.Chain{ChainID: 1}, Allowlist{})

	assert.True(t, liq.HasSymbol("MUSD"))
	assert.True(t, liq.HasSymbol("musd"))
	assert.Equal(t, "mUSD", liq.Display("MUSD"))
	assert.Equal(t, 18, liq.DecimalsFor("MUSD"))
}

func TestBuildChainLiquidityPoolOrientation(t *testing.T) {
	chain := &registry.Chain{
		ChainID: 1,
		Pairs: []registry.Pair{
			testPair("0xAAA0000000000000000000000000000000000001", "WETH", "mUSD", "300", "1000000"),
		},
	}
	liq := buildChainLiquidity(chain, Allowlist{})

	rIn, rOut, p, ok := liq.reserves("mUSD", "WETH")
	require.True(t, ok)
	assert.Equal(t, "1000000", rIn.String())
	assert.Equal(t, "300", rOut.String())
	assert.Equal(t, "0xaaa0000000000000000000000000000000000001", p.Address)
	assert.Equal(t, "300", p.minReserve().String())

	// Reversed orientation swaps the reserves back.
	rIn, rOut, _, ok = liq.reserves("WETH", "mUSD")
	require.True(t, ok)
	assert.Equal(t, "300", rIn.String())
	assert.Equal(t, "1000000", rOut.String())
}

func TestGroupPairsSkipsDegenerate(t *testing.T) {
	groups := groupPairs([]registry.Pair{
		testPair("0x01", "WETH", "mUSD", "1", "1"),
		testPair("0x02", "", "mUSD", "1", "1"),
		testPair("0x03", "WETH", "weth", "1", "1"),
		testPair("0x04", "MUSD", "weth", "2", "2"),
	})

	require.Len(t, groups, 1)
	assert.Len(t, groups["MUSD|WETH"], 2)
}

func TestSelectCanonicalPairPrefersAllowlisted(t *testing.T) {
	allow := ParseAllowlist("1:0xbbb0000000000000000000000000000000000002")
	candidates := []registry.Pair{
		testPair("0xaaa0000000000000000000000000000000000001", "mUSD", "WETH", "1000000", "300"),
		testPair("0xbbb0000000000000000000000000000000000002", "mUSD", "WETH", "10", "1"),
	}

	best := selectCanonicalPair(1, candidates, allow)
	assert.Equal(t, "0xbbb0000000000000000000000000000000000002", best.PairAddress)
}

func TestSelectCanonicalPairPrefersDeeperReserves(t *testing.T) {
	candidates := []registry.Pair{
		testPair("0xaaa0000000000000000000000000000000000001", "mUSD", "WETH", "10", "1"),
		testPair("0xbbb0000000000000000000000000000000000002", "mUSD", "WETH", "1000000", "300"),
	}

	best := selectCanonicalPair(1, candidates, Allowlist{})
	assert.Equal(t, "0xbbb0000000000000000000000000000000000002", best.PairAddress)
}

func TestSelectCanonicalPairTiebreaks(t *testing.T) {
	newer := testPair("0xaaa0000000000000000000000000000000000001", "mUSD", "WETH", "10", "10")
	newer.CheckedAt = "2026-03-14T16:00:00Z"
	older := testPair("0xccc0000000000000000000000000000000000003", "mUSD", "WETH", "10", "10")
	older.CheckedAt = "2026-03-14T15:00:00Z"

	best := selectCanonicalPair(1, []registry.Pair{older, newer}, Allowlist{})
	assert.Equal(t, "0xaaa0000000000000000000000000000000000001", best.PairAddress)

	// Same reserves and timestamp: highest address wins for determinism.
	twin := testPair("0xddd0000000000000000000000000000000000004", "mUSD", "WETH", "10", "10")
	twin.CheckedAt = older.CheckedAt
	best = selectCanonicalPair(1, []registry.Pair{older, twin}, Allowlist{})
	assert.Equal(t, "0xddd0000000000000000000000000000000000004", best.PairAddress)
}

func TestDecTreatsGarbageAsZero(t *testing.T) {
	assert.True(t, dec("").IsZero())
	assert.True(t, dec("not-a-number").IsZero())
	assert.Equal(t, "1.5", dec(" 1.5 ").String())
}

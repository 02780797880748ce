package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcryptoex/tempo/internal/quote"
	"github.com/mcryptoex/tempo/internal/registry"
)

func registryPair(addr, sym0, sym1, reserve0, reserve1 string) registry.Pair {
	return registry.Pair{
		PairAddress:     addr,
		Token0Address:   "0x1000000000000000000000000000000000000001",
		Token1Address:   "0x1000000000000000000000000000000000000002",
		Token0Symbol:    sym0,
		Token1Symbol:    sym1,
		Reserve0Decimal: reserve0,
		Reserve1Decimal: reserve1,
		CheckedAt:       "2026-03-14T15:00:00Z",
	}
}

func TestCollectRegistryPairsFilters(t *testing.T) {
	snap := &registry.Snapshot{Chains: []registry.Chain{
		{
			ChainID: 31337,
			Pairs: []registry.Pair{
				registryPair("0xAAA0000000000000000000000000000000000001", "mUSD", "WETH", "1", "1"),
				registryPair("", "mUSD", "WETH", "1", "1"),
				registryPair("0xaaa0000000000000000000000000000000000002", "WETH", "weth", "1", "1"),
				{
					PairAddress:   "0xaaa0000000000000000000000000000000000003",
					Token0Symbol:  "mUSD",
					Token1Symbol:  "WETH",
					Token0Address: "0xsame",
					Token1Address: "0xSAME",
				},
			},
		},
		{ChainID: 11155111, Pairs: []registry.Pair{
			registryPair("0xbbb0000000000000000000000000000000000001", "mUSD", "WETH", "1", "1"),
		}},
		{ChainID: 0, Pairs: []registry.Pair{
			registryPair("0xccc0000000000000000000000000000000000001", "mUSD", "WETH", "1", "1"),
		}},
	}}

	all := collectRegistryPairs(snap, 0)
	require.Len(t, all, 2)
	assert.Contains(t, all, poolKey{31337, "0xaaa0000000000000000000000000000000000001"})
	assert.Contains(t, all, poolKey{11155111, "0xbbb0000000000000000000000000000000000001"})

	scoped := collectRegistryPairs(snap, 31337)
	require.Len(t, scoped, 1)
	assert.Contains(t, scoped, poolKey{31337, "0xaaa0000000000000000000000000000000000001"})
}

func TestSelectCanonicalPairsByLiquidity(t *testing.T) {
	deep := poolKey{31337, "0xaaa0000000000000000000000000000000000001"}
	shallow := poolKey{31337, "0xaaa0000000000000000000000000000000000002"}
	pairs := map[poolKey]registry.Pair{
		deep:    registryPair(deep.address, "mUSD", "WETH", "1000000", "300"),
		shallow: registryPair(shallow.address, "WETH", "mUSD", "10", "1"),
	}

	canonical := selectCanonicalPairs(pairs, quote.Allowlist{})
	require.Len(t, canonical, 1)
	assert.Contains(t, canonical, deep)
}

func TestSelectCanonicalPairsAllowlistWins(t *testing.T) {
	deep := poolKey{31337, "0xaaa0000000000000000000000000000000000001"}
	pinned := poolKey{31337, "0xaaa0000000000000000000000000000000000002"}
	pairs := map[poolKey]registry.Pair{
		deep:   registryPair(deep.address, "mUSD", "WETH", "1000000", "300"),
		pinned: registryPair(pinned.address, "mUSD", "WETH", "10", "1"),
	}

	canonical := selectCanonicalPairs(pairs, quote.ParseAllowlist("31337:"+pinned.address))
	require.Len(t, canonical, 1)
	assert.Contains(t, canonical, pinned)
}

func TestSelectCanonicalPairsPerSymbolGroup(t *testing.T) {
	weth := poolKey{31337, "0xaaa0000000000000000000000000000000000001"}
	wbtc := poolKey{31337, "0xaaa0000000000000000000000000000000000002"}
	pairs := map[poolKey]registry.Pair{
		weth: registryPair(weth.address, "mUSD", "WETH", "10", "10"),
		wbtc: registryPair(wbtc.address, "mUSD", "WBTC", "10", "10"),
	}

	canonical := selectCanonicalPairs(pairs, quote.Allowlist{})
	assert.Len(t, canonical, 2)
}

func TestPairLiquidityScoreRequiresBothSides(t *testing.T) {
	assert.True(t, pairLiquidityScore(registryPair("0x01", "A", "B", "10", "0")).IsZero())
	assert.True(t, pairLiquidityScore(registryPair("0x01", "A", "B", "", "5")).IsZero())
	assert.Equal(t, "50", pairLiquidityScore(registryPair("0x01", "A", "B", "10", "5")).String())
}

func TestSortPairRowsByActivity(t *testing.T) {
	older := time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	rows := []PairRow{
		{PoolAddress: "quiet", Swaps: 1},
		{PoolAddress: "busy", Swaps: 10, LastSwapAt: &older},
		{PoolAddress: "recent", Swaps: 10, LastSwapAt: &newer},
	}

	sortPairRows(rows, false)
	assert.Equal(t, "recent", rows[0].PoolAddress)
	assert.Equal(t, "busy", rows[1].PoolAddress)
	assert.Equal(t, "quiet", rows[2].PoolAddress)
}

func TestSortPairRowsCanonicalFirst(t *testing.T) {
	rows := []PairRow{
		{PoolAddress: "busy-external", Swaps: 100},
		{PoolAddress: "canonical", Swaps: 1, Canonical: true},
	}

	sortPairRows(rows, true)
	assert.Equal(t, "canonical", rows[0].PoolAddress)

	sortPairRows(rows, false)
	assert.Equal(t, "busy-external", rows[0].PoolAddress)
}

func TestDedupePairRowsKeepsBestPerSymbolPair(t *testing.T) {
	rows := []PairRow{
		{
			ChainID:      31337,
			PoolAddress:  "0xledger",
			Token0Symbol: "mUSD",
			Token1Symbol: "WETH",
			Source:       "ledger",
			Swaps:        50,
		},
		{
			ChainID:       31337,
			PoolAddress:   "0xcanonical",
			Token0Symbol:  "WETH",
			Token1Symbol:  "mUSD",
			Token0Address: "0x1000000000000000000000000000000000000001",
			Token1Address: "0x1000000000000000000000000000000000000002",
			Source:        "registry+ledger",
			Canonical:     true,
			Swaps:         5,
		},
	}

	out := dedupePairRows(rows)
	require.Len(t, out, 1)
	assert.Equal(t, "0xcanonical", out[0].PoolAddress)
}

func TestDedupePairRowsSymbollessKeyedByPool(t *testing.T) {
	rows := []PairRow{
		{ChainID: 31337, PoolAddress: "0xaaa", Source: "ledger", Swaps: 3},
		{ChainID: 31337, PoolAddress: "0xbbb", Source: "ledger", Swaps: 2},
		{ChainID: 31337, PoolAddress: "0xAAA", Source: "ledger", Swaps: 1},
	}

	out := dedupePairRows(rows)
	require.Len(t, out, 2)
	assert.Equal(t, "0xaaa", out[0].PoolAddress)
	assert.Equal(t, int64(3), out[0].Swaps)
}

func TestDedupePairRowsPreservesInsertionOrder(t *testing.T) {
	rows := []PairRow{
		{ChainID: 1, Token0Symbol: "A", Token1Symbol: "B", Swaps: 1},
		{ChainID: 1, Token0Symbol: "C", Token1Symbol: "D", Swaps: 9},
		{ChainID: 1, Token0Symbol: "B", Token1Symbol: "A", Swaps: 2},
	}

	out := dedupePairRows(rows)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].Token0Symbol)
	assert.Equal(t, int64(2), out[0].Swaps)
	assert.Equal(t, "C", out[1].Token0Symbol)
}

func TestRowScoreOrdering(t *testing.T) {
	canonical := PairRow{Canonical: true}
	addressed := PairRow{
		Token0Address: "0x1000000000000000000000000000000000000001",
		Token1Address: "0x1000000000000000000000000000000000000002",
		Swaps:         1000,
	}
	registryBacked := PairRow{Source: "registry", Swaps: 1000}
	busy := PairRow{Source: "ledger", Swaps: 1000}

	assert.True(t, scoreGreater(rowScore(canonical), rowScore(addressed)))
	assert.True(t, scoreGreater(rowScore(addressed), rowScore(registryBacked)))
	assert.True(t, scoreGreater(rowScore(registryBacked), rowScore(busy)))
	assert.False(t, scoreGreater(rowScore(busy), rowScore(busy)))
}

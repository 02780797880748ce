package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsEVMAddress(t *testing.T) {
	assert.True(t, IsEVMAddress("0xB6322eD8561604Ca2A1b9c17e4d02B957EB242fe"))
	assert.True(t, IsEVMAddress("0x0000000000000000000000000000000000000000"))
	assert.False(t, IsEVMAddress("B6322eD8561604Ca2A1b9c17e4d02B957EB242fe"))
	assert.False(t, IsEVMAddress("0x123"))
	assert.False(t, IsEVMAddress("bridge-wsol"))
	assert.False(t, IsEVMAddress(""))
}

func TestDedupeTokensPriority(t *testing.T) {
	tokens := []Token{
		{Symbol: "WSOL", Address: "bridge-wsol", Source: "defaults"},
		{Symbol: "wsol", Address: "0x1000000000000000000000000000000000000001", Source: "pair-discovery"},
		{Symbol: "WETH", Address: "0x2000000000000000000000000000000000000002", Source: "deployed"},
		{Symbol: "WETH", Address: "0x3000000000000000000000000000000000000003", Source: "contracts"},
		{Symbol: "", Address: "0x4000000000000000000000000000000000000004"},
	}

	out := DedupeTokens(tokens)
	require.Len(t, out, 2)

	// Sorted by UPPER(symbol); highest-priority entry survives per symbol.
	assert.Equal(t, "WETH", out[0].Symbol)
	assert.Equal(t, "0x3000000000000000000000000000000000000003", out[0].Address)
	assert.Equal(t, "wsol", out[1].Symbol)
	assert.Equal(t, "0x1000000000000000000000000000000000000001", out[1].Address)
}

func TestDedupeTokensDeterministic(t *testing.T) {
	tokens := []Token{
		{Symbol: "B", Address: "0x2000000000000000000000000000000000000002", Source: "deployed"},
		{Symbol: "A", Address: "0x1000000000000000000000000000000000000001", Source: "deployed"},
		{Symbol: "C", Address: "0x3000000000000000000000000000000000000003", Source: "deployed"},
	}

	first := DedupeTokens(tokens)
	second := DedupeTokens([]Token{tokens[2], tokens[0], tokens[1]})
	assert.Equal(t, first, second)
	assert.Equal(t, "A", first[0].Symbol)
	assert.Equal(t, "C", first[2].Symbol)
}

func TestTokensPayloadFiltersNonEVMAddresses(t *testing.T) {
	snap := &Snapshot{
		Version:     5,
		GeneratedAt: "2026-03-14T15:00:00Z",
		Chains: []Chain{{
			ChainKey: "local",
			ChainID:  31337,
			AMM:      AMMFees{SwapFeeBps: 30, ProtocolFeeBps: 5},
			Tokens: []Token{
				{Symbol: "mUSD", Address: "0x1000000000000000000000000000000000000001", Source: "contracts"},
				{Symbol: "WSOL", Address: "bridge-wsol", Source: "defaults"},
			},
		}},
	}

	payload := Tokens(snap)
	assert.Equal(t, 5, payload.RegistryVersion)
	assert.Equal(t, "2026-03-14T15:00:00Z", payload.GeneratedAt)

	executable := payload.Chains["31337"]
	require.Len(t, executable, 1)
	assert.Equal(t, "mUSD", executable[0].Symbol)

	require.Len(t, payload.Networks, 1)
	assert.Equal(t, 1, payload.Networks[0].TokenCount)
	assert.Equal(t, 30, payload.Networks[0].SwapFeeBps)
	assert.Equal(t, 5, payload.Networks[0].ProtocolFeeBps)
}

func TestTokensPayloadMergesStaticEntries(t *testing.T) {
	snap := &Snapshot{Chains: []Chain{{ChainKey: "bnb-testnet", ChainID: 97}}}

	payload := Tokens(snap)
	executable := payload.Chains["97"]
	require.Len(t, executable, 1)
	assert.Equal(t, "MODX", executable[0].Symbol)
	assert.Equal(t, "static.bnb-testnet", executable[0].Source)
}

func TestTokensPayloadDefaultsFeesAndSortsNetworks(t *testing.T) {
	snap := &Snapshot{Chains: []Chain{
		{ChainKey: "sepolia", ChainID: 11155111},
		{ChainKey: "local", ChainID: 31337},
		{ChainKey: "bad", ChainID: 0},
	}}

	payload := Tokens(snap)
	require.Len(t, payload.Networks, 2)
	assert.Equal(t, int64(31337), payload.Networks[0].ChainID)
	assert.Equal(t, int64(11155111), payload.Networks[1].ChainID)
	assert.Equal(t, 30, payload.Networks[0].SwapFeeBps)
	assert.Equal(t, 5, payload.Networks[0].ProtocolFeeBps)
}

func TestRiskAssumptions(t *testing.T) {
	snap := &Snapshot{Chains: []Chain{{
		ChainKey: "local",
		ChainID:  31337,
		Name:     "Localnet",
		TrustAssumptions: []TrustAssumption{{
			Endpoint:    "bridge",
			AssetSymbol: "WSOL",
			Category:    "bridge",
			RiskLevel:   "high",
		}},
	}}}

	payload := RiskAssumptions(snap, 31337)
	require.NotNil(t, payload)
	assert.Equal(t, "Localnet", payload.ChainName)
	require.Len(t, payload.Assumptions, 1)
	assert.Equal(t, "WSOL", payload.Assumptions[0].AssetSymbol)

	assert.Nil(t, RiskAssumptions(snap, 1))
}

func TestRiskAssumptionsNeverNilSlice(t *testing.T) {
	snap := &Snapshot{Chains: []Chain{{ChainKey: "local", ChainID: 31337}}}

	payload := RiskAssumptions(snap, 31337)
	require.NotNil(t, payload)
	assert.NotNil(t, payload.Assumptions)
	assert.Empty(t, payload.Assumptions)
}

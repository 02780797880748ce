package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcryptoex/tempo/internal/config"
)

const factoryAddr = "0xfac0000000000000000000000000000000000001"

var (
	testMUSDAddr  = "0x10c0000000000000000000000000000000000001"
	testWETHAddr  = "0x10c0000000000000000000000000000000000002"
	testPairAddr  = "0x10c0000000000000000000000000000000000003"
	testTokenAddr = "0x10c0000000000000000000000000000000000004"
)

// fakeRPC answers eth_call by (to, data) lookup.
type fakeRPC struct {
	block int64
	calls map[string]string
}

func (f *fakeRPC) key(to, data string) string {
	return strings.ToLower(to) + "|" + strings.ToLower(data)
}

func (f *fakeRPC) EthCall(_ context.Context, to, data string) (string, error) {
	if result, ok := f.calls[f.key(to, data)]; ok {
		return result, nil
	}
	return "", fmt.Errorf("unexpected eth_call to %s data %s", to, data)
}

func (f *fakeRPC) BlockNumber(_ context.Context) (int64, error) {
	if f.block <= 0 {
		return 0, fmt.Errorf("rpc down")
	}
	return f.block, nil
}

func (f *fakeRPC) set(to, data, result string) {
	if f.calls == nil {
		f.calls = map[string]string{}
	}
	f.calls[f.key(to, data)] = result
}

func addressWord(addr string) string {
	return "0x" + strings.Repeat("0", 24) + strings.TrimPrefix(strings.ToLower(addr), "0x")
}

func writeDeployedRegistry(t *testing.T, dir, network string, contracts map[string]string, pairs []string) {
	t.Helper()
	payload := map[string]any{
		"network":   network,
		"contracts": contracts,
		"pairs":     pairs,
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	path := filepath.Join(dir, "address-registry."+network+".json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
}

func newTestBuilder(t *testing.T, cfg config.BuilderSettings) *Builder {
	t.Helper()
	b := NewBuilder(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	b.Now = func() time.Time { return time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC) }
	b.Getenv = func(string) string { return "" }
	return b
}

func TestBuildDiscoversPairsOverRPC(t *testing.T) {
	deployDir := t.TempDir()
	writeDeployedRegistry(t, deployDir, "hardhat", map[string]string{
		"musd":           testMUSDAddr,
		"tokenA":         testWETHAddr,
		"harmonyFactory": factoryAddr,
		"stabilizer":     "0x10c0000000000000000000000000000000000009",
	}, nil)

	rpc := &fakeRPC{block: 123}
	rpc.set(factoryAddr, selAllPairsLength, "0x"+abiWord(1))
	rpc.set(factoryAddr, encodeUint256Arg(selAllPairs, 0), addressWord(testPairAddr))
	rpc.set(testPairAddr, selToken0, addressWord(testWETHAddr))
	rpc.set(testPairAddr, selToken1, addressWord(testMUSDAddr))
	rpc.set(testPairAddr, selGetReserves,
		"0x"+abiWord(2000000000000000000)+abiWord(5000000000000000000)+abiWord(1765000000))

	cfg := config.BuilderSettings{
		DeployDir:      deployDir,
		OutputPath:     filepath.Join(t.TempDir(), "chain-registry.generated.json"),
		SwapFeeBps:     30,
		ProtocolFeeBps: 5,
	}
	b := newTestBuilder(t, cfg)
	b.NewRPC = func(url string) rpcCaller { return rpc }

	snap, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Version)
	assert.Equal(t, "2026-03-14T15:00:00Z", snap.GeneratedAt)
	require.Len(t, snap.Chains, len(ChainSpecs))

	local := snap.ChainByKey("hardhat-local")
	require.NotNil(t, local)
	assert.True(t, local.NetworkHealth.RPCConnected)
	assert.Equal(t, "ok", local.NetworkHealth.DiscoveryStatus)
	require.NotNil(t, local.NetworkHealth.LatestBlock)
	assert.Equal(t, int64(123), *local.NetworkHealth.LatestBlock)

	require.Len(t, local.Pairs, 1)
	pair := local.Pairs[0]
	assert.Equal(t, testPairAddr, pair.PairAddress)
	assert.Equal(t, "WETH", pair.Token0Symbol)
	assert.Equal(t, "mUSD", pair.Token1Symbol)
	assert.Equal(t, "2", pair.Reserve0Decimal)
	assert.Equal(t, "5", pair.Reserve1Decimal)
	assert.Equal(t, "pair-discovery", pair.Source)
	assert.Equal(t, snap.GeneratedAt, pair.CheckedAt)

	assert.Equal(t, []string{testPairAddr}, local.Indexer.PairAddresses)
	assert.Equal(t, []string{"0x10c0000000000000000000000000000000000009"}, local.Indexer.StabilizerAddresses)
	assert.Equal(t, "address-registry.hardhat.json", local.Provenance.DeployedRegistryFile)
}

func TestBuildFallsBackToPreviousSnapshot(t *testing.T) {
	deployDir := t.TempDir()
	outputPath := filepath.Join(t.TempDir(), "chain-registry.generated.json")

	previous := &Snapshot{
		Version: 4,
		Chains: []Chain{{
			ChainKey: "hardhat-local",
			ChainID:  31337,
			Pairs: []Pair{{
				PairAddress:     testPairAddr,
				Token0Symbol:    "WETH",
				Token1Symbol:    "mUSD",
				Reserve0Decimal: "2",
				Reserve1Decimal: "5",
			}},
		}},
	}
	require.NoError(t, WriteSnapshot(outputPath, previous))

	cfg := config.BuilderSettings{DeployDir: deployDir, OutputPath: outputPath}
	b := newTestBuilder(t, cfg)
	b.NewRPC = func(url string) rpcCaller { return &fakeRPC{} }

	snap, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Version)

	local := snap.ChainByKey("hardhat-local")
	require.NotNil(t, local)
	assert.False(t, local.NetworkHealth.RPCConnected)
	assert.True(t, strings.HasPrefix(local.NetworkHealth.DiscoveryStatus, "fallback-previous"),
		"status %q", local.NetworkHealth.DiscoveryStatus)
	require.Len(t, local.Pairs, 1)
	assert.Equal(t, testPairAddr, local.Pairs[0].PairAddress)
}

func TestBuildFallbackEmptyWithoutSources(t *testing.T) {
	cfg := config.BuilderSettings{
		DeployDir:  t.TempDir(),
		OutputPath: filepath.Join(t.TempDir(), "chain-registry.generated.json"),
	}
	b := newTestBuilder(t, cfg)

	snap, err := b.Build(context.Background())
	require.NoError(t, err)

	sepolia := snap.ChainByKey("ethereum-sepolia")
	require.NotNil(t, sepolia)
	assert.False(t, sepolia.NetworkHealth.RPCConnected)
	assert.True(t, strings.HasPrefix(sepolia.NetworkHealth.DiscoveryStatus, "fallback-empty"))
	assert.NotNil(t, sepolia.Pairs)
	assert.Empty(t, sepolia.Pairs)
	assert.Equal(t, snap.GeneratedAt, sepolia.NetworkHealth.CheckedAt)
}

func TestBuildDeterministicForFixedInputs(t *testing.T) {
	cfg := config.BuilderSettings{
		DeployDir:  t.TempDir(),
		OutputPath: filepath.Join(t.TempDir(), "chain-registry.generated.json"),
	}
	b := newTestBuilder(t, cfg)

	first, err := b.Build(context.Background())
	require.NoError(t, err)
	second, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildMergesSeedPairs(t *testing.T) {
	seedPath := filepath.Join(t.TempDir(), "pair-seed.json")
	seed := map[string][]Pair{
		"ethereum-sepolia": {{
			PairAddress:     strings.ToUpper(testPairAddr),
			Token0Symbol:    "WETH",
			Token1Symbol:    "mUSD",
			Reserve0Decimal: "0",
			Reserve1Decimal: "0",
			Source:          "seed",
		}},
	}
	raw, err := json.Marshal(seed)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(seedPath, raw, 0o644))

	cfg := config.BuilderSettings{
		DeployDir:    t.TempDir(),
		OutputPath:   filepath.Join(t.TempDir(), "chain-registry.generated.json"),
		PairSeedPath: seedPath,
	}
	b := newTestBuilder(t, cfg)

	snap, err := b.Build(context.Background())
	require.NoError(t, err)

	sepolia := snap.ChainByKey("ethereum-sepolia")
	require.NotNil(t, sepolia)
	require.Len(t, sepolia.Pairs, 1)
	assert.Equal(t, testPairAddr, sepolia.Pairs[0].PairAddress)
	assert.True(t, strings.HasPrefix(sepolia.NetworkHealth.DiscoveryStatus, "fallback-seed"))
}

func TestMergeDiscoveredTokens(t *testing.T) {
	b := newTestBuilder(t, config.BuilderSettings{})

	tokens := []Token{{Symbol: "mUSD", Address: testMUSDAddr}}
	pairs := []Pair{{
		Token0Address:  testMUSDAddr,
		Token0Symbol:   "mUSD",
		Token1Address:  testTokenAddr,
		Token1Symbol:   "NEW",
		Token1Decimals: 6,
	}}

	merged := b.mergeDiscoveredTokens(tokens, pairs)
	require.Len(t, merged, 2)
	assert.Equal(t, "NEW", merged[1].Symbol)
	assert.Equal(t, 6, merged[1].Decimals)
	assert.Equal(t, "pair-discovery", merged[1].Source)
}

func TestTrustAssumptionsEnvOverrides(t *testing.T) {
	b := newTestBuilder(t, config.BuilderSettings{})
	env := map[string]string{
		"BRIDGE_PROVIDER_WBTC":         "global-custodian",
		"BRIDGE_PROVIDER_WBTC_SEPOLIA": "sepolia-custodian",
	}
	b.Getenv = func(key string) string { return env[key] }

	sepolia := b.trustAssumptions(ChainSpec{Network: "sepolia"})
	require.Len(t, sepolia, 3)
	assert.Equal(t, "sepolia-custodian", sepolia[1].Provider)

	bsc := b.trustAssumptions(ChainSpec{Network: "bscTestnet"})
	assert.Equal(t, "global-custodian", bsc[1].Provider)
}

func TestWriteSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "chain-registry.generated.json")
	snap := &Snapshot{Version: 9, GeneratedAt: "2026-03-14T15:00:00Z", Chains: []Chain{}}

	require.NoError(t, WriteSnapshot(path, snap))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(raw), "\n"))

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 9, decoded.Version)
}

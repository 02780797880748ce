package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mcryptoex/tempo/internal/config"
)

// ChainSpec is the static description of a supported chain.
type ChainSpec struct {
	Network           string
	ChainKey          string
	ChainID           int64
	Name              string
	RPCEnvKey         string
	DefaultRPCURL     string
	ConfirmationDepth int64
}

// ChainSpecs lists the chains the builder assembles, in output order.
var ChainSpecs = []ChainSpec{
	{
		Network:           "hardhat",
		ChainKey:          "hardhat-local",
		ChainID:           31337,
		Name:              "Hardhat Local",
		RPCEnvKey:         "INDEXER_HARDHAT_RPC_URL",
		DefaultRPCURL:     "http://host.docker.internal:8545",
		ConfirmationDepth: 0,
	},
	{
		Network:           "sepolia",
		ChainKey:          "ethereum-sepolia",
		ChainID:           11155111,
		Name:              "Ethereum Sepolia",
		RPCEnvKey:         "SEPOLIA_RPC_URL",
		DefaultRPCURL:     "",
		ConfirmationDepth: 2,
	},
	{
		Network:           "bscTestnet",
		ChainKey:          "bnb-testnet",
		ChainID:           97,
		Name:              "BNB Chain Testnet",
		RPCEnvKey:         "BSC_TESTNET_RPC_URL",
		DefaultRPCURL:     "",
		ConfirmationDepth: 3,
	},
}

// rpcCaller is the slice of RPCClient the builder needs; swapped in tests.
type rpcCaller interface {
	EthCall(ctx context.Context, to, data string) (string, error)
	BlockNumber(ctx context.Context) (int64, error)
}

// Builder assembles registry snapshots from deployed-address files, live
// pair discovery and fallback sources.
type Builder struct {
	cfg config.BuilderSettings
	log *slog.Logger

	// Seams for tests; production uses the real clock, env and RPC client.
	Now    func() time.Time
	Getenv func(string) string
	NewRPC func(url string) rpcCaller
}

// NewBuilder creates a builder with production defaults.
func NewBuilder(cfg config.BuilderSettings, log *slog.Logger) *Builder {
	return &Builder{
		cfg:    cfg,
		log:    log,
		Now:    time.Now,
		Getenv: os.Getenv,
		NewRPC: func(url string) rpcCaller { return NewRPCClient(url) },
	}
}

// deployedRegistry is one address-registry.{network}.json file.
type deployedRegistry struct {
	Network   string            `json:"network"`
	Contracts map[string]string `json:"contracts"`
	Pairs     []string          `json:"pairs"`
}

// Build assembles a new snapshot. A run never fails hard as long as the
// inputs are readable; per-chain RPC trouble degrades to fallback pairs and
// is reported in that chain's network_health.
func (b *Builder) Build(ctx context.Context) (*Snapshot, error) {
	deployed, err := b.readDeployedRegistries()
	if err != nil {
		return nil, err
	}
	previous := readSnapshotFile(b.cfg.OutputPath)
	seed := b.readPairSeed()

	generatedAt := b.Now().UTC().Format(time.RFC3339)

	snap := &Snapshot{
		Version:     previous.Version + 1,
		GeneratedAt: generatedAt,
		Source:      "packages/contracts/deploy/address-registry.*.json",
		Chains:      make([]Chain, 0, len(ChainSpecs)),
	}

	for _, spec := range ChainSpecs {
		entry := b.buildChain(ctx, spec, deployed[spec.Network], previous, seed[spec.ChainKey], generatedAt)
		snap.Chains = append(snap.Chains, entry)
	}

	return snap, nil
}

func (b *Builder) readDeployedRegistries() (map[string]deployedRegistry, error) {
	found := make(map[string]deployedRegistry)

	paths, err := filepath.Glob(filepath.Join(b.cfg.DeployDir, "address-registry.*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob deploy dir: %w", err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read deployed registry %s: %w", path, err)
		}
		var payload deployedRegistry
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("parse deployed registry %s: %w", path, err)
		}
		network := strings.TrimSpace(payload.Network)
		if network != "" {
			found[network] = payload
		}
	}
	return found, nil
}

// readPairSeed loads the optional pair-seed file: chain_key → pairs.
func (b *Builder) readPairSeed() map[string][]Pair {
	if b.cfg.PairSeedPath == "" {
		return nil
	}
	raw, err := os.ReadFile(b.cfg.PairSeedPath)
	if err != nil {
		return nil
	}
	var seed map[string][]Pair
	if err := json.Unmarshal(raw, &seed); err != nil {
		b.log.Warn("pair seed file unreadable, ignoring", "path", b.cfg.PairSeedPath, "error", err)
		return nil
	}
	return seed
}

func (b *Builder) buildChain(
	ctx context.Context,
	spec ChainSpec,
	deployed deployedRegistry,
	previous *Snapshot,
	seedPairs []Pair,
	generatedAt string,
) Chain {
	contracts := deployed.Contracts
	if contracts == nil {
		contracts = map[string]string{}
	}
	stabilizer := contracts["stabilizer"]

	entry := Chain{
		ChainKey:      spec.ChainKey,
		ChainID:       spec.ChainID,
		Name:          spec.Name,
		Network:       spec.Network,
		RPCEnvKey:     spec.RPCEnvKey,
		DefaultRPCURL: spec.DefaultRPCURL,
		AMM: AMMFees{
			SwapFeeBps:     b.cfg.SwapFeeBps,
			ProtocolFeeBps: b.cfg.ProtocolFeeBps,
		},
		Contracts: Contracts{
			MUSD:           contracts["musd"],
			Stabilizer:     stabilizer,
			Oracle:         contracts["oracle"],
			HarmonyFactory: contracts["harmonyFactory"],
			HarmonyRouter:  contracts["harmonyRouter"],
			ResonanceVault: contracts["resonanceVault"],
		},
		Indexer: IndexerConfig{
			PairAddresses:       []string{},
			StabilizerAddresses: []string{},
			StartBlock:          "latest",
			ConfirmationDepth:   spec.ConfirmationDepth,
		},
		Tokens:           b.resolveTokens(spec, contracts),
		TrustAssumptions: b.trustAssumptions(spec),
	}
	if stabilizer != "" {
		entry.Indexer.StabilizerAddresses = []string{stabilizer}
	}
	if deployed.Network != "" {
		entry.Provenance.DeployedRegistryFile = fmt.Sprintf("address-registry.%s.json", spec.Network)
	}

	pairs, latestBlock, discoverErr := b.discoverPairs(ctx, spec, entry.Contracts.HarmonyFactory, entry.Tokens, generatedAt)
	if discoverErr != nil {
		b.log.Warn("pair discovery failed, using fallback sources",
			"chain_key", spec.ChainKey, "error", discoverErr)
		pairs, entry.NetworkHealth = b.fallbackPairs(spec, previous, seedPairs, deployed, discoverErr)
	} else {
		entry.NetworkHealth = NetworkHealth{
			RPCConnected:    true,
			LatestBlock:     &latestBlock,
			DiscoveryStatus: "ok",
			CheckedAt:       generatedAt,
		}
	}
	entry.NetworkHealth.CheckedAt = generatedAt
	entry.Pairs = pairs

	for _, pair := range pairs {
		entry.Indexer.PairAddresses = append(entry.Indexer.PairAddresses, pair.PairAddress)
	}

	// Register tokens discovery found that the static lists do not cover.
	entry.Tokens = b.mergeDiscoveredTokens(entry.Tokens, pairs)

	return entry
}

func (b *Builder) resolveTokens(spec ChainSpec, contracts map[string]string) []Token {
	musd := contracts["musd"]
	if musd == "" {
		musd = "unconfigured-musd"
	}

	switch spec.ChainKey {
	case "hardhat-local":
		tokenA := fallbackAddr(contracts["tokenA"], "local-weth")
		tokenB := fallbackAddr(contracts["tokenB"], "local-wbtc")
		collateral := fallbackAddr(contracts["collateral"], "local-usdc")
		return []Token{
			{Symbol: "mUSD", Name: "Musical USD", Address: musd, Decimals: 18, Source: "contracts.musd"},
			{Symbol: "USDC", Name: "USD Coin (local collateral)", Address: collateral, Decimals: 6, Source: "contracts.collateral"},
			{Symbol: "WETH", Name: "Wrapped Ether", Address: tokenA, Decimals: 18, Source: "contracts.tokenA"},
			{Symbol: "WBTC", Name: "Wrapped Bitcoin", Address: tokenB, Decimals: 8, Source: "contracts.tokenB"},
			{Symbol: "WSOL", Name: "Wrapped SOL (EVM)", Address: "local-wsol", Decimals: 18, Source: "defaults"},
		}
	case "ethereum-sepolia":
		return []Token{
			{Symbol: "mUSD", Name: "Musical USD", Address: musd, Decimals: 18, Source: "contracts.musd"},
			{Symbol: "WETH", Name: "Wrapped Ether", Address: "bridge-weth-sepolia", Decimals: 18, Source: "defaults"},
			{Symbol: "wBTC", Name: "Wrapped Bitcoin (bridge)", Address: "bridge-wbtc-sepolia", Decimals: 8, Source: "defaults"},
			{Symbol: "wSOL", Name: "Wrapped SOL (bridge)", Address: "bridge-wsol-sepolia", Decimals: 18, Source: "defaults"},
		}
	default:
		return []Token{
			{Symbol: "mUSD", Name: "Musical USD", Address: musd, Decimals: 18, Source: "contracts.musd"},
			{Symbol: "WBNB", Name: "Wrapped BNB", Address: "bridge-wbnb-bsc", Decimals: 18, Source: "defaults"},
			{Symbol: "wBTC", Name: "Wrapped Bitcoin (bridge)", Address: "bridge-wbtc-bsc", Decimals: 18, Source: "defaults"},
			{Symbol: "wSOL", Name: "Wrapped SOL (bridge)", Address: "bridge-wsol-bsc", Decimals: 18, Source: "defaults"},
		}
	}
}

func fallbackAddr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// trustAssumptions carries the static risk statements, annotated with
// provider and attestation metadata from the environment when set.
// Per-network overrides use a _{NETWORK} suffix.
func (b *Builder) trustAssumptions(spec ChainSpec) []TrustAssumption {
	suffix := "_" + strings.ToUpper(spec.Network)
	envOr := func(base string) string {
		if v := b.Getenv(base + suffix); v != "" {
			return v
		}
		return b.Getenv(base)
	}

	return []TrustAssumption{
		{
			Endpoint:    "native-musd-policy",
			AssetSymbol: "mUSD",
			Category:    "native",
			RiskLevel:   "medium",
			Statement:   "Depends on Stabilizer collateral policy, oracle integrity, and governance controls.",
			Provider:    b.Getenv("MUSD_POLICY_PROVIDER"),
		},
		{
			Endpoint:       "wrapped-btc-evm",
			AssetSymbol:    "wBTC",
			Category:       "wrapped",
			RiskLevel:      "high",
			Statement:      "Bridge/custodian solvency and redeemability are external trust dependencies.",
			Provider:       envOr("BRIDGE_PROVIDER_WBTC"),
			LastAttestedAt: envOr("BRIDGE_LAST_ATTESTED_AT_WBTC"),
		},
		{
			Endpoint:       "wrapped-sol-evm",
			AssetSymbol:    "wSOL",
			Category:       "wrapped",
			RiskLevel:      "high",
			Statement:      "Wrapped SOL representation depends on bridge contract and message relayer security.",
			Provider:       envOr("BRIDGE_PROVIDER_WSOL"),
			LastAttestedAt: envOr("BRIDGE_LAST_ATTESTED_AT_WSOL"),
		},
	}
}

type tokenMeta struct {
	symbol   string
	decimals int
}

// discoverPairs walks the factory's pair list over JSON-RPC. Any RPC failure
// aborts discovery for the chain; the caller falls back to prior sources.
func (b *Builder) discoverPairs(
	ctx context.Context,
	spec ChainSpec,
	factory string,
	knownTokens []Token,
	generatedAt string,
) ([]Pair, int64, error) {
	rpcURL := b.Getenv(spec.RPCEnvKey)
	if rpcURL == "" {
		rpcURL = spec.DefaultRPCURL
	}
	if rpcURL == "" {
		return nil, 0, fmt.Errorf("no rpc url configured (%s empty)", spec.RPCEnvKey)
	}
	if !IsEVMAddress(factory) {
		return nil, 0, fmt.Errorf("no factory address deployed for %s", spec.ChainKey)
	}

	client := b.NewRPC(rpcURL)

	latestBlock, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("eth_blockNumber: %w", err)
	}

	lengthHex, err := client.EthCall(ctx, factory, selAllPairsLength)
	if err != nil {
		return nil, 0, fmt.Errorf("allPairsLength: %w", err)
	}
	length, err := decodeUintWord(lengthHex)
	if err != nil {
		return nil, 0, fmt.Errorf("allPairsLength: %w", err)
	}

	count := length.Int64()
	maxPairs := int64(b.cfg.MaxPairs)
	if maxPairs > 0 && count > maxPairs {
		count = maxPairs
	}

	tokens := make(map[string]tokenMeta)
	for _, t := range knownTokens {
		if IsEVMAddress(t.Address) {
			tokens[strings.ToLower(t.Address)] = tokenMeta{symbol: t.Symbol, decimals: t.Decimals}
		}
	}

	pairs := make([]Pair, 0, count)
	for i := int64(0); i < count; i++ {
		pair, err := b.discoverPair(ctx, client, factory, i, tokens, generatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("pair %d: %w", i, err)
		}
		pairs = append(pairs, pair)
	}

	return pairs, latestBlock, nil
}

func (b *Builder) discoverPair(
	ctx context.Context,
	client rpcCaller,
	factory string,
	index int64,
	tokens map[string]tokenMeta,
	generatedAt string,
) (Pair, error) {
	pairHex, err := client.EthCall(ctx, factory, encodeUint256Arg(selAllPairs, index))
	if err != nil {
		return Pair{}, fmt.Errorf("allPairs: %w", err)
	}
	pairAddr, err := decodeAddressWord(pairHex)
	if err != nil {
		return Pair{}, fmt.Errorf("allPairs: %w", err)
	}

	token0Hex, err := client.EthCall(ctx, pairAddr, selToken0)
	if err != nil {
		return Pair{}, fmt.Errorf("token0: %w", err)
	}
	token0Addr, err := decodeAddressWord(token0Hex)
	if err != nil {
		return Pair{}, fmt.Errorf("token0: %w", err)
	}

	token1Hex, err := client.EthCall(ctx, pairAddr, selToken1)
	if err != nil {
		return Pair{}, fmt.Errorf("token1: %w", err)
	}
	token1Addr, err := decodeAddressWord(token1Hex)
	if err != nil {
		return Pair{}, fmt.Errorf("token1: %w", err)
	}

	reservesHex, err := client.EthCall(ctx, pairAddr, selGetReserves)
	if err != nil {
		return Pair{}, fmt.Errorf("getReserves: %w", err)
	}
	reserve0, reserve1, err := decodeReservesResult(reservesHex)
	if err != nil {
		return Pair{}, fmt.Errorf("getReserves: %w", err)
	}

	token0 := b.tokenMeta(ctx, client, token0Addr, index, tokens)
	token1 := b.tokenMeta(ctx, client, token1Addr, index, tokens)

	return Pair{
		PairAddress:     strings.ToLower(pairAddr),
		Token0Address:   strings.ToLower(token0Addr),
		Token1Address:   strings.ToLower(token1Addr),
		Token0Symbol:    token0.symbol,
		Token1Symbol:    token1.symbol,
		Token0Decimals:  token0.decimals,
		Token1Decimals:  token1.decimals,
		Reserve0Raw:     reserve0.String(),
		Reserve1Raw:     reserve1.String(),
		Reserve0Decimal: scaleByDecimals(reserve0, token0.decimals),
		Reserve1Decimal: scaleByDecimals(reserve1, token1.decimals),
		CheckedAt:       generatedAt,
		Source:          "pair-discovery",
	}, nil
}

// tokenMeta resolves and caches symbol/decimals for a token address. Failed
// views degrade to TOKEN{i} / 18 rather than aborting discovery.
func (b *Builder) tokenMeta(
	ctx context.Context,
	client rpcCaller,
	address string,
	pairIndex int64,
	cache map[string]tokenMeta,
) tokenMeta {
	key := strings.ToLower(address)
	if meta, ok := cache[key]; ok {
		return meta
	}

	meta := tokenMeta{symbol: fmt.Sprintf("TOKEN%d", pairIndex), decimals: 18}

	if symbolHex, err := client.EthCall(ctx, address, selSymbol); err == nil {
		if symbol, err := decodeStringResult(symbolHex); err == nil && strings.TrimSpace(symbol) != "" {
			meta.symbol = strings.TrimSpace(symbol)
		}
	}
	if decimalsHex, err := client.EthCall(ctx, address, selDecimals); err == nil {
		if decimals, err := decodeUintWord(decimalsHex); err == nil && decimals.IsInt64() {
			d := int(decimals.Int64())
			if d >= 0 && d <= 36 {
				meta.decimals = d
			}
		}
	}

	cache[key] = meta
	return meta
}

// fallbackPairs merges {previous snapshot, pair seed, deployed pair targets}
// when discovery fails, first source wins per address.
func (b *Builder) fallbackPairs(
	spec ChainSpec,
	previous *Snapshot,
	seedPairs []Pair,
	deployed deployedRegistry,
	cause error,
) ([]Pair, NetworkHealth) {
	seen := make(map[string]struct{})
	var pairs []Pair
	var sources []string

	add := func(source string, candidates []Pair) {
		added := false
		for _, pair := range candidates {
			key := strings.ToLower(strings.TrimSpace(pair.PairAddress))
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			pair.PairAddress = key
			pairs = append(pairs, pair)
			added = true
		}
		if added {
			sources = append(sources, source)
		}
	}

	if prev := previous.ChainByKey(spec.ChainKey); prev != nil {
		add("previous", prev.Pairs)
	}
	add("seed", seedPairs)

	deployedPairs := make([]Pair, 0, len(deployed.Pairs))
	for _, addr := range deployed.Pairs {
		deployedPairs = append(deployedPairs, Pair{
			PairAddress:     addr,
			Reserve0Raw:     "0",
			Reserve1Raw:     "0",
			Reserve0Decimal: "0",
			Reserve1Decimal: "0",
			Source:          "deployed",
		})
	}
	add("deployed", deployedPairs)

	status := "fallback-empty"
	if len(sources) > 0 {
		status = "fallback-" + strings.Join(sources, "+")
	}

	if pairs == nil {
		pairs = []Pair{}
	}
	return pairs, NetworkHealth{
		RPCConnected:    false,
		DiscoveryStatus: fmt.Sprintf("%s: %v", status, cause),
	}
}

// mergeDiscoveredTokens appends tokens found during pair discovery that the
// static lists do not already cover.
func (b *Builder) mergeDiscoveredTokens(tokens []Token, pairs []Pair) []Token {
	known := make(map[string]struct{})
	for _, t := range tokens {
		if t.Address != "" {
			known[strings.ToLower(t.Address)] = struct{}{}
		}
	}

	for _, pair := range pairs {
		for _, side := range []struct {
			address  string
			symbol   string
			decimals int
		}{
			{pair.Token0Address, pair.Token0Symbol, pair.Token0Decimals},
			{pair.Token1Address, pair.Token1Symbol, pair.Token1Decimals},
		} {
			if !IsEVMAddress(side.address) || side.symbol == "" {
				continue
			}
			key := strings.ToLower(side.address)
			if _, ok := known[key]; ok {
				continue
			}
			known[key] = struct{}{}
			tokens = append(tokens, Token{
				Symbol:   side.symbol,
				Name:     side.symbol,
				Address:  side.address,
				Decimals: side.decimals,
				Source:   "pair-discovery",
			})
		}
	}
	return tokens
}

// WriteSnapshot writes the snapshot atomically: temp file in the target
// directory, then rename.
func WriteSnapshot(path string, snap *Snapshot) error {
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	raw = append(raw, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".chain-registry-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

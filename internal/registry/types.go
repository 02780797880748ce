// Package registry defines the chain-registry snapshot: the generated JSON
// document describing chains, contracts, tokens, pairs and trust assumptions
// that the indexer, quote engine and API consume. The builder writes it, the
// loader caches it.
package registry

// Snapshot is the on-disk chain-registry document.
type Snapshot struct {
	Version     int     `json:"version"`
	GeneratedAt string  `json:"generated_at,omitempty"`
	Source      string  `json:"source,omitempty"`
	Chains      []Chain `json:"chains"`
}

// Chain is one chain entry in the snapshot.
type Chain struct {
	ChainKey         string            `json:"chain_key"`
	ChainID          int64             `json:"chain_id"`
	Name             string            `json:"name"`
	Network          string            `json:"network"`
	RPCEnvKey        string            `json:"rpc_env_key"`
	DefaultRPCURL    string            `json:"default_rpc_url"`
	AMM              AMMFees           `json:"amm"`
	Contracts        Contracts         `json:"contracts"`
	Indexer          IndexerConfig     `json:"indexer"`
	Pairs            []Pair            `json:"pairs"`
	Tokens           []Token           `json:"tokens"`
	TrustAssumptions []TrustAssumption `json:"trust_assumptions"`
	NetworkHealth    NetworkHealth     `json:"network_health"`
	Provenance       Provenance        `json:"provenance"`
}

// AMMFees carries the pool fee schedule in basis points.
type AMMFees struct {
	SwapFeeBps     int `json:"swap_fee_bps"`
	ProtocolFeeBps int `json:"protocol_fee_bps"`
}

// Contracts holds the deployed protocol contract addresses.
type Contracts struct {
	MUSD           string `json:"musd"`
	Stabilizer     string `json:"stabilizer"`
	Oracle         string `json:"oracle"`
	HarmonyFactory string `json:"harmony_factory"`
	HarmonyRouter  string `json:"harmony_router"`
	ResonanceVault string `json:"resonance_vault"`
}

// IndexerConfig is the per-chain indexer watchlist and cursor defaults.
type IndexerConfig struct {
	PairAddresses       []string `json:"pair_addresses"`
	StabilizerAddresses []string `json:"stabilizer_addresses"`
	StartBlock          string   `json:"start_block"`
	ConfirmationDepth   int64    `json:"confirmation_depth"`
}

// Token is one registry token entry.
type Token struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	Source   string `json:"source"`
}

// Pair is one discovered (or seeded) AMM pair with its last-seen reserves.
// Reserves are recorded both raw and scaled by token decimals.
type Pair struct {
	PairAddress     string `json:"pair_address"`
	Token0Address   string `json:"token0_address"`
	Token1Address   string `json:"token1_address"`
	Token0Symbol    string `json:"token0_symbol"`
	Token1Symbol    string `json:"token1_symbol"`
	Token0Decimals  int    `json:"token0_decimals"`
	Token1Decimals  int    `json:"token1_decimals"`
	Reserve0Raw     string `json:"reserve0_raw"`
	Reserve1Raw     string `json:"reserve1_raw"`
	Reserve0Decimal string `json:"reserve0_decimal"`
	Reserve1Decimal string `json:"reserve1_decimal"`
	CheckedAt       string `json:"checked_at,omitempty"`
	Source          string `json:"source,omitempty"`
}

// TrustAssumption describes an external dependency a chain's assets rely on.
type TrustAssumption struct {
	Endpoint       string `json:"endpoint"`
	AssetSymbol    string `json:"asset_symbol"`
	Category       string `json:"category"`
	RiskLevel      string `json:"risk_level"`
	Statement      string `json:"statement"`
	Provider       string `json:"provider,omitempty"`
	LastAttestedAt string `json:"last_attested_at,omitempty"`
}

// NetworkHealth reports how the builder's last discovery run went.
type NetworkHealth struct {
	RPCConnected    bool   `json:"rpc_connected"`
	LatestBlock     *int64 `json:"latest_block"`
	DiscoveryStatus string `json:"discovery_status"`
	CheckedAt       string `json:"checked_at,omitempty"`
}

// Provenance records which inputs produced a chain entry.
type Provenance struct {
	DeployedRegistryFile string `json:"deployed_registry_file,omitempty"`
}

// Clone returns a deep copy so callers can never mutate cached state.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		Version:     s.Version,
		GeneratedAt: s.GeneratedAt,
		Source:      s.Source,
	}
	if s.Chains != nil {
		out.Chains = make([]Chain, len(s.Chains))
		for i := range s.Chains {
			out.Chains[i] = s.Chains[i].clone()
		}
	}
	return out
}

func (c Chain) clone() Chain {
	out := c
	out.Indexer.PairAddresses = append([]string(nil), c.Indexer.PairAddresses...)
	out.Indexer.StabilizerAddresses = append([]string(nil), c.Indexer.StabilizerAddresses...)
	out.Pairs = append([]Pair(nil), c.Pairs...)
	out.Tokens = append([]Token(nil), c.Tokens...)
	out.TrustAssumptions = append([]TrustAssumption(nil), c.TrustAssumptions...)
	if c.NetworkHealth.LatestBlock != nil {
		block := *c.NetworkHealth.LatestBlock
		out.NetworkHealth.LatestBlock = &block
	}
	return out
}

// ChainByID returns the chain entry for the given id, or nil.
func (s *Snapshot) ChainByID(chainID int64) *Chain {
	for i := range s.Chains {
		if s.Chains[i].ChainID == chainID {
			return &s.Chains[i]
		}
	}
	return nil
}

// ChainByKey returns the chain entry for the given key, or nil.
func (s *Snapshot) ChainByKey(chainKey string) *Chain {
	for i := range s.Chains {
		if s.Chains[i].ChainKey == chainKey {
			return &s.Chains[i]
		}
	}
	return nil
}

// EmptySnapshot is what the loader returns when the registry file is missing
// or unreadable: a valid, empty document rather than an error.
func EmptySnapshot() *Snapshot {
	return &Snapshot{Version: 0, Chains: []Chain{}}
}

// Package indexer polls EVM chains for AMM pair and stabilizer events and
// publishes canonical raw notes to the pipeline.
package indexer

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/mcryptoex/tempo/internal/config"
	"github.com/mcryptoex/tempo/internal/registry"
)

// Settings is the resolved indexer configuration: the environment half from
// config merged with the registry chain entry. Environment values win;
// registry values fill the gaps.
type Settings struct {
	ChainKey                string
	ChainID                 int64
	RPCURL                  string
	PairAddresses           []string
	StabilizerAddresses     []string
	PollIntervalSeconds     int
	StartBlock              int64 // -1 means "latest"
	ConfirmationDepth       int64
	NativeUSDPrice          decimal.Decimal
	SwapFeeBps              int
	ProtocolRevenueShareBps int
	EnableSimulation        bool
	SimulationInterval      int
	RegistryRefreshSeconds  int

	// Env-provided watchlists are never replaced by registry refreshes.
	PairAddressesOverridden       bool
	StabilizerAddressesOverridden bool
}

// normalizeAddresses drops malformed entries and checksums the rest.
func normalizeAddresses(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		candidate := strings.TrimSpace(value)
		if !common.IsHexAddress(candidate) {
			continue
		}
		out = append(out, common.HexToAddress(candidate).Hex())
	}
	return out
}

// ResolveSettings merges the config env values with the registry chain
// entry for cfg.Indexer.ChainKey. The lookup function lets callers pass
// os.Getenv for the chain's rpc_env_key indirection.
func ResolveSettings(cfg *config.Settings, loader *registry.Loader, getenv func(string) string) Settings {
	chainKey := strings.TrimSpace(cfg.Indexer.ChainKey)
	snap := loader.Snapshot()
	chain := snap.ChainByKey(chainKey)

	s := Settings{
		ChainKey:                chainKey,
		ChainID:                 31337,
		PollIntervalSeconds:     cfg.Indexer.PollIntervalSeconds,
		StartBlock:              -1,
		SwapFeeBps:              cfg.Indexer.SwapFeeBps,
		ProtocolRevenueShareBps: cfg.Indexer.ProtocolRevenueShareBps,
		EnableSimulation:        cfg.Indexer.EnableSimulation,
		SimulationInterval:      cfg.Indexer.SimulationInterval,
		RegistryRefreshSeconds:  cfg.Indexer.RegistryRefreshSeconds,
	}

	price, err := decimal.NewFromString(strings.TrimSpace(cfg.Indexer.NativeUSDPrice))
	if err != nil {
		price = decimal.NewFromInt(3300)
	}
	s.NativeUSDPrice = price

	startBlockRaw := strings.ToLower(strings.TrimSpace(cfg.Indexer.StartBlock))
	if chain != nil && startBlockRaw == "" {
		startBlockRaw = strings.ToLower(strings.TrimSpace(chain.Indexer.StartBlock))
	}
	if startBlockRaw != "" && startBlockRaw != "latest" {
		if n, err := strconv.ParseInt(startBlockRaw, 10, 64); err == nil {
			s.StartBlock = n
		}
	}

	if chain != nil {
		s.ChainID = chain.ChainID
		s.ConfirmationDepth = chain.Indexer.ConfirmationDepth
	}
	if cfg.Indexer.ChainID > 0 {
		s.ChainID = cfg.Indexer.ChainID
	}
	// -1 is the config sentinel for "take the registry's depth".
	if cfg.Indexer.ConfirmationDepth >= 0 {
		s.ConfirmationDepth = cfg.Indexer.ConfirmationDepth
	}

	s.RPCURL = strings.TrimSpace(cfg.Indexer.RPCURL)
	if s.RPCURL == "" && chain != nil {
		if key := strings.TrimSpace(chain.RPCEnvKey); key != "" {
			s.RPCURL = strings.TrimSpace(getenv(key))
		}
		if s.RPCURL == "" {
			s.RPCURL = strings.TrimSpace(chain.DefaultRPCURL)
		}
	}

	s.PairAddressesOverridden = strings.TrimSpace(cfg.Indexer.PairAddresses) != ""
	pairAddresses := config.CSV(cfg.Indexer.PairAddresses)
	if !s.PairAddressesOverridden && chain != nil && len(chain.Indexer.PairAddresses) > 0 {
		pairAddresses = chain.Indexer.PairAddresses
	}
	s.PairAddresses = normalizeAddresses(pairAddresses)

	s.StabilizerAddressesOverridden = strings.TrimSpace(cfg.Indexer.StabilizerAddresses) != ""
	stabilizerAddresses := config.CSV(cfg.Indexer.StabilizerAddresses)
	if !s.StabilizerAddressesOverridden && chain != nil && len(chain.Indexer.StabilizerAddresses) > 0 {
		stabilizerAddresses = chain.Indexer.StabilizerAddresses
	}
	s.StabilizerAddresses = normalizeAddresses(stabilizerAddresses)

	return s
}

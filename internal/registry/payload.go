package registry

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var evmAddressRe = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// IsEVMAddress reports whether value is a 20-byte hex address.
func IsEVMAddress(value string) bool {
	return evmAddressRe.MatchString(value)
}

// staticChainTokens are curated entries merged into the registry token list
// for chains whose deployments live outside the deploy-dir flow.
var staticChainTokens = map[int64][]Token{
	97: {
		{
			Symbol:   "MODX",
			Name:     "modX Token",
			Address:  "0xB6322eD8561604Ca2A1b9c17e4d02B957EB242fe",
			Decimals: 18,
			Source:   "static.bnb-testnet",
		},
	},
}

// NetworkSummary is the per-chain block of the tokens payload.
type NetworkSummary struct {
	ChainID             int64  `json:"chain_id"`
	ChainKey            string `json:"chain_key"`
	Name                string `json:"name"`
	Network             string `json:"network"`
	TokenCount          int    `json:"token_count"`
	PairCount           int    `json:"pair_count"`
	RouterAddress       string `json:"router_address"`
	FactoryAddress      string `json:"factory_address"`
	VaultAddress        string `json:"vault_address"`
	ProtocolFeeReceiver string `json:"protocol_fee_receiver"`
	MUSDAddress         string `json:"musd_address"`
	StabilizerAddress   string `json:"stabilizer_address"`
	SwapFeeBps          int    `json:"swap_fee_bps"`
	ProtocolFeeBps      int    `json:"protocol_fee_bps"`
	RPCConnected        bool   `json:"rpc_connected"`
	LatestCheckedBlock  *int64 `json:"latest_checked_block"`
}

// TokensPayload is the /tokens response body.
type TokensPayload struct {
	Chains          map[string][]Token `json:"chains"`
	Networks        []NetworkSummary   `json:"networks"`
	RegistryVersion int                `json:"registry_version"`
	GeneratedAt     string             `json:"generated_at"`
}

// RiskPayload is the /risk/assumptions response body.
type RiskPayload struct {
	ChainID     int64             `json:"chain_id"`
	ChainKey    string            `json:"chain_key"`
	ChainName   string            `json:"chain_name"`
	Assumptions []TrustAssumption `json:"assumptions"`
}

func normalizeToken(t Token) Token {
	t.Symbol = strings.TrimSpace(t.Symbol)
	t.Address = strings.TrimSpace(t.Address)
	if t.Decimals < 0 {
		t.Decimals = 0
	}
	if t.Decimals > 36 {
		t.Decimals = 36
	}
	return t
}

// tokenPriority scores a token for symbol dedupe. Higher wins; ties broken
// by longer address.
func tokenPriority(t Token) (int, int) {
	source := strings.ToLower(strings.TrimSpace(t.Source))

	score := 0
	if IsEVMAddress(t.Address) {
		score += 4
	}
	switch {
	case strings.HasPrefix(source, "contracts"):
		score += 3
	case strings.HasPrefix(source, "deployed"):
		score += 2
	case strings.HasPrefix(source, "pair-discovery"):
		score += 1
	case strings.HasPrefix(source, "defaults"):
		score--
	}

	// Prefer non-bridge placeholder addresses when symbol is duplicated.
	if strings.HasPrefix(t.Address, "bridge-") {
		score -= 2
	}

	return score, len(t.Address)
}

func priorityLess(a, b Token) bool {
	scoreA, lenA := tokenPriority(a)
	scoreB, lenB := tokenPriority(b)
	if scoreA != scoreB {
		return scoreA < scoreB
	}
	return lenA < lenB
}

// DedupeTokens keeps one token per UPPER(symbol), preferring higher priority,
// and returns the survivors sorted by UPPER(symbol) for deterministic output.
func DedupeTokens(tokens []Token) []Token {
	selected := make(map[string]Token)
	for _, token := range tokens {
		symbol := strings.TrimSpace(token.Symbol)
		if symbol == "" {
			continue
		}
		key := strings.ToUpper(symbol)
		current, ok := selected[key]
		if !ok || priorityLess(current, token) {
			selected[key] = token
		}
	}

	keys := make([]string, 0, len(selected))
	for key := range selected {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]Token, 0, len(keys))
	for _, key := range keys {
		out = append(out, selected[key])
	}
	return out
}

// Tokens builds the /tokens payload from the given snapshot: per-chain
// executable token lists (EVM addresses only, deduped by symbol priority)
// plus network summaries sorted by chain id.
func Tokens(snap *Snapshot) TokensPayload {
	payload := TokensPayload{
		Chains:          make(map[string][]Token),
		Networks:        []NetworkSummary{},
		RegistryVersion: snap.Version,
		GeneratedAt:     snap.GeneratedAt,
	}

	for i := range snap.Chains {
		chain := &snap.Chains[i]
		if chain.ChainID <= 0 {
			continue
		}

		merged := make([]Token, 0, len(chain.Tokens)+2)
		for _, t := range chain.Tokens {
			merged = append(merged, normalizeToken(t))
		}
		for _, t := range staticChainTokens[chain.ChainID] {
			merged = append(merged, normalizeToken(t))
		}

		executable := make([]Token, 0, len(merged))
		for _, t := range DedupeTokens(merged) {
			if IsEVMAddress(t.Address) {
				executable = append(executable, t)
			}
		}
		payload.Chains[strconv.FormatInt(chain.ChainID, 10)] = executable

		swapFee, protocolFee := chain.AMM.SwapFeeBps, chain.AMM.ProtocolFeeBps
		if swapFee == 0 {
			swapFee = 30
		}
		if protocolFee == 0 {
			protocolFee = 5
		}

		payload.Networks = append(payload.Networks, NetworkSummary{
			ChainID:             chain.ChainID,
			ChainKey:            chain.ChainKey,
			Name:                chain.Name,
			Network:             chain.Network,
			TokenCount:          len(executable),
			PairCount:           len(chain.Pairs),
			RouterAddress:       chain.Contracts.HarmonyRouter,
			FactoryAddress:      chain.Contracts.HarmonyFactory,
			VaultAddress:        chain.Contracts.ResonanceVault,
			ProtocolFeeReceiver: chain.Contracts.ResonanceVault,
			MUSDAddress:         chain.Contracts.MUSD,
			StabilizerAddress:   chain.Contracts.Stabilizer,
			SwapFeeBps:          swapFee,
			ProtocolFeeBps:      protocolFee,
			RPCConnected:        chain.NetworkHealth.RPCConnected,
			LatestCheckedBlock:  chain.NetworkHealth.LatestBlock,
		})
	}

	sort.Slice(payload.Networks, func(i, j int) bool {
		return payload.Networks[i].ChainID < payload.Networks[j].ChainID
	})

	return payload
}

// RiskAssumptions builds the /risk/assumptions payload for one chain, or nil
// when the chain is not in the snapshot.
func RiskAssumptions(snap *Snapshot, chainID int64) *RiskPayload {
	chain := snap.ChainByID(chainID)
	if chain == nil {
		return nil
	}
	assumptions := chain.TrustAssumptions
	if assumptions == nil {
		assumptions = []TrustAssumption{}
	}
	return &RiskPayload{
		ChainID:     chainID,
		ChainKey:    chain.ChainKey,
		ChainName:   chain.Name,
		Assumptions: assumptions,
	}
}

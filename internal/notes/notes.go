// Package notes defines the pipeline wire messages (DexTxRaw, DexTxValid,
// DexLedgerEntryBatch) and their protobuf binary codecs. The schemas are
// fixed by the .proto files under proto/; the codecs here are the shipped,
// pre-generated encoding — no runtime compilation.
package notes

import (
	"time"
)

// Action values accepted by the pipeline.
const (
	ActionSwap                     = "SWAP"
	ActionLiquidityAdd             = "LIQUIDITY_ADD"
	ActionLiquidityRemove          = "LIQUIDITY_REMOVE"
	ActionMUSDMint                 = "MUSD_MINT"
	ActionMUSDBurn                 = "MUSD_BURN"
	ActionProtocolFeeAccrued       = "PROTOCOL_FEE_ACCRUED"
	ActionFeeTransferredToTreasury = "FEE_TRANSFERRED_TO_TREASURY"
	ActionTreasuryConvertedToMUSD  = "TREASURY_CONVERTED_TO_MUSD"
	ActionDistributionExecuted     = "DISTRIBUTION_EXECUTED"
)

// AllowedActions is the closed action enum checked by the validator.
var AllowedActions = map[string]struct{}{
	ActionSwap:                     {},
	ActionLiquidityAdd:             {},
	ActionLiquidityRemove:          {},
	ActionMUSDMint:                 {},
	ActionMUSDBurn:                 {},
	ActionProtocolFeeAccrued:       {},
	ActionFeeTransferredToTreasury: {},
	ActionTreasuryConvertedToMUSD:  {},
	ActionDistributionExecuted:     {},
}

// Source tags carried on raw notes.
const (
	SourceChainIndexer = "chain-indexer"
	SourceSimulation   = "indexer-simulation"
	SourceAPIDebug     = "tempo-api-debug"
)

// RawNote is the DexTxRaw message: one decoded on-chain (or synthetic) event.
// All monetary fields are arbitrary-precision decimal strings.
type RawNote struct {
	NoteID             string
	CorrelationID      string
	ChainID            int64
	TxHash             string
	Action             string
	UserAddress        string
	PoolAddress        string
	TokenIn            string
	TokenOut           string
	AmountIn           string
	AmountOut          string
	FeeUSD             string
	GasUsed            string
	GasCostUSD         string
	ProtocolRevenueUSD string
	MinOut             string
	BlockNumber        int64
	OccurredAt         time.Time // zero value means unset
	Source             string
}

// ValidNote is the DexTxValid message: a raw note that passed validation,
// plus the derived stable transaction id.
type ValidNote struct {
	RawNote

	TxID              string
	ValidationVersion string
}

// LedgerEntry is one side of a double-entry row inside a batch.
type LedgerEntry struct {
	TxID               string
	NoteID             string
	ChainID            int64
	TxHash             string
	AccountID          string
	Side               string // debit or credit
	Asset              string
	Amount             string
	EntryType          string
	FeeUSD             string
	GasCostUSD         string
	ProtocolRevenueUSD string
	PoolAddress        string
	OccurredAt         time.Time
}

// LedgerEntryBatch is the DexLedgerEntryBatch message published per note.
type LedgerEntryBatch struct {
	BatchID       string
	TxID          string
	NoteID        string
	CorrelationID string
	ChainID       int64
	TxHash        string
	CreatedAt     time.Time
	Entries       []LedgerEntry
}

// OutboxEvent is the JSON payload written to dex_outbox (row and topic).
type OutboxEvent struct {
	EventType  string `json:"event_type"`
	TxID       string `json:"tx_id"`
	NoteID     string `json:"note_id"`
	ChainID    int64  `json:"chain_id"`
	TxHash     string `json:"tx_hash"`
	Action     string `json:"action"`
	OccurredAt string `json:"occurred_at"`
}

// DLQRecord is the JSON payload published to dex_dlq for quarantined input.
type DLQRecord struct {
	Error      string `json:"error"`
	PayloadHex string `json:"payload_hex"`
}

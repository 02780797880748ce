package indexer

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcryptoex/tempo/internal/notes"
)

// topicAddress extracts the address from an indexed event topic.
func topicAddress(topic common.Hash) string {
	return common.BytesToAddress(topic.Bytes()[12:]).Hex()
}

// dataWords splits event data into 32-byte words.
func dataWords(data []byte) [][]byte {
	words := make([][]byte, 0, len(data)/32)
	for i := 0; i+32 <= len(data); i += 32 {
		words = append(words, data[i:i+32])
	}
	return words
}

func wordBig(words [][]byte, i int) *big.Int {
	if i >= len(words) {
		return new(big.Int)
	}
	return new(big.Int).SetBytes(words[i])
}

// toDecimalString scales a raw integer amount down by the token decimals.
func toDecimalString(raw *big.Int, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).String()
}

// handleSwapLog decodes a pair Swap event. The data words are
// (amount0In, amount1In, amount0Out, amount1Out); the non-zero In picks
// token_in, the non-zero Out picks token_out.
func (ix *Indexer) handleSwapLog(ctx context.Context, entry *types.Log) error {
	meta, err := ix.pairMetaFor(ctx, entry.Address)
	if err != nil {
		return err
	}
	if len(entry.Topics) < 2 {
		return fmt.Errorf("swap log %s missing sender topic", entry.TxHash.Hex())
	}

	words := dataWords(entry.Data)
	amount0In, amount1In := wordBig(words, 0), wordBig(words, 1)
	amount0Out, amount1Out := wordBig(words, 2), wordBig(words, 3)

	tokenIn, tokenInDecimals, amountInRaw := meta.token1Symbol, meta.token1Decimals, amount1In
	if amount0In.Sign() > 0 {
		tokenIn, tokenInDecimals, amountInRaw = meta.token0Symbol, meta.token0Decimals, amount0In
	}
	tokenOut, tokenOutDecimals, amountOutRaw := meta.token1Symbol, meta.token1Decimals, amount1Out
	if amount0Out.Sign() > 0 {
		tokenOut, tokenOutDecimals, amountOutRaw = meta.token0Symbol, meta.token0Decimals, amount0Out
	}

	amountIn := decimal.NewFromBigInt(amountInRaw, -int32(tokenInDecimals))
	amountOut := decimal.NewFromBigInt(amountOutRaw, -int32(tokenOutDecimals))

	// Fees are valued in USD at ingest only when the input side is the
	// stable asset; other inputs are valued downstream.
	feeUSD := decimal.Zero
	if strings.ToUpper(tokenIn) == "MUSD" {
		feeUSD = amountIn.Mul(decimal.NewFromInt(int64(ix.settings.SwapFeeBps))).Div(decimal.NewFromInt(10000))
	}
	protocolRevenue := feeUSD.Mul(decimal.NewFromInt(int64(ix.settings.ProtocolRevenueShareBps))).Div(decimal.NewFromInt(10000))

	txHash := entry.TxHash.Hex()
	gas, err := ix.txGasMetrics(ctx, entry.TxHash)
	if err != nil {
		return err
	}
	occurredAt, err := ix.blockTimestamp(ctx, int64(entry.BlockNumber))
	if err != nil {
		return err
	}

	return ix.publishChainNote(ctx, entry, &notes.RawNote{
		Action:             notes.ActionSwap,
		TxHash:             txHash,
		UserAddress:        topicAddress(entry.Topics[1]),
		PoolAddress:        entry.Address.Hex(),
		TokenIn:            tokenIn,
		TokenOut:           tokenOut,
		AmountIn:           amountIn.String(),
		AmountOut:          amountOut.String(),
		FeeUSD:             feeUSD.String(),
		GasUsed:            gas.gasUsed,
		GasCostUSD:         gas.gasCostUSD,
		ProtocolRevenueUSD: protocolRevenue.String(),
		OccurredAt:         occurredAt,
	})
}

// handleLiquidityAddLog decodes a pair Mint event: (amount0, amount1).
func (ix *Indexer) handleLiquidityAddLog(ctx context.Context, entry *types.Log) error {
	return ix.handleLiquidityLog(ctx, entry, notes.ActionLiquidityAdd)
}

// handleLiquidityRemoveLog decodes a pair Burn event: (amount0, amount1, to).
func (ix *Indexer) handleLiquidityRemoveLog(ctx context.Context, entry *types.Log) error {
	return ix.handleLiquidityLog(ctx, entry, notes.ActionLiquidityRemove)
}

func (ix *Indexer) handleLiquidityLog(ctx context.Context, entry *types.Log, action string) error {
	meta, err := ix.pairMetaFor(ctx, entry.Address)
	if err != nil {
		return err
	}
	if len(entry.Topics) < 2 {
		return fmt.Errorf("%s log %s missing sender topic", action, entry.TxHash.Hex())
	}

	words := dataWords(entry.Data)
	amount0, amount1 := wordBig(words, 0), wordBig(words, 1)

	gas, err := ix.txGasMetrics(ctx, entry.TxHash)
	if err != nil {
		return err
	}
	occurredAt, err := ix.blockTimestamp(ctx, int64(entry.BlockNumber))
	if err != nil {
		return err
	}

	return ix.publishChainNote(ctx, entry, &notes.RawNote{
		Action:             action,
		TxHash:             entry.TxHash.Hex(),
		UserAddress:        topicAddress(entry.Topics[1]),
		PoolAddress:        entry.Address.Hex(),
		TokenIn:            meta.token0Symbol,
		TokenOut:           meta.token1Symbol,
		AmountIn:           toDecimalString(amount0, meta.token0Decimals),
		AmountOut:          toDecimalString(amount1, meta.token1Decimals),
		FeeUSD:             "0",
		GasUsed:            gas.gasUsed,
		GasCostUSD:         gas.gasCostUSD,
		ProtocolRevenueUSD: "0",
		OccurredAt:         occurredAt,
	})
}

// handleMUSDMintLog decodes a stabilizer NoteMinted event. topic1 is the
// user, topic2 the collateral token; data is (collateralIn, musdOut, price,
// recipient). mUSD is fixed at 18 decimals.
func (ix *Indexer) handleMUSDMintLog(ctx context.Context, entry *types.Log) error {
	if len(entry.Topics) < 3 {
		return fmt.Errorf("NoteMinted log %s missing topics", entry.TxHash.Hex())
	}

	collateralAddr := common.HexToAddress(topicAddress(entry.Topics[2]))
	collateral, err := ix.tokenMetaFor(ctx, collateralAddr)
	if err != nil {
		return err
	}

	words := dataWords(entry.Data)
	collateralIn, musdOut := wordBig(words, 0), wordBig(words, 1)

	gas, err := ix.txGasMetrics(ctx, entry.TxHash)
	if err != nil {
		return err
	}
	occurredAt, err := ix.blockTimestamp(ctx, int64(entry.BlockNumber))
	if err != nil {
		return err
	}

	return ix.publishChainNote(ctx, entry, &notes.RawNote{
		Action:             notes.ActionMUSDMint,
		TxHash:             entry.TxHash.Hex(),
		UserAddress:        topicAddress(entry.Topics[1]),
		PoolAddress:        entry.Address.Hex(),
		TokenIn:            collateral.symbol,
		TokenOut:           "mUSD",
		AmountIn:           toDecimalString(collateralIn, collateral.decimals),
		AmountOut:          toDecimalString(musdOut, 18),
		FeeUSD:             "0",
		GasUsed:            gas.gasUsed,
		GasCostUSD:         gas.gasCostUSD,
		ProtocolRevenueUSD: "0",
		OccurredAt:         occurredAt,
	})
}

// handleMUSDBurnLog decodes a stabilizer NoteBurned event: data is
// (musdIn, collateralOut, price, recipient).
func (ix *Indexer) handleMUSDBurnLog(ctx context.Context, entry *types.Log) error {
	if len(entry.Topics) < 3 {
		return fmt.Errorf("NoteBurned log %s missing topics", entry.TxHash.Hex())
	}

	collateralAddr := common.HexToAddress(topicAddress(entry.Topics[2]))
	collateral, err := ix.tokenMetaFor(ctx, collateralAddr)
	if err != nil {
		return err
	}

	words := dataWords(entry.Data)
	musdIn, collateralOut := wordBig(words, 0), wordBig(words, 1)

	gas, err := ix.txGasMetrics(ctx, entry.TxHash)
	if err != nil {
		return err
	}
	occurredAt, err := ix.blockTimestamp(ctx, int64(entry.BlockNumber))
	if err != nil {
		return err
	}

	return ix.publishChainNote(ctx, entry, &notes.RawNote{
		Action:             notes.ActionMUSDBurn,
		TxHash:             entry.TxHash.Hex(),
		UserAddress:        topicAddress(entry.Topics[1]),
		PoolAddress:        entry.Address.Hex(),
		TokenIn:            "mUSD",
		TokenOut:           collateral.symbol,
		AmountIn:           toDecimalString(musdIn, 18),
		AmountOut:          toDecimalString(collateralOut, collateral.decimals),
		FeeUSD:             "0",
		GasUsed:            gas.gasUsed,
		GasCostUSD:         gas.gasCostUSD,
		ProtocolRevenueUSD: "0",
		OccurredAt:         occurredAt,
	})
}

// publishChainNote fills the identity fields shared by all on-chain notes
// and publishes.
func (ix *Indexer) publishChainNote(ctx context.Context, entry *types.Log, note *notes.RawNote) error {
	note.NoteID = NoteID(ix.settings.ChainID, note.TxHash, entry.Index, note.Action)
	note.CorrelationID = uuid.NewString()
	note.ChainID = ix.settings.ChainID
	note.BlockNumber = int64(entry.BlockNumber)
	note.Source = notes.SourceChainIndexer
	if note.OccurredAt.IsZero() {
		note.OccurredAt = time.Now().UTC()
	}
	return ix.publishNote(ctx, note)
}

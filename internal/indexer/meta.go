package indexer

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

var (
	token0Call   = crypto.Keccak256([]byte("token0()"))[:4]
	token1Call   = crypto.Keccak256([]byte("token1()"))[:4]
	symbolCall   = crypto.Keccak256([]byte("symbol()"))[:4]
	decimalsCall = crypto.Keccak256([]byte("decimals()"))[:4]
)

type pairMeta struct {
	token0         common.Address
	token1         common.Address
	token0Symbol   string
	token1Symbol   string
	token0Decimals int
	token1Decimals int
}

type tokenMeta struct {
	symbol   string
	decimals int
}

type gasMetrics struct {
	gasUsed    string
	gasCostUSD string
}

func (ix *Indexer) callView(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return ix.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// pairMetaFor resolves and caches the token metadata of a pair contract.
func (ix *Indexer) pairMetaFor(ctx context.Context, pair common.Address) (pairMeta, error) {
	if meta, ok := ix.pairMeta[pair]; ok {
		return meta, nil
	}

	token0Raw, err := ix.callView(ctx, pair, token0Call)
	if err != nil {
		return pairMeta{}, fmt.Errorf("pair %s token0: %w", pair.Hex(), err)
	}
	token1Raw, err := ix.callView(ctx, pair, token1Call)
	if err != nil {
		return pairMeta{}, fmt.Errorf("pair %s token1: %w", pair.Hex(), err)
	}
	if len(token0Raw) < 32 || len(token1Raw) < 32 {
		return pairMeta{}, fmt.Errorf("pair %s returned short token addresses", pair.Hex())
	}

	token0 := common.BytesToAddress(token0Raw[12:32])
	token1 := common.BytesToAddress(token1Raw[12:32])

	meta0, err := ix.tokenMetaFor(ctx, token0)
	if err != nil {
		return pairMeta{}, err
	}
	meta1, err := ix.tokenMetaFor(ctx, token1)
	if err != nil {
		return pairMeta{}, err
	}

	meta := pairMeta{
		token0:         token0,
		token1:         token1,
		token0Symbol:   meta0.symbol,
		token1Symbol:   meta1.symbol,
		token0Decimals: meta0.decimals,
		token1Decimals: meta1.decimals,
	}
	ix.pairMeta[pair] = meta
	return meta, nil
}

// tokenMetaFor resolves and caches symbol/decimals for an ERC-20.
func (ix *Indexer) tokenMetaFor(ctx context.Context, token common.Address) (tokenMeta, error) {
	if meta, ok := ix.tokenMeta[token]; ok {
		return meta, nil
	}

	symbolRaw, err := ix.callView(ctx, token, symbolCall)
	if err != nil {
		return tokenMeta{}, fmt.Errorf("token %s symbol: %w", token.Hex(), err)
	}
	symbol, err := decodeABIString(symbolRaw)
	if err != nil {
		return tokenMeta{}, fmt.Errorf("token %s symbol: %w", token.Hex(), err)
	}

	decimalsRaw, err := ix.callView(ctx, token, decimalsCall)
	if err != nil {
		return tokenMeta{}, fmt.Errorf("token %s decimals: %w", token.Hex(), err)
	}
	decimals := 18
	if len(decimalsRaw) >= 32 {
		decimals = int(new(big.Int).SetBytes(decimalsRaw[:32]).Int64())
	}

	meta := tokenMeta{symbol: symbol, decimals: decimals}
	ix.tokenMeta[token] = meta
	return meta, nil
}

// decodeABIString decodes a string return value: the dynamic ABI form, or a
// legacy single bytes32 padded with NULs.
func decodeABIString(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("empty abi string result")
	}
	if len(raw) == 32 {
		return strings.TrimRight(string(raw), "\x00"), nil
	}
	if len(raw) < 64 {
		return "", fmt.Errorf("abi string result too short (%d bytes)", len(raw))
	}

	offset := new(big.Int).SetBytes(raw[:32])
	if !offset.IsInt64() || offset.Int64()+32 > int64(len(raw)) {
		return "", fmt.Errorf("abi string offset out of range")
	}
	start := offset.Int64()
	length := new(big.Int).SetBytes(raw[start : start+32])
	if !length.IsInt64() {
		return "", fmt.Errorf("abi string length invalid")
	}
	end := start + 32 + length.Int64()
	if end > int64(len(raw)) {
		end = int64(len(raw))
	}
	return string(raw[start+32 : end]), nil
}

// txGasMetrics resolves and caches (gas_used, gas_cost_usd) for a tx. The
// receipt is fetched once per tx regardless of how many logs it produced.
func (ix *Indexer) txGasMetrics(ctx context.Context, txHash common.Hash) (gasMetrics, error) {
	if metrics, ok := ix.txCost[txHash]; ok {
		return metrics, nil
	}

	receipt, err := ix.eth.TransactionReceipt(ctx, txHash)
	if err != nil {
		return gasMetrics{}, fmt.Errorf("receipt %s: %w", txHash.Hex(), err)
	}

	effectivePrice := receipt.EffectiveGasPrice
	if effectivePrice == nil {
		tx, _, err := ix.eth.TransactionByHash(ctx, txHash)
		if err != nil {
			return gasMetrics{}, fmt.Errorf("transaction %s: %w", txHash.Hex(), err)
		}
		effectivePrice = tx.GasPrice()
	}

	gasUsed := new(big.Int).SetUint64(receipt.GasUsed)
	weiCost := new(big.Int).Mul(gasUsed, effectivePrice)
	gasNative := decimal.NewFromBigInt(weiCost, -18)
	gasCostUSD := gasNative.Mul(ix.settings.NativeUSDPrice)

	metrics := gasMetrics{
		gasUsed:    gasUsed.String(),
		gasCostUSD: gasCostUSD.String(),
	}
	ix.txCost[txHash] = metrics
	return metrics, nil
}

// blockTimestamp resolves and caches a block's timestamp.
func (ix *Indexer) blockTimestamp(ctx context.Context, blockNumber int64) (time.Time, error) {
	if ts, ok := ix.blockTime[blockNumber]; ok {
		return ts, nil
	}

	header, err := ix.eth.HeaderByNumber(ctx, big.NewInt(blockNumber))
	if err != nil {
		return time.Time{}, fmt.Errorf("header %d: %w", blockNumber, err)
	}
	ts := time.Unix(int64(header.Time), 0).UTC()
	ix.blockTime[blockNumber] = ts
	return ts, nil
}

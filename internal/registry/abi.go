package registry

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Four-byte selectors of the factory, pair and ERC-20 views the builder
// calls. Keccak-256 of the canonical signatures.
const (
	selAllPairsLength = "0x574f2ba3" // allPairsLength()
	selAllPairs       = "0x1e3dd18b" // allPairs(uint256)
	selToken0         = "0x0dfe1681" // token0()
	selToken1         = "0xd21220a7" // token1()
	selGetReserves    = "0x0902f1ac" // getReserves()
	selDecimals       = "0x313ce567" // decimals()
	selSymbol         = "0x95d89b41" // symbol()
)

func parseHexUint(value string) (uint64, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return 0, nil
	}
	return strconv.ParseUint(trimmed, 16, 64)
}

// encodeUint256Arg appends one left-padded uint256 argument to a selector.
func encodeUint256Arg(selector string, value int64) string {
	return selector + fmt.Sprintf("%064x", value)
}

// abiWords splits an eth_call result into 32-byte words.
func abiWords(result string) ([][]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(result), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode abi result: %w", err)
	}
	words := make([][]byte, 0, len(raw)/32)
	for i := 0; i+32 <= len(raw); i += 32 {
		words = append(words, raw[i:i+32])
	}
	return words, nil
}

// decodeAddressWord extracts the address from the first return word.
func decodeAddressWord(result string) (string, error) {
	words, err := abiWords(result)
	if err != nil {
		return "", err
	}
	if len(words) == 0 {
		return "", fmt.Errorf("abi result %q too short for address", result)
	}
	return "0x" + hex.EncodeToString(words[0][12:]), nil
}

// decodeUintWord extracts the first return word as a big integer.
func decodeUintWord(result string) (*big.Int, error) {
	words, err := abiWords(result)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("abi result %q too short for uint", result)
	}
	return new(big.Int).SetBytes(words[0]), nil
}

// decodeReservesResult extracts (reserve0, reserve1) from getReserves().
// The third word (blockTimestampLast) is ignored.
func decodeReservesResult(result string) (*big.Int, *big.Int, error) {
	words, err := abiWords(result)
	if err != nil {
		return nil, nil, err
	}
	if len(words) < 2 {
		return nil, nil, fmt.Errorf("abi result %q too short for reserves", result)
	}
	return new(big.Int).SetBytes(words[0]), new(big.Int).SetBytes(words[1]), nil
}

// decodeStringResult decodes a string return value. Modern tokens return a
// dynamic ABI string (offset, length, data); some legacy tokens return a
// single non-dynamic 32-byte value padded with NULs.
func decodeStringResult(result string) (string, error) {
	words, err := abiWords(result)
	if err != nil {
		return "", err
	}
	if len(words) == 0 {
		return "", fmt.Errorf("abi result %q too short for string", result)
	}

	// Legacy bytes32 form.
	if len(words) == 1 {
		return strings.TrimRight(string(words[0]), "\x00"), nil
	}

	offset := new(big.Int).SetBytes(words[0])
	if !offset.IsInt64() || offset.Int64()%32 != 0 {
		return "", fmt.Errorf("abi string offset %s invalid", offset)
	}
	lengthWord := int(offset.Int64() / 32)
	if lengthWord >= len(words) {
		return "", fmt.Errorf("abi string offset %s out of range", offset)
	}

	length := new(big.Int).SetBytes(words[lengthWord])
	if !length.IsInt64() {
		return "", fmt.Errorf("abi string length %s invalid", length)
	}

	var data []byte
	for _, word := range words[lengthWord+1:] {
		data = append(data, word...)
	}
	n := int(length.Int64())
	if n > len(data) {
		n = len(data)
	}
	return string(data[:n]), nil
}

// scaleByDecimals renders a raw integer amount as a decimal string scaled
// down by the token's decimals, trailing zeros stripped.
func scaleByDecimals(raw *big.Int, decimals int) string {
	if decimals <= 0 {
		return raw.String()
	}
	text := raw.String()
	negative := strings.HasPrefix(text, "-")
	if negative {
		text = text[1:]
	}
	if len(text) <= decimals {
		text = strings.Repeat("0", decimals-len(text)+1) + text
	}
	intPart := text[:len(text)-decimals]
	fracPart := strings.TrimRight(text[len(text)-decimals:], "0")

	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if negative && out != "0" {
		out = "-" + out
	}
	return out
}

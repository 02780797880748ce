package registry

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func abiWord(value int64) string {
	return fmt.Sprintf("%064x", value)
}

func abiStringResult(s string) string {
	data := []byte(s)
	padded := make([]byte, (len(data)+31)/32*32)
	copy(padded, data)
	return "0x" + abiWord(32) + abiWord(int64(len(data))) + hex.EncodeToString(padded)
}

func TestParseHexUint(t *testing.T) {
	n, err := parseHexUint("0x2a")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)

	n, err = parseHexUint(" 1f ")
	require.NoError(t, err)
	assert.Equal(t, uint64(31), n)

	n, err = parseHexUint("0x")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = parseHexUint("0xzz")
	assert.Error(t, err)
}

func TestEncodeUint256Arg(t *testing.T) {
	encoded := encodeUint256Arg(selAllPairs, 3)
	assert.Equal(t, selAllPairs+abiWord(3), encoded)
	assert.Len(t, encoded, len(selAllPairs)+64)
}

func TestDecodeAddressWord(t *testing.T) {
	addr, err := decodeAddressWord("0x000000000000000000000000b6322ed8561604ca2a1b9c17e4d02b957eb242fe")
	require.NoError(t, err)
	assert.Equal(t, "0xb6322ed8561604ca2a1b9c17e4d02b957eb242fe", addr)

	_, err = decodeAddressWord("0x")
	assert.Error(t, err)
}

func TestDecodeUintWord(t *testing.T) {
	n, err := decodeUintWord("0x" + abiWord(117104))
	require.NoError(t, err)
	assert.Equal(t, int64(117104), n.Int64())
}

func TestDecodeReservesResult(t *testing.T) {
	// getReserves() returns (reserve0, reserve1, blockTimestampLast).
	result := "0x" + abiWord(1000000) + abiWord(300) + abiWord(1765432100)
	r0, r1, err := decodeReservesResult(result)
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), r0.Int64())
	assert.Equal(t, int64(300), r1.Int64())

	_, _, err = decodeReservesResult("0x" + abiWord(1))
	assert.Error(t, err)
}

func TestDecodeStringResultDynamic(t *testing.T) {
	s, err := decodeStringResult(abiStringResult("mUSD"))
	require.NoError(t, err)
	assert.Equal(t, "mUSD", s)

	long := strings.Repeat("A", 40)
	s, err = decodeStringResult(abiStringResult(long))
	require.NoError(t, err)
	assert.Equal(t, long, s)
}

func TestDecodeStringResultLegacyBytes32(t *testing.T) {
	raw := make([]byte, 32)
	copy(raw, "WETH")
	s, err := decodeStringResult("0x" + hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, "WETH", s)
}

func TestDecodeStringResultRejectsBadOffsets(t *testing.T) {
	_, err := decodeStringResult("0x" + abiWord(33) + abiWord(4))
	assert.Error(t, err)

	_, err = decodeStringResult("0x" + abiWord(320) + abiWord(4))
	assert.Error(t, err)
}

func TestScaleByDecimals(t *testing.T) {
	assert.Equal(t, "1", scaleByDecimals(big.NewInt(1000000000000000000), 18))
	assert.Equal(t, "1.5", scaleByDecimals(big.NewInt(1500000000000000000), 18))
	assert.Equal(t, "0.000001", scaleByDecimals(big.NewInt(1), 6))
	assert.Equal(t, "0", scaleByDecimals(big.NewInt(0), 18))
	assert.Equal(t, "42", scaleByDecimals(big.NewInt(42), 0))
	assert.Equal(t, "-2.5", scaleByDecimals(big.NewInt(-25), 1))
}

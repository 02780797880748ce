package notes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRawNote() RawNote {
	return RawNote{
		NoteID:             "1f0e9c62-5b5a-4f0e-9c62-5b5a4f0e9c62",
		CorrelationID:      "corr-1",
		ChainID:            31337,
		TxHash:             "0xabc123",
		Action:             ActionSwap,
		UserAddress:        "0x1000000000000000000000000000000000000001",
		PoolAddress:        "0x1111111111111111111111111111111111111111",
		TokenIn:            "mUSD",
		TokenOut:           "WETH",
		AmountIn:           "100.0",
		AmountOut:          "0.03",
		FeeUSD:             "0.30",
		GasUsed:            "117104",
		GasCostUSD:         "0.22",
		ProtocolRevenueUSD: "0.12",
		MinOut:             "0",
		BlockNumber:        42,
		OccurredAt:         time.Date(2026, 3, 14, 15, 9, 26, 535000000, time.UTC),
		Source:             SourceChainIndexer,
	}
}

func TestRawNoteRoundTrip(t *testing.T) {
	original := sampleRawNote()

	payload, err := original.Marshal()
	require.NoError(t, err)
	require.NotEmpty(t, payload)

	var decoded RawNote
	require.NoError(t, decoded.Unmarshal(payload))
	assert.Equal(t, original, decoded)
}

func TestRawNoteRoundTripOmitsEmptyFields(t *testing.T) {
	original := RawNote{
		NoteID:  "note-1",
		ChainID: 1,
		Action:  ActionSwap,
	}

	payload, err := original.Marshal()
	require.NoError(t, err)

	var decoded RawNote
	require.NoError(t, decoded.Unmarshal(payload))
	assert.Equal(t, original, decoded)
	assert.True(t, decoded.OccurredAt.IsZero())
}

func TestValidNoteRoundTrip(t *testing.T) {
	original := ValidNote{
		RawNote:           sampleRawNote(),
		TxID:              "7d3adf22-9c1b-5c65-a53a-5a1f0e9c6200",
		ValidationVersion: "v1",
	}

	payload, err := original.Marshal()
	require.NoError(t, err)

	var decoded ValidNote
	require.NoError(t, decoded.Unmarshal(payload))
	assert.Equal(t, original, decoded)
}

func TestLedgerEntryBatchRoundTrip(t *testing.T) {
	occurred := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	original := LedgerEntryBatch{
		BatchID:       "batch-1",
		TxID:          "tx-1",
		NoteID:        "note-1",
		CorrelationID: "corr-1",
		ChainID:       31337,
		TxHash:        "0xabc123",
		CreatedAt:     occurred,
		Entries: []LedgerEntry{
			{
				TxID:               "tx-1",
				NoteID:             "note-1",
				ChainID:            31337,
				TxHash:             "0xabc123",
				AccountID:          "user:0x1000000000000000000000000000000000000001",
				Side:               "debit",
				Asset:              "mUSD",
				Amount:             "100",
				EntryType:          "swap_notional_in",
				FeeUSD:             "0.3",
				GasCostUSD:         "0.22",
				ProtocolRevenueUSD: "0.12",
				PoolAddress:        "0x1111111111111111111111111111111111111111",
				OccurredAt:         occurred,
			},
			{
				TxID:       "tx-1",
				NoteID:     "note-1",
				ChainID:    31337,
				TxHash:     "0xabc123",
				AccountID:  "pool:0x1111111111111111111111111111111111111111",
				Side:       "credit",
				Asset:      "mUSD",
				Amount:     "100",
				EntryType:  "swap_notional_in",
				OccurredAt: occurred,
			},
		},
	}

	payload, err := original.Marshal()
	require.NoError(t, err)

	var decoded LedgerEntryBatch
	require.NoError(t, decoded.Unmarshal(payload))
	assert.Equal(t, original, decoded)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var note RawNote
	assert.Error(t, note.Unmarshal([]byte{0xff, 0xff, 0xff, 0xff}))
}

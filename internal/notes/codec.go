package notes

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Field numbers are fixed by proto/dex_tx_raw.proto, proto/dex_tx_valid.proto
// and proto/dex_ledger_entry_batch.proto. Changing them breaks the wire format.

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendInt64Field(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendTimeField(b []byte, num protowire.Number, t time.Time) ([]byte, error) {
	if t.IsZero() {
		return b, nil
	}
	raw, err := proto.Marshal(timestamppb.New(t.UTC()))
	if err != nil {
		return nil, fmt.Errorf("marshal timestamp: %w", err)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, raw), nil
}

func consumeString(b []byte) (string, int, error) {
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return "", 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeInt64(b []byte) (int64, int, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return int64(v), n, nil
}

func consumeTime(b []byte) (time.Time, int, error) {
	raw, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return time.Time{}, 0, protowire.ParseError(n)
	}
	var ts timestamppb.Timestamp
	if err := proto.Unmarshal(raw, &ts); err != nil {
		return time.Time{}, 0, fmt.Errorf("unmarshal timestamp: %w", err)
	}
	return ts.AsTime(), n, nil
}

func skipField(b []byte, num protowire.Number, typ protowire.Type) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}

// appendRawFields encodes the fields shared by DexTxRaw and DexTxValid
// (numbers 1..19).
func appendRawFields(b []byte, n *RawNote) ([]byte, error) {
	b = appendStringField(b, 1, n.NoteID)
	b = appendStringField(b, 2, n.CorrelationID)
	b = appendInt64Field(b, 3, n.ChainID)
	b = appendStringField(b, 4, n.TxHash)
	b = appendStringField(b, 5, n.Action)
	b = appendStringField(b, 6, n.UserAddress)
	b = appendStringField(b, 7, n.PoolAddress)
	b = appendStringField(b, 8, n.TokenIn)
	b = appendStringField(b, 9, n.TokenOut)
	b = appendStringField(b, 10, n.AmountIn)
	b = appendStringField(b, 11, n.AmountOut)
	b = appendStringField(b, 12, n.FeeUSD)
	b = appendStringField(b, 13, n.GasUsed)
	b = appendStringField(b, 14, n.GasCostUSD)
	b = appendStringField(b, 15, n.ProtocolRevenueUSD)
	b = appendStringField(b, 16, n.MinOut)
	b = appendInt64Field(b, 17, n.BlockNumber)
	b, err := appendTimeField(b, 18, n.OccurredAt)
	if err != nil {
		return nil, err
	}
	b = appendStringField(b, 19, n.Source)
	return b, nil
}

// consumeRawField decodes one shared field into the note; reports whether the
// field number was recognised.
func consumeRawField(b []byte, num protowire.Number, typ protowire.Type, n *RawNote) (int, bool, error) {
	var err error
	var adv int
	switch num {
	case 1:
		n.NoteID, adv, err = consumeString(b)
	case 2:
		n.CorrelationID, adv, err = consumeString(b)
	case 3:
		n.ChainID, adv, err = consumeInt64(b)
	case 4:
		n.TxHash, adv, err = consumeString(b)
	case 5:
		n.Action, adv, err = consumeString(b)
	case 6:
		n.UserAddress, adv, err = consumeString(b)
	case 7:
		n.PoolAddress, adv, err = consumeString(b)
	case 8:
		n.TokenIn, adv, err = consumeString(b)
	case 9:
		n.TokenOut, adv, err = consumeString(b)
	case 10:
		n.AmountIn, adv, err = consumeString(b)
	case 11:
		n.AmountOut, adv, err = consumeString(b)
	case 12:
		n.FeeUSD, adv, err = consumeString(b)
	case 13:
		n.GasUsed, adv, err = consumeString(b)
	case 14:
		n.GasCostUSD, adv, err = consumeString(b)
	case 15:
		n.ProtocolRevenueUSD, adv, err = consumeString(b)
	case 16:
		n.MinOut, adv, err = consumeString(b)
	case 17:
		n.BlockNumber, adv, err = consumeInt64(b)
	case 18:
		n.OccurredAt, adv, err = consumeTime(b)
	case 19:
		n.Source, adv, err = consumeString(b)
	default:
		return 0, false, nil
	}
	return adv, true, err
}

// Marshal encodes the raw note as DexTxRaw bytes.
func (n *RawNote) Marshal() ([]byte, error) {
	return appendRawFields(nil, n)
}

// Unmarshal decodes DexTxRaw bytes into the note.
func (n *RawNote) Unmarshal(b []byte) error {
	*n = RawNote{}
	for len(b) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(b)
		if tagLen < 0 {
			return protowire.ParseError(tagLen)
		}
		b = b[tagLen:]

		adv, known, err := consumeRawField(b, num, typ, n)
		if err != nil {
			return fmt.Errorf("DexTxRaw field %d: %w", num, err)
		}
		if !known {
			if adv, err = skipField(b, num, typ); err != nil {
				return err
			}
		}
		b = b[adv:]
	}
	return nil
}

// Marshal encodes the valid note as DexTxValid bytes.
func (n *ValidNote) Marshal() ([]byte, error) {
	b, err := appendRawFields(nil, &n.RawNote)
	if err != nil {
		return nil, err
	}
	b = appendStringField(b, 20, n.TxID)
	b = appendStringField(b, 21, n.ValidationVersion)
	return b, nil
}

// Unmarshal decodes DexTxValid bytes into the note.
func (n *ValidNote) Unmarshal(b []byte) error {
	*n = ValidNote{}
	for len(b) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(b)
		if tagLen < 0 {
			return protowire.ParseError(tagLen)
		}
		b = b[tagLen:]

		var adv int
		var err error
		switch num {
		case 20:
			n.TxID, adv, err = consumeString(b)
		case 21:
			n.ValidationVersion, adv, err = consumeString(b)
		default:
			var known bool
			adv, known, err = consumeRawField(b, num, typ, &n.RawNote)
			if err == nil && !known {
				adv, err = skipField(b, num, typ)
			}
		}
		if err != nil {
			return fmt.Errorf("DexTxValid field %d: %w", num, err)
		}
		b = b[adv:]
	}
	return nil
}

func (e *LedgerEntry) marshal() ([]byte, error) {
	var b []byte
	b = appendStringField(b, 1, e.TxID)
	b = appendStringField(b, 2, e.NoteID)
	b = appendInt64Field(b, 3, e.ChainID)
	b = appendStringField(b, 4, e.TxHash)
	b = appendStringField(b, 5, e.AccountID)
	b = appendStringField(b, 6, e.Side)
	b = appendStringField(b, 7, e.Asset)
	b = appendStringField(b, 8, e.Amount)
	b = appendStringField(b, 9, e.EntryType)
	b = appendStringField(b, 10, e.FeeUSD)
	b = appendStringField(b, 11, e.GasCostUSD)
	b = appendStringField(b, 12, e.ProtocolRevenueUSD)
	b = appendStringField(b, 13, e.PoolAddress)
	return appendTimeField(b, 14, e.OccurredAt)
}

func (e *LedgerEntry) unmarshal(b []byte) error {
	*e = LedgerEntry{}
	for len(b) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(b)
		if tagLen < 0 {
			return protowire.ParseError(tagLen)
		}
		b = b[tagLen:]

		var adv int
		var err error
		switch num {
		case 1:
			e.TxID, adv, err = consumeString(b)
		case 2:
			e.NoteID, adv, err = consumeString(b)
		case 3:
			e.ChainID, adv, err = consumeInt64(b)
		case 4:
			e.TxHash, adv, err = consumeString(b)
		case 5:
			e.AccountID, adv, err = consumeString(b)
		case 6:
			e.Side, adv, err = consumeString(b)
		case 7:
			e.Asset, adv, err = consumeString(b)
		case 8:
			e.Amount, adv, err = consumeString(b)
		case 9:
			e.EntryType, adv, err = consumeString(b)
		case 10:
			e.FeeUSD, adv, err = consumeString(b)
		case 11:
			e.GasCostUSD, adv, err = consumeString(b)
		case 12:
			e.ProtocolRevenueUSD, adv, err = consumeString(b)
		case 13:
			e.PoolAddress, adv, err = consumeString(b)
		case 14:
			e.OccurredAt, adv, err = consumeTime(b)
		default:
			adv, err = skipField(b, num, typ)
		}
		if err != nil {
			return fmt.Errorf("DexLedgerEntry field %d: %w", num, err)
		}
		b = b[adv:]
	}
	return nil
}

// Marshal encodes the batch as DexLedgerEntryBatch bytes.
func (batch *LedgerEntryBatch) Marshal() ([]byte, error) {
	var b []byte
	b = appendStringField(b, 1, batch.BatchID)
	b = appendStringField(b, 2, batch.TxID)
	b = appendStringField(b, 3, batch.NoteID)
	b = appendStringField(b, 4, batch.CorrelationID)
	b = appendInt64Field(b, 5, batch.ChainID)
	b = appendStringField(b, 6, batch.TxHash)
	b, err := appendTimeField(b, 7, batch.CreatedAt)
	if err != nil {
		return nil, err
	}
	for i := range batch.Entries {
		raw, err := batch.Entries[i].marshal()
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, 8, protowire.BytesType)
		b = protowire.AppendBytes(b, raw)
	}
	return b, nil
}

// Unmarshal decodes DexLedgerEntryBatch bytes into the batch.
func (batch *LedgerEntryBatch) Unmarshal(b []byte) error {
	*batch = LedgerEntryBatch{}
	for len(b) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(b)
		if tagLen < 0 {
			return protowire.ParseError(tagLen)
		}
		b = b[tagLen:]

		var adv int
		var err error
		switch num {
		case 1:
			batch.BatchID, adv, err = consumeString(b)
		case 2:
			batch.TxID, adv, err = consumeString(b)
		case 3:
			batch.NoteID, adv, err = consumeString(b)
		case 4:
			batch.CorrelationID, adv, err = consumeString(b)
		case 5:
			batch.ChainID, adv, err = consumeInt64(b)
		case 6:
			batch.TxHash, adv, err = consumeString(b)
		case 7:
			batch.CreatedAt, adv, err = consumeTime(b)
		case 8:
			var raw []byte
			raw, adv = protowire.ConsumeBytes(b)
			if adv < 0 {
				err = protowire.ParseError(adv)
				break
			}
			var entry LedgerEntry
			if err = entry.unmarshal(raw); err == nil {
				batch.Entries = append(batch.Entries, entry)
			}
		default:
			adv, err = skipField(b, num, typ)
		}
		if err != nil {
			return fmt.Errorf("DexLedgerEntryBatch field %d: %w", num, err)
		}
		b = b[adv:]
	}
	return nil
}

// Package ledger derives double-entry rows from valid notes and persists
// them transactionally, mirroring accepted notes to the OLAP store and the
// outbox/change-event topics.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcryptoex/tempo/internal/notes"
)

// dec parses a decimal string, treating anything unparsable as zero. The
// validator guarantees well-formed inputs on the happy path; this keeps the
// derivation total.
func dec(value string) decimal.Decimal {
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero
	}
	return parsed
}

// entryBuilder accumulates balanced debit/credit pairs for one note.
type entryBuilder struct {
	note       *notes.ValidNote
	occurredAt time.Time
	rows       []notes.LedgerEntry
}

// addPair appends one balanced debit/credit pair. Pairs with non-positive
// amounts are skipped, which keeps every persisted amount strictly positive.
func (b *entryBuilder) addPair(entryType, debitAccount, creditAccount, asset string, amount decimal.Decimal) {
	if amount.Sign() <= 0 {
		return
	}

	base := notes.LedgerEntry{
		TxID:               b.note.TxID,
		NoteID:             b.note.NoteID,
		ChainID:            b.note.ChainID,
		TxHash:             b.note.TxHash,
		Asset:              asset,
		Amount:             amount.String(),
		EntryType:          entryType,
		FeeUSD:             dec(b.note.FeeUSD).String(),
		GasCostUSD:         dec(b.note.GasCostUSD).String(),
		ProtocolRevenueUSD: dec(b.note.ProtocolRevenueUSD).String(),
		PoolAddress:        b.note.PoolAddress,
		OccurredAt:         b.occurredAt,
	}

	debit := base
	debit.AccountID = debitAccount
	debit.Side = "debit"
	credit := base
	credit.AccountID = creditAccount
	credit.Side = "credit"

	b.rows = append(b.rows, debit, credit)
}

// BuildEntries derives the double-entry rows for a valid note. Some actions
// (PROTOCOL_FEE_ACCRUED) are accepted by the pipeline but carry no ledger
// semantics and yield no rows.
func BuildEntries(note *notes.ValidNote) []notes.LedgerEntry {
	occurredAt := note.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	b := &entryBuilder{note: note, occurredAt: occurredAt}

	userAccount := "user:" + strings.ToLower(note.UserAddress)
	poolAccount := "pool:" + strings.ToLower(note.PoolAddress)
	networkAccount := fmt.Sprintf("network:%d", note.ChainID)

	amountIn := dec(note.AmountIn)
	amountOut := dec(note.AmountOut)
	feeUSD := dec(note.FeeUSD)
	gasCostUSD := dec(note.GasCostUSD)
	protocolRevenueUSD := dec(note.ProtocolRevenueUSD)

	switch note.Action {
	case notes.ActionSwap:
		b.addPair("swap_notional_in", userAccount, poolAccount, note.TokenIn, amountIn)
		b.addPair("swap_notional_out", poolAccount, userAccount, note.TokenOut, amountOut)
		b.addPair("trade_fee_usd", userAccount, "protocol:treasury", "USD", feeUSD)
		b.addPair("protocol_revenue_usd", poolAccount, "protocol:treasury", "USD", protocolRevenueUSD)
		b.addPair("gas_cost_usd", userAccount, networkAccount, "USD", gasCostUSD)

	case notes.ActionLiquidityAdd:
		b.addPair("liquidity_add_in_a", userAccount, poolAccount, note.TokenIn, amountIn)
		b.addPair("liquidity_add_in_b", userAccount, poolAccount, note.TokenOut, amountOut)
		b.addPair("gas_cost_usd", userAccount, networkAccount, "USD", gasCostUSD)

	case notes.ActionLiquidityRemove:
		b.addPair("liquidity_remove_out_a", poolAccount, userAccount, note.TokenIn, amountIn)
		b.addPair("liquidity_remove_out_b", poolAccount, userAccount, note.TokenOut, amountOut)
		b.addPair("gas_cost_usd", userAccount, networkAccount, "USD", gasCostUSD)

	case notes.ActionMUSDMint:
		b.addPair("musd_mint_collateral", userAccount, poolAccount, note.TokenIn, amountIn)
		b.addPair("musd_mint_issue", poolAccount, userAccount, note.TokenOut, amountOut)
		b.addPair("gas_cost_usd", userAccount, networkAccount, "USD", gasCostUSD)

	case notes.ActionMUSDBurn:
		b.addPair("musd_burn_in", userAccount, poolAccount, note.TokenIn, amountIn)
		b.addPair("musd_burn_redeem", poolAccount, userAccount, note.TokenOut, amountOut)
		b.addPair("gas_cost_usd", userAccount, networkAccount, "USD", gasCostUSD)

	case notes.ActionFeeTransferredToTreasury:
		b.addPair("fee_transfer_to_treasury", poolAccount, "protocol:treasury", note.TokenIn, amountIn)

	case notes.ActionTreasuryConvertedToMUSD:
		b.addPair("treasury_convert_spend", "protocol:conversion", "protocol:treasury", note.TokenIn, amountIn)
		b.addPair("treasury_convert_receive", "protocol:treasury", "protocol:conversion", note.TokenOut, amountOut)

	case notes.ActionDistributionExecuted:
		b.addPair("treasury_distribution", userAccount, "protocol:treasury", "mUSD", amountIn)
	}

	return b.rows
}

// NewOutboxEvent builds the change event recorded in dex_outbox and
// published to the outbox topic for an accepted note.
func NewOutboxEvent(note *notes.ValidNote) notes.OutboxEvent {
	occurredAt := note.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	return notes.OutboxEvent{
		EventType:  "dex.note.ingested",
		TxID:       note.TxID,
		NoteID:     note.NoteID,
		ChainID:    note.ChainID,
		TxHash:     note.TxHash,
		Action:     note.Action,
		OccurredAt: occurredAt.UTC().Format(time.RFC3339Nano),
	}
}

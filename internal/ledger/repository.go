package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcryptoex/tempo/internal/notes"
)

// Repository owns the transactional store access for dex_transactions,
// dex_ledger_entries and dex_outbox.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a repository over the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const insertTransactionSQL = `
	INSERT INTO dex_transactions (
		tx_id, note_id, correlation_id, chain_id, tx_hash, action,
		user_address, pool_address, token_in, token_out,
		amount_in, amount_out, fee_usd, gas_used, gas_cost_usd,
		protocol_revenue_usd, min_out, block_number, occurred_at,
		source, validation_version, ingested_at
	)
	VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22
	)
	ON CONFLICT (note_id) DO NOTHING
	RETURNING tx_id`

const insertEntrySQL = `
	INSERT INTO dex_ledger_entries (
		tx_id, note_id, chain_id, tx_hash, account_id, side, asset,
		amount, entry_type, fee_usd, gas_cost_usd,
		protocol_revenue_usd, pool_address, occurred_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

const insertOutboxSQL = `
	INSERT INTO dex_outbox (tx_id, event_type, payload, published, created_at)
	VALUES ($1, $2, $3::jsonb, FALSE, NOW())`

// PersistNote writes the transaction row, its ledger entries and the outbox
// row in one database transaction. The note_id conflict target makes the
// write idempotent: a replayed note reports inserted=false and writes
// nothing.
func (r *Repository) PersistNote(
	ctx context.Context,
	note *notes.ValidNote,
	entries []notes.LedgerEntry,
	outbox notes.OutboxEvent,
) (bool, error) {
	occurredAt := note.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("PersistNote: %w", err)
	}
	defer tx.Rollback(ctx)

	minOut := note.MinOut
	if minOut == "" {
		minOut = "0"
	}

	var insertedTxID string
	err = tx.QueryRow(ctx, insertTransactionSQL,
		note.TxID, note.NoteID, note.CorrelationID, note.ChainID, note.TxHash, note.Action,
		note.UserAddress, note.PoolAddress, note.TokenIn, note.TokenOut,
		dec(note.AmountIn).String(), dec(note.AmountOut).String(), dec(note.FeeUSD).String(),
		dec(note.GasUsed).String(), dec(note.GasCostUSD).String(),
		dec(note.ProtocolRevenueUSD).String(), dec(minOut).String(), note.BlockNumber, occurredAt,
		note.Source, note.ValidationVersion, time.Now().UTC(),
	).Scan(&insertedTxID)

	inserted := true
	if errors.Is(err, pgx.ErrNoRows) {
		inserted = false
	} else if err != nil {
		return false, fmt.Errorf("PersistNote: %w", err)
	}

	if inserted && len(entries) > 0 {
		batch := &pgx.Batch{}
		for i := range entries {
			e := &entries[i]
			batch.Queue(insertEntrySQL,
				e.TxID, e.NoteID, e.ChainID, e.TxHash, e.AccountID, e.Side, e.Asset,
				e.Amount, e.EntryType, e.FeeUSD, e.GasCostUSD,
				e.ProtocolRevenueUSD, e.PoolAddress, e.OccurredAt,
			)
		}
		results := tx.SendBatch(ctx, batch)
		for range entries {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return false, fmt.Errorf("PersistNote entries: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return false, fmt.Errorf("PersistNote entries: %w", err)
		}
	}

	if inserted {
		payload, err := json.Marshal(outbox)
		if err != nil {
			return false, fmt.Errorf("PersistNote outbox: %w", err)
		}
		if _, err := tx.Exec(ctx, insertOutboxSQL, note.TxID, outbox.EventType, payload); err != nil {
			return false, fmt.Errorf("PersistNote outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("PersistNote: %w", err)
	}
	return inserted, nil
}

// EntryRow is one /ledger/recent row.
type EntryRow struct {
	EntryID            int64      `json:"entry_id"`
	TxID               string     `json:"tx_id"`
	NoteID             string     `json:"note_id"`
	ChainID            int64      `json:"chain_id"`
	TxHash             string     `json:"tx_hash"`
	AccountID          string     `json:"account_id"`
	Side               string     `json:"side"`
	Asset              string     `json:"asset"`
	Amount             string     `json:"amount"`
	EntryType          string     `json:"entry_type"`
	FeeUSD             string     `json:"fee_usd"`
	GasCostUSD         string     `json:"gas_cost_usd"`
	ProtocolRevenueUSD string     `json:"protocol_revenue_usd"`
	PoolAddress        string     `json:"pool_address"`
	OccurredAt         *time.Time `json:"occurred_at"`
	CreatedAt          time.Time  `json:"created_at"`
}

// RecentEntries lists the newest ledger entries, optionally filtered by
// chain and entry type. chainID <= 0 and empty entryType mean "all".
func (r *Repository) RecentEntries(ctx context.Context, limit int, chainID int64, entryType string) ([]EntryRow, error) {
	query := `
		SELECT
			entry_id, tx_id::text, note_id, chain_id, tx_hash, account_id,
			side, asset, amount::text, entry_type, fee_usd::text,
			gas_cost_usd::text, protocol_revenue_usd::text, pool_address,
			occurred_at, created_at
		FROM dex_ledger_entries`

	var args []any
	var filters []string
	if chainID > 0 {
		args = append(args, chainID)
		filters = append(filters, fmt.Sprintf("chain_id = $%d", len(args)))
	}
	if entryType != "" {
		args = append(args, entryType)
		filters = append(filters, fmt.Sprintf("entry_type = $%d", len(args)))
	}
	for i, filter := range filters {
		if i == 0 {
			query += " WHERE " + filter
		} else {
			query += " AND " + filter
		}
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY entry_id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("RecentEntries: %w", err)
	}
	defer rows.Close()

	var out []EntryRow
	for rows.Next() {
		var row EntryRow
		if err := rows.Scan(
			&row.EntryID, &row.TxID, &row.NoteID, &row.ChainID, &row.TxHash, &row.AccountID,
			&row.Side, &row.Asset, &row.Amount, &row.EntryType, &row.FeeUSD,
			&row.GasCostUSD, &row.ProtocolRevenueUSD, &row.PoolAddress,
			&row.OccurredAt, &row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("RecentEntries: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("RecentEntries: %w", err)
	}
	return out, nil
}

// PoolStat is the aggregated swap activity for one pool.
type PoolStat struct {
	ChainID        int64
	PoolAddress    string
	TokenIn        string
	TokenOut       string
	Swaps          int64
	TotalAmountIn  string
	TotalAmountOut string
	TotalFeeUSD    string
	LastSwapAt     *time.Time
}

// PoolStats aggregates per-pool swap statistics from dex_transactions,
// newest-active pools first. chainID <= 0 means "all chains".
func (r *Repository) PoolStats(ctx context.Context, chainID int64, limit int) ([]PoolStat, error) {
	query := `
		SELECT
			chain_id,
			lower(pool_address) AS pool_address,
			min(token_in) AS token_in,
			min(token_out) AS token_out,
			COUNT(*) AS swaps,
			COALESCE(SUM(amount_in), 0)::text AS total_amount_in,
			COALESCE(SUM(amount_out), 0)::text AS total_amount_out,
			COALESCE(SUM(fee_usd), 0)::text AS total_fee_usd,
			MAX(occurred_at) AS last_swap_at
		FROM dex_transactions`

	var args []any
	if chainID > 0 {
		args = append(args, chainID)
		query += " WHERE chain_id = $1"
	}
	args = append(args, limit)
	query += fmt.Sprintf(`
		GROUP BY chain_id, lower(pool_address)
		ORDER BY MAX(occurred_at) DESC NULLS LAST, COUNT(*) DESC
		LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("PoolStats: %w", err)
	}
	defer rows.Close()

	var out []PoolStat
	for rows.Next() {
		var stat PoolStat
		if err := rows.Scan(
			&stat.ChainID, &stat.PoolAddress, &stat.TokenIn, &stat.TokenOut,
			&stat.Swaps, &stat.TotalAmountIn, &stat.TotalAmountOut,
			&stat.TotalFeeUSD, &stat.LastSwapAt,
		); err != nil {
			return nil, fmt.Errorf("PoolStats: %w", err)
		}
		out = append(out, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("PoolStats: %w", err)
	}
	return out, nil
}

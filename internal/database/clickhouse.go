package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/mcryptoex/tempo/internal/config"
	"github.com/mcryptoex/tempo/internal/notes"
)

// rawTransactionsDDL mirrors validated notes into the OLAP store. Monetary
// fields stay decimal strings; analytics queries cast as needed.
const rawTransactionsDDL = `
CREATE TABLE IF NOT EXISTS dex_transactions_raw (
    tx_id String,
    note_id String,
    correlation_id String,
    chain_id Int64,
    tx_hash String,
    action String,
    user_address String,
    pool_address String,
    token_in String,
    token_out String,
    amount_in String,
    amount_out String,
    fee_usd String,
    gas_used String,
    gas_cost_usd String,
    protocol_revenue_usd String,
    min_out String,
    block_number Int64,
    occurred_at DateTime64(3, 'UTC'),
    source String,
    validation_version String,
    inserted_at DateTime64(3, 'UTC') DEFAULT now64(3)
)
ENGINE = MergeTree
ORDER BY (chain_id, occurred_at, note_id)
`

// ClickHouse wraps an OLAP connection with lazy connect semantics. The
// pipeline must keep running when ClickHouse is down: a failed connect
// leaves the handle nil and the next call retries.
type ClickHouse struct {
	settings config.ClickHouseSettings
	log      *slog.Logger

	mu   sync.Mutex
	conn driver.Conn
}

// NewClickHouse creates the wrapper without connecting.
func NewClickHouse(settings config.ClickHouseSettings, log *slog.Logger) *ClickHouse {
	return &ClickHouse{settings: settings, log: log}
}

// Conn returns a live connection, dialing if needed. The schema is ensured
// on first successful connect.
func (c *ClickHouse) Conn(ctx context.Context) (driver.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{c.settings.Addr()},
		Auth: clickhouse.Auth{
			Database: c.settings.Database,
			Username: c.settings.Username,
			Password: c.settings.Password,
		},
		DialTimeout: 5 * time.Second,
		Settings: clickhouse.Settings{
			"max_execution_time": 30,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if err := conn.Exec(ctx, rawTransactionsDDL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse ensure schema: %w", err)
	}

	c.log.Info("clickhouse connected", "addr", c.settings.Addr(), "database", c.settings.Database)
	c.conn = conn
	return c.conn, nil
}

// Fail drops the cached connection after a query error so the next call
// redials. A connection swapped out by a concurrent Fail is left alone.
func (c *ClickHouse) Fail(conn driver.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn && c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Ping dials if needed and verifies the connection.
func (c *ClickHouse) Ping(ctx context.Context) error {
	conn, err := c.Conn(ctx)
	if err != nil {
		return err
	}
	if err := conn.Ping(ctx); err != nil {
		c.Fail(conn)
		return fmt.Errorf("clickhouse ping: %w", err)
	}
	return nil
}

// Close closes the cached connection if one exists.
func (c *ClickHouse) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// InsertTransaction mirrors one validated note into dex_transactions_raw.
func (c *ClickHouse) InsertTransaction(ctx context.Context, note *notes.ValidNote) error {
	conn, err := c.Conn(ctx)
	if err != nil {
		return err
	}

	occurredAt := note.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	err = conn.Exec(ctx, `
		INSERT INTO dex_transactions_raw (
			tx_id, note_id, correlation_id, chain_id, tx_hash, action,
			user_address, pool_address, token_in, token_out,
			amount_in, amount_out, fee_usd, gas_used, gas_cost_usd,
			protocol_revenue_usd, min_out, block_number, occurred_at,
			source, validation_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		note.TxID, note.NoteID, note.CorrelationID, note.ChainID, note.TxHash, note.Action,
		note.UserAddress, note.PoolAddress, note.TokenIn, note.TokenOut,
		note.AmountIn, note.AmountOut, note.FeeUSD, note.GasUsed, note.GasCostUSD,
		note.ProtocolRevenueUSD, note.MinOut, note.BlockNumber, occurredAt,
		note.Source, note.ValidationVersion,
	)
	if err != nil {
		c.Fail(conn)
		return fmt.Errorf("InsertTransaction: %w", err)
	}
	return nil
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"github.com/mcryptoex/tempo/internal/pkg/response"
)

// Rollup row shapes. The materialized views live in the analytics schema;
// sums over Decimal columns come back as decimals, averages as nullable
// floats.
type volumeRow struct {
	Bucket  time.Time       `json:"bucket"`
	ChainID int64           `json:"chain_id"`
	Asset   string          `json:"asset"`
	Volume  decimal.Decimal `json:"volume"`
}

type feeRevenueRow struct {
	Bucket     time.Time       `json:"bucket"`
	ChainID    int64           `json:"chain_id"`
	RevenueUSD decimal.Decimal `json:"revenue_usd"`
}

type gasCostRow struct {
	Bucket        time.Time `json:"bucket"`
	ChainID       int64     `json:"chain_id"`
	AvgGasCostUSD *float64  `json:"avg_gas_cost_usd"`
}

type feeBreakdownRow struct {
	Bucket      time.Time       `json:"bucket"`
	ChainID     int64           `json:"chain_id"`
	PoolAddress string          `json:"pool_address"`
	Token       string          `json:"token"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
}

type dailyRevenueRow struct {
	Bucket      time.Time       `json:"bucket"`
	ChainID     int64           `json:"chain_id"`
	RevenueMUSD decimal.Decimal `json:"revenue_musd"`
}

type slippageRow struct {
	Bucket      time.Time `json:"bucket"`
	ChainID     int64     `json:"chain_id"`
	SlippageBps *float64  `json:"slippage_bps"`
	Conversions uint64    `json:"conversions"`
}

type analyticsPayload struct {
	Minutes                  int               `json:"minutes"`
	VolumeByChainToken       []volumeRow       `json:"volume_by_chain_token"`
	FeeRevenue               []feeRevenueRow   `json:"fee_revenue"`
	GasCostAverages          []gasCostRow      `json:"gas_cost_averages"`
	FeeBreakdownByPoolToken  []feeBreakdownRow `json:"fee_breakdown_by_pool_token"`
	ProtocolRevenueMUSDDaily []dailyRevenueRow `json:"protocol_revenue_musd_daily"`
	ConversionSlippage       []slippageRow     `json:"conversion_slippage"`
	Warning                  string            `json:"warning,omitempty"`
}

func emptyAnalytics(minutes int, warning string) analyticsPayload {
	return analyticsPayload{
		Minutes:                  minutes,
		VolumeByChainToken:       []volumeRow{},
		FeeRevenue:               []feeRevenueRow{},
		GasCostAverages:          []gasCostRow{},
		FeeBreakdownByPoolToken:  []feeBreakdownRow{},
		ProtocolRevenueMUSDDaily: []dailyRevenueRow{},
		ConversionSlippage:       []slippageRow{},
		Warning:                  warning,
	}
}

// Analytics handles GET /analytics: six rollup queries against ClickHouse.
// The endpoint degrades rather than fails: any ClickHouse problem answers
// 200 with empty rows and a warning tag.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	minutes, err := queryInt(r, "minutes", 60, 1, 43200)
	if err != nil {
		response.Error(w, err)
		return
	}
	ctx := r.Context()

	conn, err := h.clickhouse.Conn(ctx)
	if err != nil {
		h.log.Warn("analytics degraded: clickhouse unavailable", "error", err)
		response.OK(w, emptyAnalytics(minutes, "clickhouse_unavailable"))
		return
	}

	payload := emptyAnalytics(minutes, "")
	err = h.queryRollups(ctx, conn, minutes, &payload)
	if err != nil {
		h.log.Warn("analytics degraded: clickhouse query failed", "error", err)
		h.clickhouse.Fail(conn)
		response.OK(w, emptyAnalytics(minutes, "clickhouse_query_failed"))
		return
	}
	response.OK(w, payload)
}

func (h *Handler) queryRollups(ctx context.Context, conn driver.Conn, minutes int, payload *analyticsPayload) error {
	window := clickhouse.Named("minutes", int32(minutes))

	rows, err := conn.Query(ctx, `
		SELECT bucket, chain_id, asset, sum(volume) AS volume
		FROM dex_volume_by_chain_token_1m
		WHERE bucket >= now() - toIntervalMinute(@minutes)
		GROUP BY bucket, chain_id, asset
		ORDER BY bucket ASC`, window)
	if err != nil {
		return err
	}
	for rows.Next() {
		var row volumeRow
		if err := rows.Scan(&row.Bucket, &row.ChainID, &row.Asset, &row.Volume); err != nil {
			rows.Close()
			return err
		}
		payload.VolumeByChainToken = append(payload.VolumeByChainToken, row)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = conn.Query(ctx, `
		SELECT bucket, chain_id, sum(revenue_usd) AS revenue_usd
		FROM dex_fee_revenue_1m
		WHERE bucket >= now() - toIntervalMinute(@minutes)
		GROUP BY bucket, chain_id
		ORDER BY bucket ASC`, window)
	if err != nil {
		return err
	}
	for rows.Next() {
		var row feeRevenueRow
		if err := rows.Scan(&row.Bucket, &row.ChainID, &row.RevenueUSD); err != nil {
			rows.Close()
			return err
		}
		payload.FeeRevenue = append(payload.FeeRevenue, row)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = conn.Query(ctx, `
		SELECT
			bucket,
			chain_id,
			sum(gas_cost_sum) / nullIf(sum(gas_cost_count), 0) AS avg_gas_cost_usd
		FROM dex_gas_cost_rollup_1m
		WHERE bucket >= now() - toIntervalMinute(@minutes)
		GROUP BY bucket, chain_id
		ORDER BY bucket ASC`, window)
	if err != nil {
		return err
	}
	for rows.Next() {
		var row gasCostRow
		if err := rows.Scan(&row.Bucket, &row.ChainID, &row.AvgGasCostUSD); err != nil {
			rows.Close()
			return err
		}
		payload.GasCostAverages = append(payload.GasCostAverages, row)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = conn.Query(ctx, `
		SELECT bucket, chain_id, pool_address, token, sum(fee_amount) AS fee_amount
		FROM dex_fee_breakdown_1m
		WHERE bucket >= now() - toIntervalMinute(@minutes)
		GROUP BY bucket, chain_id, pool_address, token
		ORDER BY bucket ASC`, window)
	if err != nil {
		return err
	}
	for rows.Next() {
		var row feeBreakdownRow
		if err := rows.Scan(&row.Bucket, &row.ChainID, &row.PoolAddress, &row.Token, &row.FeeAmount); err != nil {
			rows.Close()
			return err
		}
		payload.FeeBreakdownByPoolToken = append(payload.FeeBreakdownByPoolToken, row)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = conn.Query(ctx, `
		SELECT bucket, chain_id, sum(revenue_musd) AS revenue_musd
		FROM dex_protocol_revenue_musd_1d
		WHERE bucket >= toDate(now() - toIntervalDay(30))
		GROUP BY bucket, chain_id
		ORDER BY bucket ASC`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var row dailyRevenueRow
		if err := rows.Scan(&row.Bucket, &row.ChainID, &row.RevenueMUSD); err != nil {
			rows.Close()
			return err
		}
		payload.ProtocolRevenueMUSDDaily = append(payload.ProtocolRevenueMUSDDaily, row)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = conn.Query(ctx, `
		SELECT
			bucket,
			chain_id,
			(sum(slippage_numerator) / nullIf(sum(min_out_sum), 0)) * 10000 AS slippage_bps,
			sum(conversion_count) AS conversions
		FROM dex_conversion_slippage_rollup_1m
		WHERE bucket >= now() - toIntervalMinute(@minutes)
		GROUP BY bucket, chain_id
		ORDER BY bucket ASC`, window)
	if err != nil {
		return err
	}
	for rows.Next() {
		var row slippageRow
		if err := rows.Scan(&row.Bucket, &row.ChainID, &row.SlippageBps, &row.Conversions); err != nil {
			rows.Close()
			return err
		}
		payload.ConversionSlippage = append(payload.ConversionSlippage, row)
	}
	return rows.Close()
}

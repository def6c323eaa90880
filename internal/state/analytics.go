/*

This file contains the analytics queries and the closed-trade insert.

Everything here tolerates a disabled sink: with DB nil the insert is a
silent no-op and the read queries return a not-initialized error.

*/

package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/karlokr/raydium-lp-bot/internal/types"
)

// PerformanceSummary is the aggregated result of all recorded trades.
type PerformanceSummary struct {
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	TotalPnLSOL    float64 `json:"total_pnl_sol"`
	TotalFeesSOL   float64 `json:"total_fees_sol"`
	AvgPnLPercent  float64 `json:"avg_pnl_percent"`
	WorstILPercent float64 `json:"worst_il_percent"`
}

// RecordClosedTrade mirrors one trade record into the database. A
// disabled sink makes this a no-op; insert failures are logged but
// never propagate, the JSONL history already holds the record.
func RecordClosedTrade(record types.TradeRecord, poolSnapshot map[string]any) {
	if DB == nil {
		return
	}

	snapshotJSON, err := json.Marshal(poolSnapshot)
	if err != nil {
		log.Error().Err(err).Str("tradeID", record.TradeID).Msg("Failed to marshal pool snapshot for analytics")
		snapshotJSON = []byte("null")
	}

	var signatures []string
	if record.ExitSignature != "" {
		signatures = []string{record.ExitSignature}
	}

	query := `
		INSERT INTO trade_records (
			trade_id, pool_id, pool_name, entry_time, exit_time, hold_duration,
			reason, capital_sol, exit_value_sol, pnl_sol, pnl_percent,
			il_percent, fee_income_sol, exit_signatures, pool_snapshot
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (trade_id) DO NOTHING
	`
	_, err = DB.Exec(query,
		record.TradeID, string(record.PoolID), record.PoolName,
		record.EntryTime, record.ExitTime, record.HoldDuration,
		string(record.Reason), record.CapitalSOL, record.ExitValueSOL,
		record.PnLSOL, record.PnLPercent, record.ILPercent,
		record.FeeIncomeSOL, pq.Array(signatures), snapshotJSON,
	)
	if err != nil {
		log.Error().Err(err).Str("tradeID", record.TradeID).Msg("Failed to insert trade record")
		return
	}

	log.Debug().Str("tradeID", record.TradeID).Msg("Trade mirrored to analytics database")
}

// RecordScanSnapshot mirrors the ranked result of one scan cycle. Only
// the top of the ranking is stored; the full pool set is transient by
// design. No-op when the sink is disabled.
func RecordScanSnapshot(ranked []types.RankedPool, fetched, filtered int) {
	if DB == nil {
		return
	}

	top := ranked
	if len(top) > 10 {
		top = top[:10]
	}
	topJSON, err := json.Marshal(top)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal scan snapshot")
		return
	}

	query := `
		INSERT INTO scan_snapshots (scan_id, fetched_pools, filtered_pools, admitted_pools, top_ranked)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := DB.Exec(query, uuid.NewString(), fetched, filtered, len(ranked), topJSON); err != nil {
		log.Error().Err(err).Msg("Failed to insert scan snapshot")
		return
	}
	log.Debug().Int("admitted", len(ranked)).Msg("Scan snapshot mirrored to analytics database")
}

// GetRecentTrades retrieves the most recently closed trades.
func GetRecentTrades(limit int) ([]types.TradeRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	query := `
		SELECT
			trade_id, pool_id, pool_name, entry_time, exit_time, hold_duration,
			reason, capital_sol, exit_value_sol, pnl_sol, pnl_percent,
			il_percent, fee_income_sol, exit_signatures
		FROM trade_records
		ORDER BY exit_time DESC
		LIMIT $1
	`
	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent trades: %w", err)
	}
	defer rows.Close()

	var trades []types.TradeRecord
	for rows.Next() {
		var rec types.TradeRecord
		var signatures []string
		err := rows.Scan(
			&rec.TradeID, &rec.PoolID, &rec.PoolName,
			&rec.EntryTime, &rec.ExitTime, &rec.HoldDuration,
			&rec.Reason, &rec.CapitalSOL, &rec.ExitValueSOL,
			&rec.PnLSOL, &rec.PnLPercent,
			&rec.ILPercent, &rec.FeeIncomeSOL, pq.Array(&signatures),
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan trade row")
			continue
		}
		if len(signatures) > 0 {
			rec.ExitSignature = signatures[0]
		}
		trades = append(trades, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return trades, nil
}

// GetPerformanceSummary aggregates every recorded trade.
func GetPerformanceSummary() (*PerformanceSummary, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	summary := &PerformanceSummary{}
	query := `
		SELECT
			COUNT(*) AS total_trades,
			COUNT(CASE WHEN pnl_sol >= 0 THEN 1 END) AS winning_trades,
			COALESCE(SUM(pnl_sol), 0) AS total_pnl_sol,
			COALESCE(SUM(fee_income_sol), 0) AS total_fees_sol,
			COALESCE(AVG(pnl_percent), 0) AS avg_pnl_percent,
			COALESCE(MIN(il_percent), 0) AS worst_il_percent
		FROM trade_records
	`
	err := DB.QueryRow(query).Scan(
		&summary.TotalTrades,
		&summary.WinningTrades,
		&summary.TotalPnLSOL,
		&summary.TotalFeesSOL,
		&summary.AvgPnLPercent,
		&summary.WorstILPercent,
	)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get performance summary: %w", err)
	}

	log.Info().
		Int("totalTrades", summary.TotalTrades).
		Float64("totalPnLSOL", summary.TotalPnLSOL).
		Msg("Retrieved performance summary")
	return summary, nil
}

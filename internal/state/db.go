/*

This file contains the optional PostgreSQL connection for the analytics
sink.

The file snapshot and JSONL history are the sources of truth; the
database only mirrors closed trades for offline analysis. When no
DATABASE_URL is configured the bot runs without it and every sink call
becomes a no-op.

*/

package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is the global analytics connection pool. Nil when the sink is
// disabled.
var DB *sql.DB

// InitDB opens the analytics connection pool from a Postgres URL.
func InitDB(databaseURL string) error {
	var err error
	DB, err = sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(5)
	DB.SetMaxIdleConns(5)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err := DB.Ping(); err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Connected to the PostgreSQL analytics database")
	return nil
}

// CloseDB closes the analytics connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
		DB = nil
	}
}

// EnsureSchema applies the DDL for the trade table. Safe to run on
// every startup.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS trade_records (
			trade_id UUID PRIMARY KEY,
			pool_id VARCHAR(64) NOT NULL,
			pool_name VARCHAR(128) NOT NULL,
			entry_time TIMESTAMPTZ NOT NULL,
			exit_time TIMESTAMPTZ NOT NULL,
			hold_duration VARCHAR(32) NOT NULL,
			reason VARCHAR(32) NOT NULL,
			capital_sol DECIMAL(20, 9) NOT NULL,
			exit_value_sol DECIMAL(20, 9) NOT NULL,
			pnl_sol DECIMAL(20, 9) NOT NULL,
			pnl_percent DECIMAL(10, 4) NOT NULL,
			il_percent DECIMAL(10, 4) NOT NULL,
			fee_income_sol DECIMAL(20, 9) NOT NULL,
			exit_signatures TEXT[],
			pool_snapshot JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_trade_records_exit_time ON trade_records(exit_time DESC);
		CREATE INDEX IF NOT EXISTS idx_trade_records_pool_id ON trade_records(pool_id);
		CREATE INDEX IF NOT EXISTS idx_trade_records_reason ON trade_records(reason);

		CREATE TABLE IF NOT EXISTS scan_snapshots (
			scan_id UUID PRIMARY KEY,
			scan_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			fetched_pools INTEGER NOT NULL,
			filtered_pools INTEGER NOT NULL,
			admitted_pools INTEGER NOT NULL,
			top_ranked JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_scan_snapshots_timestamp ON scan_snapshots(scan_timestamp DESC);
	`
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured")
	return nil
}

// TestDBConnection checks connection health with a short timeout.
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

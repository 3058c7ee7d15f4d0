package repository

import "fmt"

// ClickHouseSchema returns the idempotent DDL for bar and volatility tables.
// Both tables collapse rows sharing (instrument, date) so writes are upserts.
func ClickHouseSchema(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.price_bars (
            instrument LowCardinality(String),
            date Date,
            open Float64,
            high Float64,
            low Float64,
            close Float64,
            adj_close Float64,
            volume Float64,
            ingested_at DateTime64(3) DEFAULT now64(3)
        ) ENGINE = ReplacingMergeTree(ingested_at)
        ORDER BY (instrument, date)`, database),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.volatility (
            instrument LowCardinality(String),
            date Date,
            predicted_volatility Float64,
            computed_at DateTime,
            source_reference String
        ) ENGINE = ReplacingMergeTree(computed_at)
        ORDER BY (instrument, date)`, database),
	}
}

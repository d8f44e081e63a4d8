package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Database owns the connection pool and schema migrations.
type Database struct {
	Pool *pgxpool.Pool
}

// Migrations run in order on startup; every statement must be idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS signals (
		id BIGSERIAL PRIMARY KEY,
		instrument TEXT NOT NULL,
		detected_at TIMESTAMPTZ NOT NULL,
		signal_type TEXT NOT NULL,
		rsi7 DOUBLE PRECISION,
		rsi14 DOUBLE PRECISION NOT NULL,
		rsi21 DOUBLE PRECISION,
		volume_ratio DOUBLE PRECISION NOT NULL,
		current_volume DOUBLE PRECISION,
		avg_volume DOUBLE PRECISION,
		base_level TEXT NOT NULL,
		final_level TEXT NOT NULL,
		passed_filters TEXT NOT NULL DEFAULT '[]',
		failed_filters TEXT NOT NULL DEFAULT '[]',
		price DOUBLE PRECISION,
		atr DOUBLE PRECISION,
		sma20 DOUBLE PRECISION,
		spread_percent DOUBLE PRECISION NOT NULL DEFAULT 0.1,
		volume_clusters TEXT NOT NULL DEFAULT '[]',
		cluster_summary TEXT NOT NULL DEFAULT '',
		risk_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		risk_level TEXT NOT NULL DEFAULT '',
		risk_interpretation TEXT NOT NULL DEFAULT '',
		interpretation TEXT NOT NULL DEFAULT '',
		recommendation TEXT NOT NULL DEFAULT '',
		risk_level_text TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE INDEX IF NOT EXISTS idx_signals_instrument_detected
		ON signals (instrument, detected_at DESC)`,

	`CREATE INDEX IF NOT EXISTS idx_signals_detected
		ON signals (detected_at DESC)`,

	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	`INSERT INTO meta (key, value) VALUES ('schema_version', '1')
		ON CONFLICT (key) DO NOTHING`,
}

// New connects to PostgreSQL and applies migrations.
func New(ctx context.Context, connString string) (*Database, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &Database{Pool: pool}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info().Msg("database connected and migrated")
	return db, nil
}

func (db *Database) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}

// Close releases the pool.
func (db *Database) Close() {
	db.Pool.Close()
}

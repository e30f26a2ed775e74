package storage

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS integration_runs (
        id           UUID PRIMARY KEY,
        kind         TEXT NOT NULL,
        started_at   TIMESTAMPTZ NOT NULL,
        finished_at  TIMESTAMPTZ NOT NULL,
        window_days  INTEGER NOT NULL DEFAULT 0,
        documents    INTEGER NOT NULL DEFAULT 0,
        commodities  INTEGER NOT NULL DEFAULT 0,
        observations INTEGER NOT NULL DEFAULT 0,
        status       TEXT NOT NULL,
        error        TEXT
    )`,
	`CREATE TABLE IF NOT EXISTS observations (
        commodity   TEXT NOT NULL,
        observed_on DATE NOT NULL,
        price       NUMERIC(12,2) NOT NULL,
        source_url  TEXT NOT NULL DEFAULT '',
        run_id      UUID REFERENCES integration_runs(id) ON DELETE SET NULL,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (commodity, observed_on)
    )`,
	`CREATE INDEX IF NOT EXISTS idx_observations_observed_on ON observations(observed_on)`,
	`CREATE TABLE IF NOT EXISTS market_items (
        name             TEXT PRIMARY KEY,
        category         TEXT NOT NULL,
        unit             TEXT NOT NULL,
        location         TEXT NOT NULL,
        current_price    NUMERIC(12,2) NOT NULL,
        average_price    NUMERIC(12,2) NOT NULL,
        savings          NUMERIC(12,2) NOT NULL,
        status           TEXT NOT NULL,
        direction        TEXT NOT NULL,
        price_change     NUMERIC(12,2) NOT NULL,
        price_change_pct NUMERIC(8,2) NOT NULL,
        trend            JSONB NOT NULL DEFAULT '[]',
        observations     INTEGER NOT NULL,
        first_observed   DATE NOT NULL,
        last_observed    DATE NOT NULL,
        updated_at       TIMESTAMPTZ NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS alerts (
        id               BIGSERIAL PRIMARY KEY,
        run_id           UUID REFERENCES integration_runs(id) ON DELETE SET NULL,
        commodity        TEXT NOT NULL,
        price_change_pct NUMERIC(8,2) NOT NULL,
        threshold_pct    NUMERIC(8,2) NOT NULL,
        direction        TEXT NOT NULL,
        channels         TEXT[] NOT NULL DEFAULT '{}',
        created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at)`,
}

// EnsureSchema creates the tables the Store needs when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

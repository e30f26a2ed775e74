package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"presyo-watcher/internal/prices"
)

const sqliteTimeLayout = time.RFC3339Nano

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS integration_runs (
        id           TEXT PRIMARY KEY,
        kind         TEXT NOT NULL,
        started_at   TEXT NOT NULL,
        finished_at  TEXT NOT NULL,
        window_days  INTEGER NOT NULL DEFAULT 0,
        documents    INTEGER NOT NULL DEFAULT 0,
        commodities  INTEGER NOT NULL DEFAULT 0,
        observations INTEGER NOT NULL DEFAULT 0,
        status       TEXT NOT NULL,
        error        TEXT
    )`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON integration_runs(started_at)`,
	`CREATE TABLE IF NOT EXISTS observations (
        commodity   TEXT NOT NULL,
        observed_on TEXT NOT NULL,
        price       TEXT NOT NULL,
        source_url  TEXT NOT NULL DEFAULT '',
        run_id      TEXT,
        created_at  TEXT NOT NULL,
        PRIMARY KEY (commodity, observed_on)
    )`,
	`CREATE TABLE IF NOT EXISTS market_items (
        name             TEXT PRIMARY KEY,
        category         TEXT NOT NULL,
        unit             TEXT NOT NULL,
        location         TEXT NOT NULL,
        current_price    TEXT NOT NULL,
        average_price    TEXT NOT NULL,
        savings          TEXT NOT NULL,
        status           TEXT NOT NULL,
        direction        TEXT NOT NULL,
        price_change     TEXT NOT NULL,
        price_change_pct TEXT NOT NULL,
        trend            TEXT NOT NULL DEFAULT '[]',
        observations     INTEGER NOT NULL,
        first_observed   TEXT NOT NULL,
        last_observed    TEXT NOT NULL,
        updated_at       TEXT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS alerts (
        id               INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id           TEXT,
        commodity        TEXT NOT NULL,
        price_change_pct TEXT NOT NULL,
        threshold_pct    TEXT NOT NULL,
        direction        TEXT NOT NULL,
        channels         TEXT NOT NULL DEFAULT '[]',
        created_at       TEXT NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at)`,
}

// SQLiteStore is a single-file repository for deployments without
// PostgreSQL. It does not implement AdvisoryLocker.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path and creates the
// schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// UpsertObservations writes observations in one transaction.
func (s *SQLiteStore) UpsertObservations(ctx context.Context, observations []Observation) error {
	if len(observations) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin observations: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := s.now().UTC().Format(sqliteTimeLayout)
	for _, obs := range observations {
		if _, err := tx.ExecContext(ctx, `INSERT INTO observations (commodity, observed_on, price, source_url, run_id, created_at)
            VALUES (?, ?, ?, ?, ?, ?)
            ON CONFLICT (commodity, observed_on) DO UPDATE
            SET price = excluded.price, source_url = excluded.source_url, run_id = excluded.run_id`,
			obs.Commodity,
			obs.ObservedOn.Format(prices.DateLayout),
			obs.Price.String(),
			obs.SourceURL,
			nullableUUIDText(obs.RunID),
			created,
		); err != nil {
			return fmt.Errorf("upsert observation %s %s: %w", obs.Commodity, obs.ObservedOn.Format(prices.DateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit observations: %w", err)
	}
	return nil
}

// ListObservations lists one commodity's observations within [from, to].
func (s *SQLiteStore) ListObservations(ctx context.Context, commodity string, from, to time.Time) ([]Observation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT commodity, observed_on, price, source_url, run_id, created_at
        FROM observations
        WHERE commodity = ? AND observed_on >= ? AND observed_on <= ?
        ORDER BY observed_on`,
		commodity, from.Format(prices.DateLayout), to.Format(prices.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	out := make([]Observation, 0)
	for rows.Next() {
		var (
			obs                          Observation
			observedOn, price, createdAt string
			runID                        sql.NullString
		)
		if err := rows.Scan(&obs.Commodity, &observedOn, &price, &obs.SourceURL, &runID, &createdAt); err != nil {
			return nil, err
		}
		if obs.ObservedOn, err = time.Parse(prices.DateLayout, observedOn); err != nil {
			return nil, fmt.Errorf("parse observed_on: %w", err)
		}
		if obs.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		if obs.RunID, err = parseUUID(nullStringPtr(runID)); err != nil {
			return nil, err
		}
		if obs.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

// UpsertMarketItems writes market items in one transaction.
func (s *SQLiteStore) UpsertMarketItems(ctx context.Context, items []MarketItem) error {
	if len(items) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin market items: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, item := range items {
		trend, err := json.Marshal(item.Trend)
		if err != nil {
			return fmt.Errorf("marshal trend: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO market_items (
                name, category, unit, location, current_price, average_price, savings, status, direction,
                price_change, price_change_pct, trend, observations, first_observed, last_observed, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT (name) DO UPDATE SET
                category = excluded.category,
                unit = excluded.unit,
                location = excluded.location,
                current_price = excluded.current_price,
                average_price = excluded.average_price,
                savings = excluded.savings,
                status = excluded.status,
                direction = excluded.direction,
                price_change = excluded.price_change,
                price_change_pct = excluded.price_change_pct,
                trend = excluded.trend,
                observations = excluded.observations,
                first_observed = excluded.first_observed,
                last_observed = excluded.last_observed,
                updated_at = excluded.updated_at`,
			item.Name,
			item.Category,
			item.Unit,
			item.Location,
			item.CurrentPrice.String(),
			item.AveragePrice.String(),
			item.Savings.String(),
			item.Status,
			item.Direction,
			item.PriceChange.String(),
			item.PriceChangePct.String(),
			string(trend),
			item.Observations,
			item.FirstObserved.Format(prices.DateLayout),
			item.LastObserved.Format(prices.DateLayout),
			item.UpdatedAt.UTC().Format(sqliteTimeLayout),
		); err != nil {
			return fmt.Errorf("upsert market item %s: %w", item.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit market items: %w", err)
	}
	return nil
}

// ListMarketItems lists market items ordered by category then name.
func (s *SQLiteStore) ListMarketItems(ctx context.Context, limit int) ([]MarketItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, category, unit, location, current_price, average_price, savings,
            status, direction, price_change, price_change_pct, trend, observations, first_observed, last_observed, updated_at
        FROM market_items
        ORDER BY category, name
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list market items: %w", err)
	}
	defer rows.Close()

	items := make([]MarketItem, 0, limit)
	for rows.Next() {
		var (
			item                                   MarketItem
			current, average, savings, change, pct string
			trend, first, last, updated            string
		)
		if err := rows.Scan(
			&item.Name, &item.Category, &item.Unit, &item.Location,
			&current, &average, &savings, &item.Status, &item.Direction,
			&change, &pct, &trend, &item.Observations, &first, &last, &updated,
		); err != nil {
			return nil, err
		}
		if err := decodeMarketItem(&item, current, average, savings, change, pct, []byte(trend)); err != nil {
			return nil, err
		}
		if item.FirstObserved, err = time.Parse(prices.DateLayout, first); err != nil {
			return nil, fmt.Errorf("parse first_observed: %w", err)
		}
		if item.LastObserved, err = time.Parse(prices.DateLayout, last); err != nil {
			return nil, fmt.Errorf("parse last_observed: %w", err)
		}
		if item.UpdatedAt, err = time.Parse(sqliteTimeLayout, updated); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpsertRun records or finalises an integration run.
func (s *SQLiteStore) UpsertRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errMsg any
	if run.Error != nil {
		errMsg = *run.Error
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO integration_runs (
            id, kind, started_at, finished_at, window_days, documents, commodities, observations, status, error
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET
            finished_at = excluded.finished_at,
            documents = excluded.documents,
            commodities = excluded.commodities,
            observations = excluded.observations,
            status = excluded.status,
            error = excluded.error`,
		run.ID.String(),
		run.Kind,
		run.StartedAt.UTC().Format(sqliteTimeLayout),
		run.FinishedAt.UTC().Format(sqliteTimeLayout),
		run.WindowDays,
		run.Documents,
		run.Commodities,
		run.Observations,
		run.Status,
		errMsg,
	); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// ListRecentRuns lists the most recent runs.
func (s *SQLiteStore) ListRecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, started_at, finished_at, window_days, documents,
            commodities, observations, status, error
        FROM integration_runs
        ORDER BY started_at DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var (
			run                   Run
			id, started, finished string
			errMsg                sql.NullString
		)
		if err := rows.Scan(&id, &run.Kind, &started, &finished, &run.WindowDays, &run.Documents,
			&run.Commodities, &run.Observations, &run.Status, &errMsg); err != nil {
			return nil, err
		}
		if run.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse run id: %w", err)
		}
		if run.StartedAt, err = time.Parse(sqliteTimeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if run.FinishedAt, err = time.Parse(sqliteTimeLayout, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		run.Error = nullStringPtr(errMsg)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// InsertAlert persists an alert emission.
func (s *SQLiteStore) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels, err := json.Marshal(alert.Channels)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("marshal channels: %w", err)
	}
	alert.CreatedAt = s.now().UTC()

	res, err := s.db.ExecContext(ctx, `INSERT INTO alerts (run_id, commodity, price_change_pct, threshold_pct, direction, channels, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullableUUIDText(alert.RunID),
		alert.Commodity,
		alert.PriceChangePct.String(),
		alert.ThresholdPct.String(),
		alert.Direction,
		string(channels),
		alert.CreatedAt.Format(sqliteTimeLayout),
	)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	if alert.ID, err = res.LastInsertId(); err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert id: %w", err)
	}
	return alert, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *SQLiteStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, commodity, price_change_pct, threshold_pct, direction, channels, created_at
        FROM alerts
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var (
			rec                         AlertRecord
			runID                       sql.NullString
			pct, threshold, channels, c string
		)
		if err := rows.Scan(&rec.ID, &runID, &rec.Commodity, &pct, &threshold, &rec.Direction, &channels, &c); err != nil {
			return nil, err
		}
		if rec.RunID, err = parseUUID(nullStringPtr(runID)); err != nil {
			return nil, err
		}
		if rec.PriceChangePct, err = decimal.NewFromString(pct); err != nil {
			return nil, fmt.Errorf("parse price change pct: %w", err)
		}
		if rec.ThresholdPct, err = decimal.NewFromString(threshold); err != nil {
			return nil, fmt.Errorf("parse threshold pct: %w", err)
		}
		if err := json.Unmarshal([]byte(channels), &rec.Channels); err != nil {
			return nil, fmt.Errorf("parse channels: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(sqliteTimeLayout, c); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		alerts = append(alerts, rec)
	}
	return alerts, rows.Err()
}

func nullableUUIDText(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

var _ Repository = (*SQLiteStore)(nil)

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"presyo-watcher/internal/prices"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertObservationSQL = `INSERT INTO observations (
        commodity,
        observed_on,
        price,
        source_url,
        run_id
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (commodity, observed_on) DO UPDATE
    SET
        price      = EXCLUDED.price,
        source_url = EXCLUDED.source_url,
        run_id     = EXCLUDED.run_id;`

	listObservationsSQL = `SELECT
        commodity,
        observed_on,
        price::text,
        source_url,
        run_id::text,
        created_at
    FROM observations
    WHERE commodity = $1
      AND observed_on >= $2
      AND observed_on <= $3
    ORDER BY observed_on;`

	upsertMarketItemSQL = `INSERT INTO market_items (
        name,
        category,
        unit,
        location,
        current_price,
        average_price,
        savings,
        status,
        direction,
        price_change,
        price_change_pct,
        trend,
        observations,
        first_observed,
        last_observed,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
    )
    ON CONFLICT (name) DO UPDATE
    SET
        category         = EXCLUDED.category,
        unit             = EXCLUDED.unit,
        location         = EXCLUDED.location,
        current_price    = EXCLUDED.current_price,
        average_price    = EXCLUDED.average_price,
        savings          = EXCLUDED.savings,
        status           = EXCLUDED.status,
        direction        = EXCLUDED.direction,
        price_change     = EXCLUDED.price_change,
        price_change_pct = EXCLUDED.price_change_pct,
        trend            = EXCLUDED.trend,
        observations     = EXCLUDED.observations,
        first_observed   = EXCLUDED.first_observed,
        last_observed    = EXCLUDED.last_observed,
        updated_at       = EXCLUDED.updated_at;`

	listMarketItemsSQL = `SELECT
        name,
        category,
        unit,
        location,
        current_price::text,
        average_price::text,
        savings::text,
        status,
        direction,
        price_change::text,
        price_change_pct::text,
        trend,
        observations,
        first_observed,
        last_observed,
        updated_at
    FROM market_items
    ORDER BY category, name
    LIMIT $1;`

	upsertRunSQL = `INSERT INTO integration_runs (
        id,
        kind,
        started_at,
        finished_at,
        window_days,
        documents,
        commodities,
        observations,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (id) DO UPDATE
    SET
        finished_at  = EXCLUDED.finished_at,
        documents    = EXCLUDED.documents,
        commodities  = EXCLUDED.commodities,
        observations = EXCLUDED.observations,
        status       = EXCLUDED.status,
        error        = EXCLUDED.error;`

	listRecentRunsSQL = `SELECT
        id::text,
        kind,
        started_at,
        finished_at,
        window_days,
        documents,
        commodities,
        observations,
        status,
        error
    FROM integration_runs
    ORDER BY started_at DESC
    LIMIT $1;`

	insertAlertSQL = `INSERT INTO alerts (
        run_id,
        commodity,
        price_change_pct,
        threshold_pct,
        direction,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        run_id::text,
        commodity,
        price_change_pct::text,
        threshold_pct::text,
        direction,
        channels,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	tryAdvisoryXactLockSQL = `SELECT pg_try_advisory_xact_lock($1);`
)

// ObservationStore persists per-day commodity prices.
type ObservationStore interface {
	UpsertObservations(ctx context.Context, observations []Observation) error
	ListObservations(ctx context.Context, commodity string, from, to time.Time) ([]Observation, error)
}

// MarketItemStore persists the derived per-commodity view.
type MarketItemStore interface {
	UpsertMarketItems(ctx context.Context, items []MarketItem) error
	ListMarketItems(ctx context.Context, limit int) ([]MarketItem, error)
}

// RunStore audits integration runs.
type RunStore interface {
	UpsertRun(ctx context.Context, run Run) error
	ListRecentRuns(ctx context.Context, limit int) ([]Run, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Repository is everything the integration service persists through.
type Repository interface {
	ObservationStore
	MarketItemStore
	RunStore
	AlertStore
	Close()
}

// DB is the subset of *pgxpool.Pool the Store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store is the PostgreSQL repository.
type Store struct {
	pool DB
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool DB) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (DB, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock takes a transaction-scoped advisory lock. The returned
// unlock func ends the transaction, which releases the lock.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin lock transaction: %w", err)
	}

	var acquired bool
	if err := tx.QueryRow(ctx, tryAdvisoryXactLockSQL, key).Scan(&acquired); err != nil {
		_ = tx.Rollback(context.Background())
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		_ = tx.Rollback(ctx)
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = tx.Commit(ctxUnlock)
	}
	return unlock, true, nil
}

// UpsertObservations writes observations in one transaction.
func (s *Store) UpsertObservations(ctx context.Context, observations []Observation) error {
	if len(observations) == 0 {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin observations: %w", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	for _, obs := range observations {
		if _, err := tx.Exec(ctx, upsertObservationSQL,
			obs.Commodity,
			obs.ObservedOn,
			obs.Price.String(),
			obs.SourceURL,
			nullableUUID(obs.RunID),
		); err != nil {
			return fmt.Errorf("upsert observation %s %s: %w", obs.Commodity, obs.ObservedOn.Format(prices.DateLayout), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit observations: %w", err)
	}
	return nil
}

// ListObservations lists one commodity's observations within [from, to].
func (s *Store) ListObservations(ctx context.Context, commodity string, from, to time.Time) ([]Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsSQL, commodity, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations: %w", queryErr)
	}
	defer rows.Close()

	out := make([]Observation, 0)
	for rows.Next() {
		var (
			obs      Observation
			priceStr string
			runID    *string
		)
		if err := rows.Scan(&obs.Commodity, &obs.ObservedOn, &priceStr, &obs.SourceURL, &runID, &obs.CreatedAt); err != nil {
			return nil, err
		}
		if obs.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		if obs.RunID, err = parseUUID(runID); err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// UpsertMarketItems writes market items in one transaction.
func (s *Store) UpsertMarketItems(ctx context.Context, items []MarketItem) error {
	if len(items) == 0 {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin market items: %w", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	for _, item := range items {
		trend, err := json.Marshal(item.Trend)
		if err != nil {
			return fmt.Errorf("marshal trend: %w", err)
		}
		if _, err := tx.Exec(ctx, upsertMarketItemSQL,
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
			trend,
			item.Observations,
			item.FirstObserved,
			item.LastObserved,
			item.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert market item %s: %w", item.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit market items: %w", err)
	}
	return nil
}

// ListMarketItems lists market items ordered by category then name.
func (s *Store) ListMarketItems(ctx context.Context, limit int) ([]MarketItem, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listMarketItemsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list market items: %w", queryErr)
	}
	defer rows.Close()

	items := make([]MarketItem, 0, limit)
	for rows.Next() {
		var (
			item                                   MarketItem
			current, average, savings, change, pct string
			trend                                  []byte
		)
		if err := rows.Scan(
			&item.Name,
			&item.Category,
			&item.Unit,
			&item.Location,
			&current,
			&average,
			&savings,
			&item.Status,
			&item.Direction,
			&change,
			&pct,
			&trend,
			&item.Observations,
			&item.FirstObserved,
			&item.LastObserved,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := decodeMarketItem(&item, current, average, savings, change, pct, trend); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// UpsertRun records or finalises an integration run.
func (s *Store) UpsertRun(ctx context.Context, run Run) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg any
	if run.Error != nil {
		errMsg = *run.Error
	}

	if _, execErr := pool.Exec(ctx, upsertRunSQL,
		run.ID,
		run.Kind,
		run.StartedAt,
		run.FinishedAt,
		run.WindowDays,
		run.Documents,
		run.Commodities,
		run.Observations,
		run.Status,
		errMsg,
	); execErr != nil {
		return fmt.Errorf("upsert run: %w", execErr)
	}
	return nil
}

// ListRecentRuns lists the most recent runs.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]Run, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var (
			run   Run
			idStr string
		)
		if err := rows.Scan(
			&idStr,
			&run.Kind,
			&run.StartedAt,
			&run.FinishedAt,
			&run.WindowDays,
			&run.Documents,
			&run.Commodities,
			&run.Observations,
			&run.Status,
			&run.Error,
		); err != nil {
			return nil, err
		}
		if run.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parse run id: %w", err)
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		nullableUUID(alert.RunID),
		alert.Commodity,
		alert.PriceChangePct.String(),
		alert.ThresholdPct.String(),
		alert.Direction,
		alert.Channels,
	)
	if scanErr := row.Scan(&alert.ID, &alert.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return alert, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var (
			rec               AlertRecord
			runID             *string
			pctStr, threshStr string
		)
		if err := rows.Scan(
			&rec.ID,
			&runID,
			&rec.Commodity,
			&pctStr,
			&threshStr,
			&rec.Direction,
			&rec.Channels,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if rec.RunID, err = parseUUID(runID); err != nil {
			return nil, err
		}
		if rec.PriceChangePct, err = decimal.NewFromString(pctStr); err != nil {
			return nil, fmt.Errorf("parse price change pct: %w", err)
		}
		if rec.ThresholdPct, err = decimal.NewFromString(threshStr); err != nil {
			return nil, fmt.Errorf("parse threshold pct: %w", err)
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func decodeMarketItem(item *MarketItem, current, average, savings, change, pct string, trend []byte) error {
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"current price", current, &item.CurrentPrice},
		{"average price", average, &item.AveragePrice},
		{"savings", savings, &item.Savings},
		{"price change", change, &item.PriceChange},
		{"price change pct", pct, &item.PriceChangePct},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = v
	}
	if len(trend) > 0 {
		if err := json.Unmarshal(trend, &item.Trend); err != nil {
			return fmt.Errorf("parse trend: %w", err)
		}
	}
	return nil
}

func nullableUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func parseUUID(raw *string) (uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse run id: %w", err)
	}
	return id, nil
}

var (
	_ Repository     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)

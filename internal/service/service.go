package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"presyo-watcher/internal/alerting"
	"presyo-watcher/internal/catalog"
	"presyo-watcher/internal/config"
	"presyo-watcher/internal/history"
	"presyo-watcher/internal/metrics"
	"presyo-watcher/internal/prices"
	"presyo-watcher/internal/scheduler"
	"presyo-watcher/internal/storage"
	"presyo-watcher/internal/trend"
)

// Run kinds recorded in the run audit.
const (
	KindIntegrate = "integrate"
	KindBackfill  = "backfill"
)

// trendPoints caps how many recent prices a market item carries.
const trendPoints = 6

// HistoryBuilder assembles price histories from published reports.
type HistoryBuilder interface {
	Build(ctx context.Context, days int) (prices.History, history.Report)
	BuildRange(ctx context.Context, from, to time.Time) (prices.History, history.Report)
}

// Result summarises one integration or backfill pass.
type Result struct {
	RunID        uuid.UUID
	Status       string
	Documents    int
	Commodities  int
	Observations int
	Report       history.Report
	Trends       map[string]prices.TrendSummary
	Items        []storage.MarketItem
	Alerts       []alerting.Notification
}

// Service orchestrates acquisition, trend derivation, persistence, and alerting.
type Service struct {
	scheduler  *scheduler.Scheduler
	builder    HistoryBuilder
	calculator trend.Calculator
	store      storage.Repository
	notifier   alerting.Notifier
	logger     zerolog.Logger

	windowDays int
	location   string
	threshold  decimal.Decimal
	channels   []string
	alertsOn   bool
	locker     storage.AdvisoryLocker
	lockKey    int64
	now        func() time.Time
}

// New constructs the integration service. store and notifier may be nil.
func New(cfg *config.Config, sched *scheduler.Scheduler, builder HistoryBuilder, calculator trend.Calculator, store storage.Repository, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	threshold := decimal.Zero
	if cfg.Alerting.Enabled && cfg.Alerting.ThresholdPct > 0 {
		threshold = decimal.NewFromFloat(cfg.Alerting.ThresholdPct)
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:  sched,
		builder:    builder,
		calculator: calculator,
		store:      store,
		notifier:   notifier,
		logger:     logger.With().Str("component", "service").Logger(),
		windowDays: cfg.Trends.WindowDays,
		location:   cfg.App.Location,
		threshold:  threshold,
		channels:   cfg.Alerting.Channels,
		alertsOn:   cfg.Alerting.Enabled,
		locker:     locker,
		lockKey:    cfg.Scheduler.AdvisoryLockKey,
		now:        time.Now,
	}
}

// Run blocks on the scheduler, integrating the configured window on every fire.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessRun)
}

// ProcessRun 执行一次定时整合，多实例部署时通过 advisory lock 互斥。
func (s *Service) ProcessRun(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("at", at).Msg("skip run because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	_, err = s.Integrate(ctx, s.windowDays)
	return err
}

// Integrate builds the last days of history, derives trends, persists the
// results, and dispatches alerts for large movements. An empty window is not
// an error.
func (s *Service) Integrate(ctx context.Context, days int) (Result, error) {
	started := s.now().UTC()
	res := Result{RunID: uuid.New()}
	run := storage.Run{ID: res.RunID, Kind: KindIntegrate, StartedAt: started, FinishedAt: started, WindowDays: days, Status: "running"}
	log := s.logger.With().Str("run_id", res.RunID.String()).Logger()

	if err := s.recordRun(ctx, run); err != nil {
		return res, err
	}

	hist, report := s.builder.Build(ctx, days)
	res.Report = report
	res.Documents = report.Documents()
	res.Trends = s.calculator.Calculate(hist)
	res.Commodities = len(res.Trends)
	observations := report.Observations()
	res.Observations = len(observations)
	res.Items = MarketItems(res.Trends, s.location, started)

	if res.Documents == 0 {
		log.Warn().Int("days", days).Msg("no reports found in window")
		res.Status = storage.RunEmpty
		return res, s.finishRun(ctx, run, res, nil)
	}

	if s.store != nil {
		if err := s.store.UpsertObservations(ctx, toStorageObservations(report, res.RunID)); err != nil {
			return res, s.fail(ctx, run, &res, fmt.Errorf("persist observations: %w", err))
		}
		if err := s.store.UpsertMarketItems(ctx, res.Items); err != nil {
			return res, s.fail(ctx, run, &res, fmt.Errorf("persist market items: %w", err))
		}
	}

	res.Alerts = s.dispatchAlerts(ctx, res.RunID, res.Trends)
	res.Status = storage.RunComplete

	log.Info().
		Int("documents", res.Documents).
		Int("commodities", res.Commodities).
		Int("observations", res.Observations).
		Int("alerts", len(res.Alerts)).
		Msg("integration complete")
	return res, s.finishRun(ctx, run, res, nil)
}

// Backfill acquires every report in [from, to] and persists the per-day
// observations. Market items are left to the next integration.
func (s *Service) Backfill(ctx context.Context, from, to time.Time) (Result, error) {
	started := s.now().UTC()
	res := Result{RunID: uuid.New()}
	days := int(to.Sub(from).Hours()/24) + 1
	run := storage.Run{ID: res.RunID, Kind: KindBackfill, StartedAt: started, FinishedAt: started, WindowDays: days, Status: "running"}

	if err := s.recordRun(ctx, run); err != nil {
		return res, err
	}

	hist, report := s.builder.BuildRange(ctx, from, to)
	res.Report = report
	res.Documents = report.Documents()
	res.Commodities = len(hist)
	observations := toStorageObservations(report, res.RunID)
	res.Observations = len(observations)

	if res.Documents == 0 {
		res.Status = storage.RunEmpty
		s.logger.Warn().Time("from", from).Time("to", to).Msg("no reports found in backfill range")
		return res, s.finishRun(ctx, run, res, nil)
	}

	if s.store != nil {
		if err := s.store.UpsertObservations(ctx, observations); err != nil {
			return res, s.fail(ctx, run, &res, fmt.Errorf("persist observations: %w", err))
		}
	}

	res.Status = storage.RunComplete
	s.logger.Info().
		Str("run_id", res.RunID.String()).
		Int("documents", res.Documents).
		Int("observations", res.Observations).
		Msg("backfill complete")
	return res, s.finishRun(ctx, run, res, nil)
}

// NotifyMovers dispatches alerts for the given trends without persisting
// anything but the alert audit.
func (s *Service) NotifyMovers(ctx context.Context, trends map[string]prices.TrendSummary) []alerting.Notification {
	return s.dispatchAlerts(ctx, uuid.Nil, trends)
}

func (s *Service) dispatchAlerts(ctx context.Context, runID uuid.UUID, trends map[string]prices.TrendSummary) []alerting.Notification {
	if !s.alertsOn || s.notifier == nil || s.threshold.IsZero() {
		return nil
	}

	movers := alerting.Movers(trends, s.threshold, s.channels)
	for _, note := range movers {
		if s.store != nil {
			record := storage.AlertRecord{
				RunID:          runID,
				Commodity:      note.Commodity,
				PriceChangePct: note.PriceChangePct,
				ThresholdPct:   note.ThresholdPct,
				Direction:      string(note.Direction),
				Channels:       note.Channels,
			}
			if _, err := s.store.InsertAlert(ctx, record); err != nil {
				s.logger.Error().Err(err).Str("commodity", note.Commodity).Msg("failed to persist alert record")
			}
		}
		if err := s.notifier.Notify(ctx, note); err != nil {
			metrics.RecordAlert("failed")
			s.logger.Error().Err(err).Str("commodity", note.Commodity).Msg("failed to dispatch alert")
			continue
		}
		metrics.RecordAlert("sent")
	}
	return movers
}

// MarketItems derives the display view of every trend summary, ordered by
// category then name.
func MarketItems(trends map[string]prices.TrendSummary, location string, now time.Time) []storage.MarketItem {
	items := make([]storage.MarketItem, 0, len(trends))
	for name, t := range trends {
		recent := t.Prices
		if len(recent) > trendPoints {
			recent = recent[len(recent)-trendPoints:]
		}
		items = append(items, storage.MarketItem{
			Name:           name,
			Category:       catalog.Category(name),
			Unit:           catalog.Unit(name),
			Location:       location,
			CurrentPrice:   t.CurrentPrice,
			AveragePrice:   t.AveragePrice,
			Savings:        catalog.Savings(t.CurrentPrice, t.AveragePrice),
			Status:         string(catalog.Status(t.CurrentPrice, t.AveragePrice)),
			Direction:      string(t.Direction),
			PriceChange:    t.PriceChange,
			PriceChangePct: t.PriceChangePct,
			Trend:          append([]decimal.Decimal(nil), recent...),
			Observations:   t.Observations,
			FirstObserved:  t.DateRange.Start,
			LastObserved:   t.DateRange.End,
			UpdatedAt:      now,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Category != items[j].Category {
			return items[i].Category < items[j].Category
		}
		return items[i].Name < items[j].Name
	})
	return items
}

func toStorageObservations(report history.Report, runID uuid.UUID) []storage.Observation {
	urls := make(map[time.Time]string, len(report.Days))
	for _, d := range report.Days {
		urls[d.Date] = d.URL
	}
	flat := report.Observations()
	out := make([]storage.Observation, 0, len(flat))
	for _, o := range flat {
		out = append(out, storage.Observation{
			Commodity:  o.Commodity,
			Price:      o.Price,
			ObservedOn: o.Date,
			SourceURL:  urls[o.Date],
			RunID:      runID,
		})
	}
	return out
}

func (s *Service) recordRun(ctx context.Context, run storage.Run) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.UpsertRun(ctx, run); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (s *Service) fail(ctx context.Context, run storage.Run, res *Result, cause error) error {
	res.Status = storage.RunFailed
	if err := s.finishRun(ctx, run, *res, cause); err != nil {
		s.logger.Error().Err(err).Str("run_id", run.ID.String()).Msg("failed to record run failure")
	}
	return cause
}

func (s *Service) finishRun(ctx context.Context, run storage.Run, res Result, cause error) error {
	finished := s.now().UTC()
	metrics.RecordIntegration(res.Status, finished.Sub(run.StartedAt).Seconds())

	run.FinishedAt = finished
	run.Status = res.Status
	run.Documents = res.Documents
	run.Commodities = res.Commodities
	run.Observations = res.Observations
	if cause != nil {
		msg := cause.Error()
		run.Error = &msg
	}
	return s.recordRun(ctx, run)
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

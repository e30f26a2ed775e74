package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"presyo-watcher/internal/alerting"
	"presyo-watcher/internal/config"
	"presyo-watcher/internal/extract"
	"presyo-watcher/internal/fetcher"
	"presyo-watcher/internal/history"
	"presyo-watcher/internal/metrics"
	"presyo-watcher/internal/parser"
	"presyo-watcher/internal/scheduler"
	"presyo-watcher/internal/service"
	"presyo-watcher/internal/storage"
	"presyo-watcher/internal/trend"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newClassifier(preset string) (*parser.Classifier, error) {
	if preset == "" {
		preset = a.Config.Parser.Preset
	}
	cfg, err := parser.Preset(preset)
	if err != nil {
		return nil, err
	}
	if a.Config.Parser.MinLineLength > 0 {
		cfg.MinLineLength = a.Config.Parser.MinLineLength
	}
	return parser.New(cfg)
}

func (a *App) newCalculator() (trend.Calculator, error) {
	policy, err := trend.ParseTiePolicy(a.Config.Trends.TiePolicy)
	if err != nil {
		return trend.Calculator{}, err
	}
	return trend.Calculator{TiePolicy: policy}, nil
}

func (a *App) newBuilder() (*history.Builder, error) {
	src := a.Config.Source
	acquirer, err := fetcher.NewDailyIndex(fetcher.DailyIndexOptions{
		BaseURL:    src.BaseURL,
		Templates:  src.Templates,
		UserAgent:  src.UserAgent,
		ListingURL: src.ListingURL,
	}, fetcher.HTTPClient{Timeout: src.RequestTimeout}, a.Logger)
	if err != nil {
		return nil, err
	}

	classifier, err := a.newClassifier("")
	if err != nil {
		return nil, err
	}

	return history.NewBuilder(acquirer, extract.PDF{}, classifier, history.Options{
		Delay:    src.Delay,
		Location: a.Config.SourceLocation(),
	}, a.Logger), nil
}

func (a *App) newNotifier() alerting.Notifier {
	var notifiers alerting.Multi
	for _, ch := range a.Config.Alerting.Channels {
		switch strings.ToLower(strings.TrimSpace(ch)) {
		case "telegram":
			if a.Config.Alerting.Telegram.Enabled {
				cfg := a.Config.Alerting.Telegram
				notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger))
			}
		case "log":
			notifiers = append(notifiers, alerting.NewLogNotifier(a.Logger))
		default:
			a.Logger.Warn().Str("channel", ch).Msg("unknown alert channel ignored")
		}
	}
	switch len(notifiers) {
	case 0:
		return nil
	case 1:
		return notifiers[0]
	default:
		return notifiers
	}
}

func (a *App) openStore(ctx context.Context) (storage.Repository, func(), error) {
	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, nil
	}
	return store, store.Close, nil
}

func (a *App) newService(sched *scheduler.Scheduler, store storage.Repository) (*service.Service, error) {
	builder, err := a.newBuilder()
	if err != nil {
		return nil, err
	}
	calc, err := a.newCalculator()
	if err != nil {
		return nil, err
	}
	return service.New(a.Config, sched, builder, calc, store, a.newNotifier(), a.Logger), nil
}

// Run executes the long-running integration service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched, err := scheduler.New(scheduler.Options{
		Specs:      a.Config.Scheduler.Specs,
		Location:   a.Config.SchedulerLocation(),
		RunOnStart: a.Config.Scheduler.RunOnStart,
	}, a.Logger)
	if err != nil {
		return err
	}

	svc, err := a.newService(sched, store)
	if err != nil {
		return err
	}

	if addr := a.Config.Metrics.ListenAddr; addr != "" {
		stop := a.serveMetrics(addr)
		defer stop()
	}

	a.Logger.Info().Msg("starting integration service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("integration service stopped")
	return nil
}

func (a *App) serveMetrics(addr string) func() {
	path := a.Config.Metrics.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.Logger.Info().Str("addr", addr).Str("path", path).Msg("metrics endpoint listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("metrics endpoint failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Out, format, args...)
}

// IntegrateOptions configure a one-off integration.
type IntegrateOptions struct {
	Days   int
	DryRun bool
}

// ExportOptions hold parameters for exporting a commodity series.
type ExportOptions struct {
	Commodity string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
	Runs  bool
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From   time.Time
	To     time.Time
	DryRun bool
}

// ParseOptions configure the parse command.
type ParseOptions struct {
	Path    string
	Preset  string
	Date    *time.Time
	Explain bool
}

// Package history turns a window of daily reports into per-commodity price
// series.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"presyo-watcher/internal/extract"
	"presyo-watcher/internal/fetcher"
	"presyo-watcher/internal/metrics"
	"presyo-watcher/internal/parser"
	"presyo-watcher/internal/prices"
)

// Status is the outcome of one day in a build window.
type Status string

const (
	StatusParsed    Status = "parsed"
	StatusNotFound  Status = "not_found"
	StatusMalformed Status = "malformed"
	StatusEmpty     Status = "empty"
)

// DayOutcome records what happened for a single weekday.
type DayOutcome struct {
	Date         time.Time
	Status       Status
	URL          string
	Observations int
	Prices       map[string]decimal.Decimal
}

// Report describes a build: every attempted day in acquisition order plus
// the weekend days that were skipped.
type Report struct {
	Days     []DayOutcome
	Weekends []time.Time
}

// Documents returns how many days produced a parsed report.
func (r Report) Documents() int {
	n := 0
	for _, d := range r.Days {
		if d.Status == StatusParsed {
			n++
		}
	}
	return n
}

// Count returns how many days ended with status.
func (r Report) Count(status Status) int {
	n := 0
	for _, d := range r.Days {
		if d.Status == status {
			n++
		}
	}
	return n
}

// Observations flattens parsed days into observations ordered by date then
// commodity.
func (r Report) Observations() []prices.Observation {
	days := make([]DayOutcome, 0, len(r.Days))
	for _, d := range r.Days {
		if d.Status == StatusParsed {
			days = append(days, d)
		}
	}
	sort.SliceStable(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })

	var out []prices.Observation
	for _, d := range days {
		names := make([]string, 0, len(d.Prices))
		for name := range d.Prices {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, prices.Observation{Commodity: name, Price: d.Prices[name], Date: d.Date})
		}
	}
	return out
}

// Options tune the builder.
type Options struct {
	// Delay is the minimum spacing between consecutive acquisitions.
	Delay    time.Duration
	Location *time.Location
	Now      func() time.Time
}

// Builder acquires, extracts and classifies one report per weekday.
type Builder struct {
	acquirer   fetcher.Acquirer
	extractor  extract.Extractor
	classifier *parser.Classifier
	opts       Options
	logger     zerolog.Logger
}

// NewBuilder wires the pipeline stages into a Builder.
func NewBuilder(acquirer fetcher.Acquirer, extractor extract.Extractor, classifier *parser.Classifier, opts Options, logger zerolog.Logger) *Builder {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	return &Builder{
		acquirer:   acquirer,
		extractor:  extractor,
		classifier: classifier,
		opts:       opts,
		logger:     logger.With().Str("component", "history_builder").Logger(),
	}
}

// Window returns the dates covered by a build of days, newest first.
func (b *Builder) Window(days int) []time.Time {
	today := midnight(b.opts.Now().In(b.opts.Location))
	dates := make([]time.Time, 0, max(days, 0))
	for i := 0; i < days; i++ {
		dates = append(dates, today.AddDate(0, 0, -i))
	}
	return dates
}

// Build assembles the history for the last days calendar days ending today.
// Days without a usable report are absent from the result.
func (b *Builder) Build(ctx context.Context, days int) (prices.History, Report) {
	return b.build(ctx, b.Window(days))
}

// BuildRange assembles the history for every calendar day in [from, to].
func (b *Builder) BuildRange(ctx context.Context, from, to time.Time) (prices.History, Report) {
	start := midnight(from.In(b.opts.Location))
	end := midnight(to.In(b.opts.Location))

	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return b.build(ctx, dates)
}

func (b *Builder) build(ctx context.Context, dates []time.Time) (prices.History, Report) {
	history := prices.History{}
	var report Report

	limit := rate.Inf
	if b.opts.Delay > 0 {
		limit = rate.Every(b.opts.Delay)
	}
	// pause starts a full Delay from the moment the previous day finished.
	var pause *rate.Limiter

	for _, date := range dates {
		if isWeekend(date) {
			report.Weekends = append(report.Weekends, date)
			continue
		}
		err := ctx.Err()
		if err == nil && pause != nil {
			err = pause.Wait(ctx)
		}
		if err != nil {
			b.logger.Warn().Err(err).Str("date", date.Format(prices.DateLayout)).Msg("build interrupted")
			break
		}

		outcome := b.day(ctx, date)
		pause = rate.NewLimiter(limit, 1)
		pause.Allow()
		metrics.RecordAcquire(string(outcome.Status), outcome.Observations)
		report.Days = append(report.Days, outcome)

		for name, price := range outcome.Prices {
			history.Add(name, date, price)
		}
		if ctx.Err() != nil {
			break
		}
	}

	history.Sort()
	b.logger.Info().
		Int("days", len(report.Days)).
		Int("documents", report.Documents()).
		Int("commodities", len(history)).
		Msg("history built")
	return history, report
}

func (b *Builder) day(ctx context.Context, date time.Time) DayOutcome {
	outcome := DayOutcome{Date: date}
	log := b.logger.With().Str("date", date.Format(prices.DateLayout)).Logger()

	doc, err := b.acquirer.Acquire(ctx, date)
	if err != nil {
		outcome.Status = StatusNotFound
		if !errors.Is(err, fetcher.ErrNotFound) {
			log.Warn().Err(err).Msg("acquisition failed")
		}
		return outcome
	}
	outcome.URL = doc.URL

	text, err := b.extractor.Extract(doc.Body)
	if err != nil {
		outcome.Status = StatusMalformed
		log.Warn().Err(fmt.Errorf("extract %s: %w", doc.URL, err)).Msg("report unreadable")
		return outcome
	}

	found := b.classifier.ParseText(text)
	if len(found) == 0 {
		outcome.Status = StatusEmpty
		log.Warn().Str("url", doc.URL).Msg("report yielded no prices")
		return outcome
	}

	outcome.Status = StatusParsed
	outcome.Prices = found
	outcome.Observations = len(found)
	log.Info().Str("url", doc.URL).Int("observations", len(found)).Msg("report parsed")
	return outcome
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"presyo-watcher/internal/metrics"
)

const (
	defaultBaseURL   = "https://www.da.gov.ph/wp-content/uploads"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// DefaultTemplates cover the two naming conventions the publisher has used
// for daily price index reports.
var DefaultTemplates = []string{
	"{{.Base}}/{{.Year}}/{{.Month}}/Daily-Price-Index-{{.MonthName}}-{{.Day}}-{{.Year}}.pdf",
	"{{.Base}}/{{.Year}}/{{.Month}}/{{.MonthName}}-{{.Day}}-{{.Year}}-DPI-AFC.pdf",
}

// DailyIndexOptions parameterise the daily report acquirer.
type DailyIndexOptions struct {
	BaseURL    string
	Templates  []string
	UserAgent  string
	ListingURL string
}

// DailyIndex acquires daily price index reports by trying date-derived
// locations in order.
type DailyIndex struct {
	opts      DailyIndexOptions
	templates []*template.Template
	client    Client
	logger    zerolog.Logger
}

// TemplateData is the value each location template is rendered with.
type TemplateData struct {
	Base      string
	Year      int
	Month     string
	MonthName string
	Day       int
	Date      string
}

// NewDailyIndex parses the location templates and builds an acquirer.
func NewDailyIndex(opts DailyIndexOptions, client Client, logger zerolog.Logger) (*DailyIndex, error) {
	if client == nil {
		return nil, fmt.Errorf("fetcher client required")
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if len(opts.Templates) == 0 {
		opts.Templates = DefaultTemplates
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}

	templates := make([]*template.Template, 0, len(opts.Templates))
	for i, raw := range opts.Templates {
		tpl, err := template.New(fmt.Sprintf("candidate-%d", i)).Option("missingkey=error").Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse location template %q: %w", raw, err)
		}
		templates = append(templates, tpl)
	}

	return &DailyIndex{
		opts:      opts,
		templates: templates,
		client:    client,
		logger:    logger.With().Str("component", "daily_index_fetcher").Logger(),
	}, nil
}

// Candidates renders the ordered locations for date.
func (d *DailyIndex) Candidates(date time.Time) []string {
	data := TemplateData{
		Base:      d.opts.BaseURL,
		Year:      date.Year(),
		Month:     fmt.Sprintf("%02d", int(date.Month())),
		MonthName: date.Month().String(),
		Day:       date.Day(),
		Date:      date.Format("2006-01-02"),
	}

	urls := make([]string, 0, len(d.templates))
	for _, tpl := range d.templates {
		var buf bytes.Buffer
		if err := tpl.Execute(&buf, data); err != nil {
			d.logger.Warn().Err(err).Str("template", tpl.Name()).Msg("location template failed")
			continue
		}
		urls = append(urls, buf.String())
	}
	return urls
}

// Acquire returns the first document retrieved for date. Template candidates
// are tried first; the listing page is only consulted when all of them fail.
// Failed candidates are logged and skipped; when none succeed the error is
// ErrNotFound.
func (d *DailyIndex) Acquire(ctx context.Context, date time.Time) (Document, error) {
	candidates := d.Candidates(date)
	if doc, ok, err := d.tryCandidates(ctx, date, candidates); ok || err != nil {
		return doc, err
	}

	attempted := len(candidates)
	if d.opts.ListingURL != "" {
		discovered := appendUnique(candidates, d.discover(ctx, date)...)[len(candidates):]
		if doc, ok, err := d.tryCandidates(ctx, date, discovered); ok || err != nil {
			return doc, err
		}
		attempted += len(discovered)
	}

	d.logger.Warn().Str("date", date.Format("2006-01-02")).Int("candidates", attempted).Msg("no report found")
	return Document{}, ErrNotFound
}

func (d *DailyIndex) tryCandidates(ctx context.Context, date time.Time, candidates []string) (Document, bool, error) {
	header := http.Header{}
	header.Set("User-Agent", d.opts.UserAgent)
	header.Set("Accept", "application/pdf,*/*")

	for _, url := range candidates {
		if err := ctx.Err(); err != nil {
			return Document{}, false, err
		}

		d.logger.Debug().Str("url", url).Msg("trying report location")
		status, body, err := d.client.Get(ctx, url, header)
		switch {
		case err != nil:
			metrics.RecordFetch("error")
			d.logger.Debug().Err(err).Str("url", url).Msg("report fetch failed")
			continue
		case status != http.StatusOK:
			metrics.RecordFetch("status")
			d.logger.Debug().Int("status", status).Str("url", url).Msg("report not available")
			continue
		case len(body) == 0:
			metrics.RecordFetch("empty")
			d.logger.Debug().Str("url", url).Msg("report body empty")
			continue
		}

		metrics.RecordFetch("ok")
		d.logger.Info().Str("date", date.Format("2006-01-02")).Str("url", url).Int("bytes", len(body)).Msg("report downloaded")
		return Document{Date: date, URL: url, Body: body}, true, nil
	}
	return Document{}, false, nil
}

func appendUnique(dst []string, extra ...string) []string {
	seen := make(map[string]struct{}, len(dst)+len(extra))
	for _, u := range dst {
		seen[u] = struct{}{}
	}
	for _, u := range extra {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		dst = append(dst, u)
	}
	return dst
}

var _ Acquirer = (*DailyIndex)(nil)

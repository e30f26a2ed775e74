package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"presyo-watcher/internal/prices"
	"presyo-watcher/internal/storage"
)

// Export renders the stored price series of one commodity as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if strings.TrimSpace(opts.Commodity) == "" {
		return errors.New("--commodity is required")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.AddDate(0, 0, -opts.MaxPoints)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if to.Before(from) {
		return errors.New("from must not be after to")
	}

	observations, err := store.ListObservations(ctx, opts.Commodity, from, to)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		a.Logger.Info().Str("commodity", opts.Commodity).Msg("no observations found for export window")
		return nil
	}

	downsampled := downsample(observations, opts.MaxPoints)
	a.Logger.Info().
		Str("commodity", opts.Commodity).
		Int("total", len(observations)).
		Int("exported", len(downsampled)).
		Msg("exporting observations")

	if opts.CSVPath != "" {
		if err := writeObservationsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeObservationsPNG(opts.PNGPath, opts.Commodity, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsample(observations []storage.Observation, max int) []storage.Observation {
	if max <= 0 || len(observations) <= max {
		return observations
	}
	if max == 1 {
		return observations[len(observations)-1:]
	}

	result := make([]storage.Observation, 0, max)
	step := float64(len(observations)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(observations) {
			idx = len(observations) - 1
		}
		result = append(result, observations[idx])
	}
	return result
}

func writeObservationsCSV(path string, observations []storage.Observation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"observed_on", "commodity", "price", "source_url", "run_id"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, obs := range observations {
		runID := ""
		if obs.RunID != uuid.Nil {
			runID = obs.RunID.String()
		}
		record := []string{
			obs.ObservedOn.Format(prices.DateLayout),
			obs.Commodity,
			formatDecimal(obs.Price, 2),
			obs.SourceURL,
			runID,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeObservationsPNG(path, commodity string, observations []storage.Observation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(observations))
	y := make([]float64, len(observations))
	for i, obs := range observations {
		x[i] = obs.ObservedOn
		y[i] = obs.Price.InexactFloat64()
	}
	// go-chart needs at least two points to range an axis.
	if len(observations) == 1 {
		x = append(x, x[0].AddDate(0, 0, 1))
		y = append(y, y[0])
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  commodity,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (PHP)",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    commodity,
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}

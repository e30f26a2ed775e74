package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"

	"presyo-watcher/internal/history"
	"presyo-watcher/internal/service"
	"presyo-watcher/internal/storage"
)

// Integrate runs a single integration pass over the trailing window and
// prints the resulting trend table.
func (a *App) Integrate(ctx context.Context, opts IntegrateOptions) error {
	if opts.Days <= 0 {
		opts.Days = a.Config.Trends.WindowDays
	}

	store, closeStore, err := a.storeFor(ctx, opts.DryRun)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc, err := a.newService(nil, store)
	if err != nil {
		return err
	}

	res, err := svc.Integrate(ctx, opts.Days)
	if err != nil {
		return err
	}

	a.printReport(res.Report)
	if res.Status == storage.RunEmpty {
		a.printf("no reports found in the last %d days\n", opts.Days)
		return nil
	}
	a.printItems(res.Items)
	if len(res.Alerts) > 0 {
		a.printf("\n%d alert(s) dispatched\n", len(res.Alerts))
	}
	return nil
}

// Backfill acquires every report in the given date range and stores the
// observations.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if opts.To.Before(opts.From) {
		return errors.New("backfill range is empty; check --from/--to")
	}

	store, closeStore, err := a.storeFor(ctx, opts.DryRun)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc, err := a.newService(nil, store)
	if err != nil {
		return err
	}

	res, err := svc.Backfill(ctx, opts.From, opts.To)
	if err != nil {
		return err
	}

	a.printReport(res.Report)
	a.printf("\n%d observation(s) across %d commodities from %d report(s)\n", res.Observations, res.Commodities, res.Documents)
	return nil
}

// storeFor opens the configured store unless dryRun is set. Persisting
// commands need a store.
func (a *App) storeFor(ctx context.Context, dryRun bool) (storage.Repository, func(), error) {
	if dryRun {
		a.Logger.Warn().Msg("dry-run: nothing will be written to the database")
		return nil, nil, nil
	}
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database not configured; use --dry-run or set database.dsn / database.sqlite_path")
	}
	return store, closeStore, nil
}

func (a *App) printReport(report history.Report) {
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tStatus\tPrices\tURL")
	days := append([]history.DayOutcome(nil), report.Days...)
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	for _, day := range days {
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\n", day.Date.Format("2006-01-02"), day.Status, day.Observations, day.URL)
	}
	writer.Flush()
	if n := len(report.Weekends); n > 0 {
		a.printf("(%d weekend day(s) skipped)\n", n)
	}
}

func (a *App) printItems(items []storage.MarketItem) {
	a.printf("\n")
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Commodity\tCategory\tCurrent\tAverage\tChange%\tTrend\tStatus")
	for _, item := range items {
		fmt.Fprintf(writer, "%s\t%s\t%s/%s\t%s\t%s\t%s\t%s\n",
			item.Name,
			item.Category,
			formatDecimal(item.CurrentPrice, 2), item.Unit,
			formatDecimal(item.AveragePrice, 2),
			formatDecimal(item.PriceChangePct, 2),
			item.Direction,
			item.Status,
		)
	}
	writer.Flush()
}

var _ service.HistoryBuilder = (*history.Builder)(nil)

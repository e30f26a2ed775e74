package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"presyo-watcher/internal/storage"
)

// Show prints the stored market items, or the recent runs when opts.Runs is set.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show market items")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Runs {
		return a.showRuns(ctx, store, opts.Limit)
	}

	items, err := store.ListMarketItems(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		a.printf("no market items found\n")
		return nil
	}
	a.printItems(items)
	return nil
}

func (a *App) showRuns(ctx context.Context, store storage.RunStore, limit int) error {
	runs, err := store.ListRecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		a.printf("no runs found\n")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Started (UTC)\tKind\tStatus\tDays\tReports\tCommodities\tObservations\tError")
	for _, run := range runs {
		errMsg := ""
		if run.Error != nil {
			errMsg = sanitizeInline(*run.Error)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			run.StartedAt.UTC().Format(time.RFC3339),
			run.Kind,
			run.Status,
			run.WindowDays,
			run.Documents,
			run.Commodities,
			run.Observations,
			errMsg,
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

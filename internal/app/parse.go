package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"presyo-watcher/internal/catalog"
	"presyo-watcher/internal/extract"
	"presyo-watcher/internal/prices"
)

// Parse extracts commodity prices from a local report file and prints them.
// PDFs are detected by extension or magic bytes; anything else is read as text.
// With Explain set every line is listed with its classification first.
func (a *App) Parse(_ context.Context, opts ParseOptions) error {
	raw, err := os.ReadFile(opts.Path)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	classifier, err := a.newClassifier(opts.Preset)
	if err != nil {
		return err
	}

	text, err := extractorFor(opts.Path, raw).Extract(raw)
	if err != nil {
		return err
	}

	if opts.Date != nil {
		a.printf("report date: %s\n", opts.Date.Format(prices.DateLayout))
	}

	if opts.Explain {
		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		for _, line := range extract.Lines(text) {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if name, price, ok := classifier.ClassifyLine(line); ok {
				fmt.Fprintf(writer, "+\t%s\t%s\t%s\n", sanitizeInline(line), name, formatDecimal(price, 2))
				continue
			}
			fmt.Fprintf(writer, "-\t%s\t\t\n", sanitizeInline(line))
		}
		if err := writer.Flush(); err != nil {
			return err
		}
		a.printf("\n")
	}

	found := classifier.ParseText(text)
	if len(found) == 0 {
		a.printf("no prices found\n")
		return nil
	}

	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Commodity\tCategory\tPrice")
	for _, name := range names {
		fmt.Fprintf(writer, "%s\t%s\t%s/%s\n", name, catalog.Category(name), formatDecimal(found[name], 2), catalog.Unit(name))
	}
	return writer.Flush()
}

func extractorFor(path string, raw []byte) extract.Extractor {
	if strings.EqualFold(filepath.Ext(path), ".pdf") || bytes.HasPrefix(raw, []byte("%PDF")) {
		return extract.PDF{}
	}
	return extract.Plain{}
}

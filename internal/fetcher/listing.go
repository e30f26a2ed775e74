package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// discover scans the listing page for PDF links that mention date. It is a
// fallback for reports published under names no template anticipates.
func (d *DailyIndex) discover(ctx context.Context, date time.Time) []string {
	header := http.Header{}
	header.Set("User-Agent", d.opts.UserAgent)
	header.Set("Accept", "text/html")

	status, body, err := d.client.Get(ctx, d.opts.ListingURL, header)
	if err != nil || status != http.StatusOK {
		d.logger.Debug().Err(err).Int("status", status).Str("url", d.opts.ListingURL).Msg("listing page unavailable")
		return nil
	}

	links, err := ReportLinks(body, d.opts.ListingURL, date)
	if err != nil {
		d.logger.Debug().Err(err).Str("url", d.opts.ListingURL).Msg("listing page unreadable")
		return nil
	}
	return links
}

// ReportLinks returns absolute PDF links in an HTML listing page whose href
// or anchor text refers to date, in document order.
func ReportLinks(page []byte, pageURL string, date time.Time) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}

	month := strings.ToLower(date.Month().String())
	hrefToken := fmt.Sprintf("%s-%d-%d", month, date.Day(), date.Year())
	textTokens := []string{
		fmt.Sprintf("%s %d, %d", month, date.Day(), date.Year()),
		fmt.Sprintf("%s %d %d", month, date.Day(), date.Year()),
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if !strings.EqualFold(path.Ext(abs.Path), ".pdf") {
			return
		}

		text := strings.ToLower(strings.Join(strings.Fields(a.Text()), " "))
		match := strings.Contains(strings.ToLower(abs.Path), hrefToken)
		for _, token := range textTokens {
			match = match || strings.Contains(text, token)
		}
		if match {
			links = appendUnique(links, abs.String())
		}
	})
	return links, nil
}

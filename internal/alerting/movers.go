package alerting

import (
	"sort"

	"github.com/shopspring/decimal"

	"presyo-watcher/internal/catalog"
	"presyo-watcher/internal/prices"
)

// Movers builds a notification for every commodity whose price moved by at
// least thresholdPct over the window. Single observations never alert.
// Results are ordered by the size of the move, largest first.
func Movers(summaries map[string]prices.TrendSummary, thresholdPct decimal.Decimal, channels []string) []Notification {
	if !thresholdPct.IsPositive() {
		return nil
	}

	var out []Notification
	for name, s := range summaries {
		if s.Observations < 2 || s.PriceChangePct.Abs().LessThan(thresholdPct) {
			continue
		}
		first := decimal.Zero
		if len(s.Prices) > 0 {
			first = s.Prices[0]
		}
		out = append(out, Notification{
			Commodity:      name,
			Unit:           catalog.Unit(name),
			FirstPrice:     first,
			CurrentPrice:   s.CurrentPrice,
			AveragePrice:   s.AveragePrice,
			PriceChange:    s.PriceChange,
			PriceChangePct: s.PriceChangePct,
			ThresholdPct:   thresholdPct,
			Direction:      s.Direction,
			Observations:   s.Observations,
			From:           s.DateRange.Start,
			To:             s.DateRange.End,
			Channels:       channels,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].PriceChangePct.Abs(), out[j].PriceChangePct.Abs()
		if !a.Equal(b) {
			return a.GreaterThan(b)
		}
		return out[i].Commodity < out[j].Commodity
	})
	return out
}

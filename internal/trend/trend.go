// Package trend derives summary statistics from commodity price histories.
package trend

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"presyo-watcher/internal/prices"
)

// TiePolicy decides the direction when the recent and older three-point
// means are equal.
type TiePolicy string

const (
	// TieDecreasing keeps the historical behaviour: a tie reads as decreasing.
	TieDecreasing TiePolicy = "decreasing"
	// TieStable reports an exact tie as stable.
	TieStable TiePolicy = "stable"
)

// ParseTiePolicy accepts "decreasing" (default when empty) or "stable".
func ParseTiePolicy(v string) (TiePolicy, error) {
	switch TiePolicy(strings.ToLower(strings.TrimSpace(v))) {
	case "", TieDecreasing:
		return TieDecreasing, nil
	case TieStable:
		return TieStable, nil
	default:
		return "", fmt.Errorf("unknown tie policy %q", v)
	}
}

const window = 3

var hundred = decimal.NewFromInt(100)

// Calculator derives TrendSummary values. The zero value uses TieDecreasing.
type Calculator struct {
	TiePolicy TiePolicy
}

// Calculate summarises history with the default tie policy.
func Calculate(history prices.History) map[string]prices.TrendSummary {
	return Calculator{}.Calculate(history)
}

// Calculate returns one summary per commodity with at least one point.
// Commodities with a single observation are kept and marked stable.
// Series are expected in ascending date order.
func (c Calculator) Calculate(history prices.History) map[string]prices.TrendSummary {
	out := make(map[string]prices.TrendSummary, len(history))
	for name, series := range history {
		if len(series) == 0 {
			continue
		}
		out[name] = c.Summarize(name, series)
	}
	return out
}

// Summarize computes the summary of one non-empty series.
func (c Calculator) Summarize(name string, series []prices.Point) prices.TrendSummary {
	k := len(series)
	values := make([]decimal.Decimal, k)
	for i, p := range series {
		values[i] = p.Price
	}

	first := values[0]
	current := values[k-1]
	change := current.Sub(first)

	pct := decimal.Zero
	if first.IsPositive() {
		pct = change.Div(first).Mul(hundred)
	}

	return prices.TrendSummary{
		Commodity:      name,
		CurrentPrice:   current,
		AveragePrice:   mean(values).Round(2),
		Prices:         values,
		Direction:      c.direction(values),
		PriceChange:    change.Round(2),
		PriceChangePct: pct.Round(2),
		Observations:   k,
		DateRange: prices.DateRange{
			Start: series[0].Date,
			End:   series[k-1].Date,
		},
	}
}

func (c Calculator) direction(values []decimal.Decimal) prices.Direction {
	switch k := len(values); {
	case k >= window:
		recent := mean(values[k-window:])
		older := mean(values[:window])
		switch {
		case recent.GreaterThan(older):
			return prices.Increasing
		case recent.Equal(older) && c.TiePolicy == TieStable:
			return prices.Stable
		default:
			return prices.Decreasing
		}
	case k == 2:
		if values[1].GreaterThan(values[0]) {
			return prices.Increasing
		}
		return prices.Decreasing
	default:
		return prices.Stable
	}
}

func mean(values []decimal.Decimal) decimal.Decimal {
	return decimal.Sum(values[0], values[1:]...).Div(decimal.NewFromInt(int64(len(values))))
}

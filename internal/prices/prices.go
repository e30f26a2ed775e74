package prices

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used in summaries and storage keys.
const DateLayout = "2006-01-02"

// Direction classifies the movement of a commodity price series.
type Direction string

const (
	Increasing Direction = "increasing"
	Decreasing Direction = "decreasing"
	Stable     Direction = "stable"
)

// Observation is one commodity price read from one daily report.
type Observation struct {
	Commodity string
	Price     decimal.Decimal
	Date      time.Time
}

// Point is a single dated price in a commodity series.
type Point struct {
	Date  time.Time
	Price decimal.Decimal
}

// History maps a commodity name to its dated prices.
type History map[string][]Point

// Add appends a dated price to the commodity's series.
func (h History) Add(commodity string, date time.Time, price decimal.Decimal) {
	h[commodity] = append(h[commodity], Point{Date: date, Price: price})
}

// Sort orders every series by ascending date.
func (h History) Sort() {
	for name := range h {
		series := h[name]
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Date.Before(series[j].Date)
		})
	}
}

// Observations flattens the history into observations ordered by commodity then date.
func (h History) Observations() []Observation {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Observation, 0, len(names))
	for _, name := range names {
		for _, p := range h[name] {
			out = append(out, Observation{Commodity: name, Price: p.Price, Date: p.Date})
		}
	}
	return out
}

// DateRange bounds a series by its first and last observation dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// TrendSummary is the derived view of one commodity series.
type TrendSummary struct {
	Commodity      string
	CurrentPrice   decimal.Decimal
	AveragePrice   decimal.Decimal
	Prices         []decimal.Decimal
	Direction      Direction
	PriceChange    decimal.Decimal
	PriceChangePct decimal.Decimal
	Observations   int
	DateRange      DateRange
}

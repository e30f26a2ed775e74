// Package catalog classifies commodities for display: category, unit of
// sale, and whether today's price is cheap or expensive against the window
// average.
package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Category groups.
const (
	Rice       = "rice"
	Poultry    = "poultry"
	Meat       = "meat"
	Fish       = "fish"
	Vegetables = "vegetables"
	Spices     = "spices"
	Fuel       = "fuel"
	Others     = "others"
)

// PriceStatus compares a current price with its window average.
type PriceStatus string

const (
	Mura   PriceStatus = "MURA"
	Mahal  PriceStatus = "MAHAL"
	Stable PriceStatus = "STABLE"
)

type group struct {
	name     string
	keywords []string
}

// Checked in order; the first group with a matching keyword wins.
var groups = []group{
	{Rice, []string{"rice", "bigas", "milled", "glutinous", "basmati", "premium"}},
	{Poultry, []string{"chicken", "egg", "poultry"}},
	{Meat, []string{"pork", "beef", "carabao", "meat"}},
	{Fish, []string{"fish", "tilapia", "bangus", "galunggong", "alumahan", "tuna", "mackerel"}},
	{Vegetables, []string{"lettuce", "cabbage", "tomato", "onion", "potato", "carrot", "broccoli", "pechay", "ampalaya", "eggplant", "squash", "sayote", "chayote", "mustasa", "corn"}},
	{Spices, []string{"garlic", "ginger", "chili", "pepper"}},
	{Fuel, []string{"diesel", "gasoline", "fuel", "lpg", "kerosene"}},
}

var (
	litreKeywords = []string{"diesel", "gasoline", "fuel", "kerosene"}
	statusBand    = decimal.NewFromInt(5)
	hundred       = decimal.NewFromInt(100)
)

// Category returns the display group of a commodity.
func Category(name string) string {
	lower := strings.ToLower(name)
	for _, g := range groups {
		if containsAny(lower, g.keywords) {
			return g.name
		}
	}
	return Others
}

// Unit returns the unit a commodity is priced in.
func Unit(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "egg"):
		return "piece"
	case containsAny(lower, litreKeywords):
		return "L"
	default:
		return "kg"
	}
}

// Status reports MURA when current is more than 5% under average, MAHAL when
// more than 5% over, STABLE otherwise.
func Status(current, average decimal.Decimal) PriceStatus {
	if !average.IsPositive() {
		return Stable
	}
	diff := current.Sub(average).Div(average).Mul(hundred)
	switch {
	case diff.LessThan(statusBand.Neg()):
		return Mura
	case diff.GreaterThan(statusBand):
		return Mahal
	default:
		return Stable
	}
}

// Savings is how much cheaper current is than average, to the centavo.
func Savings(current, average decimal.Decimal) decimal.Decimal {
	return average.Sub(current).Round(2)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

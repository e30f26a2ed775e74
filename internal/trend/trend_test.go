package trend

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presyo-watcher/internal/prices"
)

var day0 = time.Date(2026, time.February, 16, 0, 0, 0, 0, time.UTC)

func series(values ...string) []prices.Point {
	out := make([]prices.Point, len(values))
	for i, v := range values {
		out[i] = prices.Point{Date: day0.AddDate(0, 0, i), Price: decimal.RequireFromString(v)}
	}
	return out
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "want %s got %s", want, got)
}

func TestTwoDayMerge(t *testing.T) {
	trends := Calculate(prices.History{"X": series("10.00", "12.00")})

	got, ok := trends["X"]
	require.True(t, ok)
	assertDecimal(t, "12.00", got.CurrentPrice)
	assertDecimal(t, "11.00", got.AveragePrice)
	assert.Equal(t, prices.Increasing, got.Direction)
	assertDecimal(t, "2.00", got.PriceChange)
	assertDecimal(t, "20.0", got.PriceChangePct)
	assert.Equal(t, 2, got.Observations)
	assert.Equal(t, day0, got.DateRange.Start)
	assert.Equal(t, day0.AddDate(0, 0, 1), got.DateRange.End)
}

func TestTwoPointsNeverStable(t *testing.T) {
	got := Calculate(prices.History{"X": series("10.00", "10.00")})["X"]
	assert.Equal(t, prices.Decreasing, got.Direction)

	got = Calculator{TiePolicy: TieStable}.Calculate(prices.History{"X": series("10.00", "10.00")})["X"]
	assert.Equal(t, prices.Decreasing, got.Direction)
}

func TestSingleObservationIsStable(t *testing.T) {
	got := Calculate(prices.History{"Ginger": series("145.00")})["Ginger"]

	assert.Equal(t, prices.Stable, got.Direction)
	assert.True(t, got.PriceChange.IsZero())
	assert.True(t, got.PriceChangePct.IsZero())
	assertDecimal(t, "145", got.CurrentPrice)
	assertDecimal(t, "145", got.AveragePrice)
	assert.Equal(t, 1, got.Observations)
	assert.Equal(t, got.DateRange.Start, got.DateRange.End)
}

func TestFlatSeriesTieBreak(t *testing.T) {
	flat := prices.History{"X": series("10", "10", "10", "10", "10", "10")}

	assert.Equal(t, prices.Decreasing, Calculate(flat)["X"].Direction)
	assert.Equal(t, prices.Stable, Calculator{TiePolicy: TieStable}.Calculate(flat)["X"].Direction)
}

func TestThreePointWindows(t *testing.T) {
	// first three mean 11, last three mean 13
	got := Calculate(prices.History{"X": series("10", "12", "11", "14", "13", "12")})["X"]
	assert.Equal(t, prices.Increasing, got.Direction)
	assertDecimal(t, "12", got.CurrentPrice)
	assertDecimal(t, "12", got.AveragePrice)
	assertDecimal(t, "2", got.PriceChange)
	assertDecimal(t, "20", got.PriceChangePct)
}

func TestThreePointsAlwaysTie(t *testing.T) {
	// With k == 3 the first and last windows are the same three points, so
	// the means always tie and only the tie policy decides.
	rising := prices.History{"X": series("10", "12", "14")}
	falling := prices.History{"X": series("20", "18", "16")}

	assert.Equal(t, prices.Decreasing, Calculate(rising)["X"].Direction, "k == 3 默认策略下恒为 decreasing, 即使价格上涨")
	assert.Equal(t, prices.Decreasing, Calculate(falling)["X"].Direction)

	stable := Calculator{TiePolicy: TieStable}
	assert.Equal(t, prices.Stable, stable.Calculate(rising)["X"].Direction)
	assert.Equal(t, prices.Stable, stable.Calculate(falling)["X"].Direction)
	assertDecimal(t, "4", stable.Calculate(rising)["X"].PriceChange)
}

func TestRounding(t *testing.T) {
	got := Calculate(prices.History{"X": series("3.00", "3.00", "4.00")})["X"]
	assertDecimal(t, "3.33", got.AveragePrice)
	assertDecimal(t, "33.33", got.PriceChangePct)
}

func TestZeroStartingPriceHasZeroPercent(t *testing.T) {
	got := Calculate(prices.History{"X": series("0", "5")})["X"]
	assertDecimal(t, "5", got.PriceChange)
	assert.True(t, got.PriceChangePct.IsZero())
}

func TestAbsentAndEmptySeries(t *testing.T) {
	got := Calculate(prices.History{"Empty": nil, "Tomato": series("95.00")})
	_, ok := got["Empty"]
	assert.False(t, ok)
	_, ok = got["Carrot"]
	assert.False(t, ok)
	assert.Len(t, got, 1)

	assert.Empty(t, Calculate(prices.History{}))
}

func TestPricesAreChronological(t *testing.T) {
	got := Calculate(prices.History{"X": series("1.50", "2.50", "3.50")})["X"]
	require.Len(t, got.Prices, 3)
	assertDecimal(t, "1.50", got.Prices[0])
	assertDecimal(t, "3.50", got.Prices[2])
}

func TestParseTiePolicy(t *testing.T) {
	p, err := ParseTiePolicy("")
	require.NoError(t, err)
	assert.Equal(t, TieDecreasing, p)

	p, err = ParseTiePolicy("Stable")
	require.NoError(t, err)
	assert.Equal(t, TieStable, p)

	_, err = ParseTiePolicy("sideways")
	assert.Error(t, err)
}

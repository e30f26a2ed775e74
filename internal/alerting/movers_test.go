package alerting

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presyo-watcher/internal/prices"
)

func summary(pct string, observations int) prices.TrendSummary {
	return prices.TrendSummary{
		CurrentPrice:   decimal.NewFromInt(100),
		Prices:         []decimal.Decimal{decimal.NewFromInt(90), decimal.NewFromInt(100)},
		PriceChangePct: decimal.RequireFromString(pct),
		Observations:   observations,
		Direction:      prices.Increasing,
	}
}

func TestMoversFiltersAndOrders(t *testing.T) {
	summaries := map[string]prices.TrendSummary{
		"Tomato":      summary("12.50", 2),
		"Carrot":      summary("-25.00", 3),
		"Cabbage":     summary("9.99", 4),
		"Chicken Egg": summary("10.00", 2),
		"Sayote":      summary("50.00", 1),
	}

	got := Movers(summaries, decimal.NewFromInt(10), []string{"telegram"})
	require.Len(t, got, 3)
	assert.Equal(t, "Carrot", got[0].Commodity)
	assert.Equal(t, "Tomato", got[1].Commodity)
	assert.Equal(t, "Chicken Egg", got[2].Commodity)
	assert.Equal(t, "piece", got[2].Unit)
	assert.True(t, got[0].FirstPrice.Equal(decimal.NewFromInt(90)))
	assert.Equal(t, []string{"telegram"}, got[0].Channels)
}

func TestMoversDisabledByZeroThreshold(t *testing.T) {
	assert.Empty(t, Movers(map[string]prices.TrendSummary{"Tomato": summary("80", 2)}, decimal.Zero, nil))
}

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "presyo.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestSQLiteObservationsRoundTrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	runID := uuid.New()
	d1 := time.Date(2026, time.February, 12, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)

	require.NoError(t, store.UpsertRun(ctx, Run{ID: runID, Kind: "integrate", StartedAt: d1, FinishedAt: d1, Status: RunComplete}))
	require.NoError(t, store.UpsertObservations(ctx, []Observation{
		{Commodity: "Well Milled Rice", Price: decimal.RequireFromString("52.00"), ObservedOn: d1, SourceURL: "a", RunID: runID},
		{Commodity: "Well Milled Rice", Price: decimal.RequireFromString("54.00"), ObservedOn: d2, SourceURL: "b"},
		{Commodity: "Tomato", Price: decimal.RequireFromString("80.00"), ObservedOn: d2},
	}))
	// Re-reading a report overwrites rather than duplicates.
	require.NoError(t, store.UpsertObservations(ctx, []Observation{
		{Commodity: "Well Milled Rice", Price: decimal.RequireFromString("54.50"), ObservedOn: d2, SourceURL: "c"},
	}))

	obs, err := store.ListObservations(ctx, "Well Milled Rice", d1, d2)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.True(t, obs[0].ObservedOn.Equal(d1))
	assert.Equal(t, runID, obs[0].RunID)
	assert.Equal(t, "54.5", obs[1].Price.String())
	assert.Equal(t, "c", obs[1].SourceURL)
	assert.Equal(t, uuid.Nil, obs[1].RunID)

	none, err := store.ListObservations(ctx, "Well Milled Rice", d2.AddDate(0, 0, 1), d2.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteMarketItemsUpsert(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	day := time.Date(2026, time.February, 13, 0, 0, 0, 0, time.UTC)

	item := MarketItem{
		Name: "Tomato", Category: "vegetables", Unit: "kg", Location: "NCR",
		CurrentPrice: decimal.NewFromInt(90), AveragePrice: decimal.NewFromInt(85), Savings: decimal.NewFromInt(-5),
		Status: "MAHAL", Direction: "increasing", PriceChange: decimal.NewFromInt(10), PriceChangePct: decimal.RequireFromString("12.5"),
		Trend: []decimal.Decimal{decimal.NewFromInt(80), decimal.NewFromInt(90)}, Observations: 2,
		FirstObserved: day.AddDate(0, 0, -1), LastObserved: day, UpdatedAt: day,
	}
	require.NoError(t, store.UpsertMarketItems(ctx, []MarketItem{item}))

	item.CurrentPrice = decimal.NewFromInt(95)
	item.Trend = append(item.Trend, decimal.NewFromInt(95))
	rice := item
	rice.Name, rice.Category = "Well Milled Rice", "rice"
	require.NoError(t, store.UpsertMarketItems(ctx, []MarketItem{item, rice}))

	items, err := store.ListMarketItems(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Well Milled Rice", items[0].Name, "ordered by category")
	assert.Equal(t, "95", items[1].CurrentPrice.String())
	assert.Len(t, items[1].Trend, 3)
	assert.True(t, items[1].LastObserved.Equal(day))
}

func TestSQLiteRunsAndAlerts(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	start := time.Date(2026, time.February, 13, 8, 0, 0, 0, time.UTC)

	run := Run{ID: uuid.New(), Kind: "integrate", StartedAt: start, FinishedAt: start, WindowDays: 7, Status: "running"}
	require.NoError(t, store.UpsertRun(ctx, run))
	msg := "no documents"
	run.FinishedAt = start.Add(time.Minute)
	run.Status = RunEmpty
	run.Error = &msg
	require.NoError(t, store.UpsertRun(ctx, run))

	runs, err := store.ListRecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunEmpty, runs[0].Status)
	require.NotNil(t, runs[0].Error)
	assert.Equal(t, "no documents", *runs[0].Error)
	assert.True(t, runs[0].FinishedAt.Equal(start.Add(time.Minute)))

	rec, err := store.InsertAlert(ctx, AlertRecord{
		RunID: run.ID, Commodity: "Tomato", PriceChangePct: decimal.RequireFromString("12.5"),
		ThresholdPct: decimal.NewFromInt(10), Direction: "increasing", Channels: []string{"telegram"},
	})
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)

	alerts, err := store.ListRecentAlerts(ctx, 5)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, run.ID, alerts[0].RunID)
	assert.Equal(t, []string{"telegram"}, alerts[0].Channels)
	assert.Equal(t, "12.5", alerts[0].PriceChangePct.String())
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presyo.db")
	ctx := context.Background()
	day := time.Date(2026, time.February, 13, 0, 0, 0, 0, time.UTC)

	first, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.UpsertObservations(ctx, []Observation{{Commodity: "Tomato", Price: decimal.NewFromInt(80), ObservedOn: day}}))
	first.Close()

	second, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer second.Close()
	obs, err := second.ListObservations(ctx, "Tomato", day, day)
	require.NoError(t, err)
	assert.Len(t, obs, 1)
}

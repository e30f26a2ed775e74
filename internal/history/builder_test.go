package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presyo-watcher/internal/extract"
	"presyo-watcher/internal/fetcher"
	"presyo-watcher/internal/parser"
	"presyo-watcher/internal/prices"
	"presyo-watcher/internal/trend"
)

type fakeAcquirer struct {
	mu    sync.Mutex
	docs  map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeAcquirer) Acquire(_ context.Context, date time.Time) (fetcher.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := date.Format(prices.DateLayout)
	f.calls = append(f.calls, key)
	if err, ok := f.errs[key]; ok {
		return fetcher.Document{}, err
	}
	body, ok := f.docs[key]
	if !ok {
		return fetcher.Document{}, fetcher.ErrNotFound
	}
	return fetcher.Document{Date: date, URL: "https://example.test/" + key + ".pdf", Body: []byte(body)}, nil
}

func fixedNow(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, 9, 30, 0, 0, time.UTC) }
}

func newBuilder(acq fetcher.Acquirer, now func() time.Time) *Builder {
	return NewBuilder(acq, extract.Plain{}, parser.MustNew(parser.Conservative()), Options{Now: now}, zerolog.Nop())
}

func TestWeekendDaysAreNeverAcquired(t *testing.T) {
	acq := &fakeAcquirer{}
	// Monday 2026-02-16; the window also covers Sunday and Saturday.
	b := newBuilder(acq, fixedNow(2026, time.February, 16))

	history, report := b.Build(context.Background(), 3)

	assert.Empty(t, history)
	assert.Equal(t, []string{"2026-02-16"}, acq.calls)
	require.Len(t, report.Weekends, 2)
	assert.Equal(t, time.Sunday, report.Weekends[0].Weekday())
	assert.Equal(t, time.Saturday, report.Weekends[1].Weekday())
	require.Len(t, report.Days, 1)
	assert.Equal(t, StatusNotFound, report.Days[0].Status)
}

func TestWindowIsNewestFirst(t *testing.T) {
	b := newBuilder(&fakeAcquirer{}, fixedNow(2026, time.February, 13))
	window := b.Window(3)
	require.Len(t, window, 3)
	assert.Equal(t, "2026-02-13", window[0].Format(prices.DateLayout))
	assert.Equal(t, "2026-02-11", window[2].Format(prices.DateLayout))
	assert.Empty(t, b.Window(0))
}

func TestEndToEndWellMilledRice(t *testing.T) {
	acq := &fakeAcquirer{docs: map[string]string{
		"2026-02-12": "DAILY PRICE INDEX\nWell Milled Rice    52.00\n",
		"2026-02-13": "DAILY PRICE INDEX\nWell Milled Rice    54.00\n",
	}}
	b := newBuilder(acq, fixedNow(2026, time.February, 13))

	history, report := b.Build(context.Background(), 3)

	require.Contains(t, history, "Well Milled Rice")
	series := history["Well Milled Rice"]
	require.Len(t, series, 2)
	assert.True(t, series[0].Date.Before(series[1].Date), "series must be ascending")

	summary := trend.Calculate(history)["Well Milled Rice"]
	assert.Equal(t, "54.00", summary.CurrentPrice.StringFixed(2))
	assert.Equal(t, "53.00", summary.AveragePrice.StringFixed(2))
	assert.Equal(t, prices.Increasing, summary.Direction)

	assert.Equal(t, 2, report.Documents())
	assert.Equal(t, 1, report.Count(StatusNotFound))
}

func TestFailedDaysContributeNothing(t *testing.T) {
	acq := &fakeAcquirer{
		docs: map[string]string{
			"2026-02-10": "Tomato    80.00\n",
			"2026-02-12": "not a report at all\n",
		},
		errs: map[string]error{"2026-02-11": errors.New("connection refused")},
	}
	b := NewBuilder(acq, extract.Plain{}, parser.MustNew(parser.Conservative()), Options{Now: fixedNow(2026, time.February, 13)}, zerolog.Nop())

	history, report := b.Build(context.Background(), 4)

	require.Len(t, history, 1)
	require.Len(t, history["Tomato"], 1)
	assert.True(t, history["Tomato"][0].Price.Equal(decimal.RequireFromString("80.00")))

	statuses := map[string]Status{}
	for _, d := range report.Days {
		statuses[d.Date.Format(prices.DateLayout)] = d.Status
	}
	assert.Equal(t, map[string]Status{
		"2026-02-13": StatusNotFound,
		"2026-02-12": StatusEmpty,
		"2026-02-11": StatusNotFound,
		"2026-02-10": StatusParsed,
	}, statuses)
}

func TestMalformedDocumentIsRecorded(t *testing.T) {
	acq := &fakeAcquirer{docs: map[string]string{"2026-02-13": "%PDF-broken"}}
	b := NewBuilder(acq, extract.PDF{}, parser.MustNew(parser.Conservative()), Options{Now: fixedNow(2026, time.February, 13)}, zerolog.Nop())

	history, report := b.Build(context.Background(), 1)

	assert.Empty(t, history)
	require.Len(t, report.Days, 1)
	assert.Equal(t, StatusMalformed, report.Days[0].Status)
	assert.NotEmpty(t, report.Days[0].URL)
}

func TestZeroDocumentsYieldEmptyHistory(t *testing.T) {
	b := newBuilder(&fakeAcquirer{}, fixedNow(2026, time.February, 13))
	history, report := b.Build(context.Background(), 5)
	assert.NotNil(t, history)
	assert.Empty(t, history)
	assert.Zero(t, report.Documents())
	assert.Empty(t, trend.Calculate(history))
}

func TestBuildRangeIsInclusiveAndAscending(t *testing.T) {
	acq := &fakeAcquirer{}
	b := newBuilder(acq, fixedNow(2026, time.March, 1))

	from := time.Date(2026, time.February, 12, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.February, 16, 0, 0, 0, 0, time.UTC)
	_, report := b.BuildRange(context.Background(), from, to)

	assert.Equal(t, []string{"2026-02-12", "2026-02-13", "2026-02-16"}, acq.calls)
	assert.Len(t, report.Weekends, 2)
}

func TestCancelledContextStopsFurtherDays(t *testing.T) {
	acq := &fakeAcquirer{}
	b := newBuilder(acq, fixedNow(2026, time.February, 13))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, report := b.Build(ctx, 5)

	assert.Empty(t, acq.calls)
	assert.Empty(t, report.Days)
}

func TestDelaySpacesAcquisitions(t *testing.T) {
	acq := &fakeAcquirer{}
	b := NewBuilder(acq, extract.Plain{}, parser.MustNew(parser.Conservative()), Options{
		Delay: 40 * time.Millisecond,
		Now:   fixedNow(2026, time.February, 13),
	}, zerolog.Nop())

	start := time.Now()
	b.Build(context.Background(), 3)
	elapsed := time.Since(start)

	assert.Len(t, acq.calls, 3)
	assert.GreaterOrEqual(t, elapsed, 70*time.Millisecond)
}

type slowAcquirer struct {
	fakeAcquirer
	work   time.Duration
	starts []time.Time
	ends   []time.Time
}

func (s *slowAcquirer) Acquire(ctx context.Context, date time.Time) (fetcher.Document, error) {
	s.starts = append(s.starts, time.Now())
	time.Sleep(s.work)
	defer func() { s.ends = append(s.ends, time.Now()) }()
	return s.fakeAcquirer.Acquire(ctx, date)
}

func TestDelayFollowsSlowAcquisitions(t *testing.T) {
	acq := &slowAcquirer{work: 60 * time.Millisecond}
	b := NewBuilder(acq, extract.Plain{}, parser.MustNew(parser.Conservative()), Options{
		Delay: 40 * time.Millisecond,
		Now:   fixedNow(2026, time.February, 13),
	}, zerolog.Nop())

	b.Build(context.Background(), 3)

	require.Len(t, acq.starts, 3)
	for i := 1; i < len(acq.starts); i++ {
		gap := acq.starts[i].Sub(acq.ends[i-1])
		assert.GreaterOrEqual(t, gap, 35*time.Millisecond, "第 %d 次请求前没有停顿", i)
	}
}

func TestNoDelayBeforeFirstAcquisition(t *testing.T) {
	acq := &fakeAcquirer{}
	b := NewBuilder(acq, extract.Plain{}, parser.MustNew(parser.Conservative()), Options{
		Delay: time.Second,
		Now:   fixedNow(2026, time.February, 13),
	}, zerolog.Nop())

	start := time.Now()
	b.Build(context.Background(), 1)

	assert.Len(t, acq.calls, 1)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestReportObservationsAreOrdered(t *testing.T) {
	d1 := time.Date(2026, time.February, 12, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	report := Report{Days: []DayOutcome{
		{Date: d2, Status: StatusParsed, Prices: map[string]decimal.Decimal{"Tomato": decimal.NewFromInt(90), "Carrot": decimal.NewFromInt(70)}},
		{Date: d1, Status: StatusParsed, Prices: map[string]decimal.Decimal{"Tomato": decimal.NewFromInt(80)}},
		{Date: d1.AddDate(0, 0, -1), Status: StatusNotFound},
	}}

	obs := report.Observations()
	require.Len(t, obs, 3)
	assert.Equal(t, "Tomato", obs[0].Commodity)
	assert.True(t, obs[0].Date.Equal(d1))
	assert.Equal(t, "Carrot", obs[1].Commodity)
	assert.Equal(t, "Tomato", obs[2].Commodity)
}

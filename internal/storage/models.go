package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Run statuses.
const (
	RunComplete = "complete"
	RunEmpty    = "empty"
	RunFailed   = "failed"
)

// Observation is one commodity price read from one daily report.
type Observation struct {
	Commodity  string
	Price      decimal.Decimal
	ObservedOn time.Time
	SourceURL  string
	RunID      uuid.UUID
	CreatedAt  time.Time
}

// MarketItem is the latest derived view of a commodity.
type MarketItem struct {
	Name           string
	Category       string
	Unit           string
	Location       string
	CurrentPrice   decimal.Decimal
	AveragePrice   decimal.Decimal
	Savings        decimal.Decimal
	Status         string
	Direction      string
	PriceChange    decimal.Decimal
	PriceChangePct decimal.Decimal
	Trend          []decimal.Decimal
	Observations   int
	FirstObserved  time.Time
	LastObserved   time.Time
	UpdatedAt      time.Time
}

// Run audits one integration or backfill pass.
type Run struct {
	ID           uuid.UUID
	Kind         string
	StartedAt    time.Time
	FinishedAt   time.Time
	WindowDays   int
	Documents    int
	Commodities  int
	Observations int
	Status       string
	Error        *string
}

// AlertRecord captures an emitted price movement alert.
type AlertRecord struct {
	ID             int64
	RunID          uuid.UUID
	Commodity      string
	PriceChangePct decimal.Decimal
	ThresholdPct   decimal.Decimal
	Direction      string
	Channels       []string
	CreatedAt      time.Time
}

// Package broker defines the broker-agnostic abstraction used by every
// agent that needs prices, positions, or order submission, plus the
// concrete domain types it exchanges.
package broker

import (
	"context"
	"time"

	"github.com/aarel/market-watch/internal/events"
	"github.com/aarel/market-watch/internal/universe"
)

// Account is a snapshot of account-level balances.
type Account struct {
	PortfolioValue float64
	Cash           float64
	BuyingPower    float64
	Equity         float64
}

// Position is an open holding in a single symbol.
type Position struct {
	Symbol           string
	Qty              float64
	AvgEntryPrice    float64
	MarketValue      float64
	UnrealizedPL     float64
	UnrealizedPLPct  float64
}

// Snapshot is the latest trade/daily-bar view of a symbol used for
// watchlist screening (top-gainers) and UI ticker display.
type Snapshot struct {
	LatestTradePrice float64
	DailyClose       float64
	DailyVolume      float64
	PrevDailyClose   float64
	PrevDailyVolume  float64
}

// OrderRequest describes a market order to submit. Exactly one of Qty or
// Notional should be set; when both are nil the broker treats it as a
// qty-less request and returns an error.
type OrderRequest struct {
	Symbol        string
	Side          string // "buy" or "sell"
	Qty           *float64
	Notional      *float64
	ClientOrderID string
}

// OrderResult is the broker's response to a submitted order.
type OrderResult struct {
	ID              string
	Symbol          string
	Side            string
	Qty             float64
	FilledAvgPrice  float64
	Notional        float64
	Status          string // "filled", "rejected", ...
	RejectedReason  string
	SubmittedAt     time.Time
	FilledAt        time.Time
	TimeInForce     string
	OrderType       string
}

// Broker is the uniform market/order abstraction every Live/Paper/Sim
// implementation satisfies. Implementations must validate, at
// construction time, that they are bound to a universe they are allowed
// to serve (e.g. a simulated broker must reject LIVE/PAPER).
type Broker interface {
	Universe() universe.Universe

	GetAccount(ctx context.Context) (Account, error)
	GetPosition(ctx context.Context, symbol string) (*Position, error)
	GetPositions(ctx context.Context) ([]Position, error)

	GetBars(ctx context.Context, symbol string, days int) (events.BarSeries, error)
	GetSnapshots(ctx context.Context, symbols []string) (map[string]Snapshot, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)

	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	IsMarketOpen(ctx context.Context) (bool, error)
	GetAssetNames(ctx context.Context, symbols []string) (map[string]string, error)
}

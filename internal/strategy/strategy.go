// Package strategy defines the pluggable signal-generation interface
// SignalAgent delegates to, plus a bundled momentum strategy. Strategy
// formulas themselves are not part of the core contract -- only the shape
// every strategy must satisfy.
package strategy

import "github.com/aarel/market-watch/internal/events"

// Action is the trading action a Strategy recommends.
type Action string

const (
	Buy  Action = "buy"
	Sell Action = "sell"
	Hold Action = "hold"
)

// Position is the minimal position context a Strategy may consult.
type Position struct {
	Quantity         float64
	EntryPrice       float64
	CurrentPrice     float64
	MarketValue      float64
	UnrealizedPnL    float64
	UnrealizedPnLPct float64
}

// Signal is a Strategy's verdict for one symbol on one tick.
type Signal struct {
	Symbol       string
	Action       Action
	Strength     float64
	Reason       string
	CurrentPrice float64
	Metadata     map[string]float64
}

// Strategy analyzes a symbol's recent bars and current position to
// produce a Signal. Implementations must be side-effect free: SignalAgent
// treats a panicking or erroring Strategy as a safe "hold".
type Strategy interface {
	Name() string
	RequiredHistory() int
	Parameters() map[string]float64
	Analyze(symbol string, bars events.BarSeries, currentPrice float64, position *Position) (Signal, error)
}

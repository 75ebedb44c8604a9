// Package events defines the typed event model and pub/sub bus that every
// agent in market-watch communicates through.
package events

import (
	"time"

	"github.com/aarel/market-watch/internal/universe"
)

// Event is satisfied by every event variant. All events must carry
// provenance: illegal states (missing universe or session) are caught by
// the Bus at publish time, not by this interface.
type Event interface {
	Base() *Base
}

// Base carries the provenance every event requires plus the optional
// lineage/validity annotations. Agents receive universe and session_id
// from the Coordinator at construction and must stamp every event they
// create with them.
type Base struct {
	Universe      universe.Universe `json:"universe"`
	SessionID     string            `json:"session_id"`
	DataLineageID string            `json:"data_lineage_id,omitempty"`
	ValidityClass string            `json:"validity_class,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
}

// NewBase constructs a Base stamped with the current UTC time.
func NewBase(u universe.Universe, sessionID, source string) Base {
	return Base{
		Universe:  u,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Source:    source,
	}
}

// Base implements Event for the embedding convenience of variants that
// forget to override it; variants below all define their own.
func (b *Base) Base() *Base { return b }

// MarketDataReady is emitted once a DataAgent tick has fetched market data.
type MarketDataReady struct {
	Base
	Symbols       []string               `json:"symbols"`
	Prices        map[string]float64     `json:"prices"`
	Bars          map[string]BarSeries   `json:"bars"`
	Account       map[string]float64     `json:"account"`
	Positions     []map[string]any       `json:"positions"`
	TopGainers    []map[string]any       `json:"top_gainers"`
	MarketIndices []map[string]any       `json:"market_indices"`
	MarketOpen    bool                   `json:"market_open"`
}

// BarSeries is the columnar OHLCV series attached to MarketDataReady,
// keyed by increasing integer index, mirroring the wire shape consumed by
// SignalAgent strategies.
type BarSeries struct {
	Open   map[int]float64 `json:"open"`
	High   map[int]float64 `json:"high"`
	Low    map[int]float64 `json:"low"`
	Close  map[int]float64 `json:"close"`
	Volume map[int]float64 `json:"volume"`
}

// SignalGenerated is emitted per-symbol by SignalAgent for actionable
// (non-hold) signals.
type SignalGenerated struct {
	Base
	Symbol       string  `json:"symbol"`
	Action       string  `json:"action"` // "buy", "sell", "hold"
	Strength     float64 `json:"strength"`
	Reason       string  `json:"reason"`
	CurrentPrice float64 `json:"current_price"`
	Momentum     float64 `json:"momentum"`
}

// SignalsUpdated is emitted once per DataAgent tick with every symbol's
// signal, including holds.
type SignalsUpdated struct {
	Base
	Signals []map[string]any `json:"signals"`
}

// RiskCheckPassed is emitted when RiskAgent approves a trade.
type RiskCheckPassed struct {
	Base
	Symbol      string  `json:"symbol"`
	Action      string  `json:"action"`
	TradeValue  float64 `json:"trade_value"`
	PositionPct float64 `json:"position_pct"`
	Reason      string  `json:"reason"`
}

// RiskCheckFailed is emitted when RiskAgent rejects a trade.
type RiskCheckFailed struct {
	Base
	Symbol string `json:"symbol"`
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// OrderExecuted is emitted when ExecutionAgent confirms a fill.
type OrderExecuted struct {
	Base
	Symbol         string   `json:"symbol"`
	Action         string   `json:"action"`
	Qty            *float64 `json:"qty,omitempty"`
	Notional       *float64 `json:"notional,omitempty"`
	OrderID        string   `json:"order_id"`
	FilledAvgPrice *float64 `json:"filled_avg_price,omitempty"`
	SubmittedAt    string   `json:"submitted_at,omitempty"`
	FilledAt       string   `json:"filled_at,omitempty"`
	Status         string   `json:"status"`
	TimeInForce    string   `json:"time_in_force"`
	OrderType      string   `json:"order_type"`
}

// OrderFailed is emitted when ExecutionAgent's submission fails.
type OrderFailed struct {
	Base
	Symbol string `json:"symbol"`
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// StopLossTriggered is emitted by MonitorAgent when a position breaches
// its stop-loss threshold.
type StopLossTriggered struct {
	Base
	Symbol        string  `json:"symbol"`
	EntryPrice    float64 `json:"entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	LossPct       float64 `json:"loss_pct"`
	PositionValue float64 `json:"position_value"`
}

// LogEvent broadcasts a generic structured log message.
type LogEvent struct {
	Base
	Level   string `json:"level"` // "info", "warning", "error"
	Message string `json:"message"`
}

func (e *MarketDataReady) Base() *Base   { return &e.Base }
func (e *SignalGenerated) Base() *Base   { return &e.Base }
func (e *SignalsUpdated) Base() *Base    { return &e.Base }
func (e *RiskCheckPassed) Base() *Base   { return &e.Base }
func (e *RiskCheckFailed) Base() *Base   { return &e.Base }
func (e *OrderExecuted) Base() *Base     { return &e.Base }
func (e *OrderFailed) Base() *Base       { return &e.Base }
func (e *StopLossTriggered) Base() *Base { return &e.Base }
func (e *LogEvent) Base() *Base          { return &e.Base }

package agents

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/aarel/market-watch/internal/analytics"
	"github.com/aarel/market-watch/internal/events"
)

// AnalyticsAgent mirrors equity and trade events into the append-only
// analytics store for later review/reporting.
type AnalyticsAgent struct {
	bus   *events.Bus
	store *analytics.Store
	log   zerolog.Logger

	mu           sync.Mutex
	equitySeen   int
	tradesSeen   int
}

// NewAnalyticsAgent constructs an AnalyticsAgent writing through store.
func NewAnalyticsAgent(bus *events.Bus, store *analytics.Store, log zerolog.Logger) *AnalyticsAgent {
	return &AnalyticsAgent{
		bus:   bus,
		store: store,
		log:   log.With().Str("component", "AnalyticsAgent").Logger(),
	}
}

// Subscribe registers the agent's handlers on bus.
func (a *AnalyticsAgent) Subscribe() {
	a.bus.Subscribe(&events.MarketDataReady{}, a.handleMarketData)
	a.bus.Subscribe(&events.OrderExecuted{}, a.handleOrderExecuted)
}

func (a *AnalyticsAgent) handleMarketData(e events.Event) error {
	event := e.(*events.MarketDataReady)
	base := event.Base

	portfolioValue, hasEquity := event.Account["portfolio_value"]
	if !hasEquity {
		return nil
	}

	rec := analytics.Record{
		"universe":        string(base.Universe),
		"session_id":      base.SessionID,
		"timestamp":       base.Timestamp,
		"portfolio_value": portfolioValue,
		"cash":            event.Account["cash"],
		"buying_power":    event.Account["buying_power"],
		"equity":          event.Account["equity"],
		"position_count":  len(event.Positions),
		"market_open":     event.MarketOpen,
	}
	if base.DataLineageID != "" {
		rec["data_lineage_id"] = base.DataLineageID
	}
	if base.ValidityClass != "" {
		rec["validity_class"] = base.ValidityClass
	}

	if err := a.store.RecordEquity(rec); err != nil {
		a.log.Error().Err(err).Msg("failed to record equity snapshot")
		return nil
	}
	a.mu.Lock()
	a.equitySeen++
	a.mu.Unlock()
	return nil
}

func (a *AnalyticsAgent) handleOrderExecuted(e events.Event) error {
	event := e.(*events.OrderExecuted)
	base := event.Base

	var qty, notional, price float64
	if event.Qty != nil {
		qty = *event.Qty
	}
	if event.Notional != nil {
		notional = *event.Notional
	}
	if event.FilledAvgPrice != nil {
		price = *event.FilledAvgPrice
	}
	if notional == 0 && qty != 0 && price != 0 {
		notional = qty * price
	}

	rec := analytics.Record{
		"universe":   string(base.Universe),
		"session_id": base.SessionID,
		"timestamp":  base.Timestamp,
		"symbol":     event.Symbol,
		"side":       event.Action,
		"qty":        qty,
		"notional":   notional,
		"price":      price,
		"order_id":   event.OrderID,
		"status":     event.Status,
	}
	if base.DataLineageID != "" {
		rec["data_lineage_id"] = base.DataLineageID
	}
	if base.ValidityClass != "" {
		rec["validity_class"] = base.ValidityClass
	}

	if err := a.store.RecordTrade(rec); err != nil {
		a.log.Error().Err(err).Msg("failed to record trade")
		return nil
	}
	a.mu.Lock()
	a.tradesSeen++
	a.mu.Unlock()
	return nil
}

// Status reports the agent's record counters for the UI/status endpoint.
func (a *AnalyticsAgent) Status() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]any{
		"equity_records_seen": a.equitySeen,
		"trade_records_seen":  a.tradesSeen,
	}
}

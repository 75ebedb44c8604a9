package agents

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aarel/market-watch/internal/broker"
	"github.com/aarel/market-watch/internal/events"
	"github.com/aarel/market-watch/internal/strategy"
	"github.com/aarel/market-watch/internal/universe"
)

// SignalAgent converts MarketDataReady bars into trading signals by
// delegating to a pluggable Strategy. A panicking or erroring strategy
// degrades to a safe hold rather than taking down the pipeline.
type SignalAgent struct {
	bus      *events.Bus
	brk      broker.Broker
	strategy strategy.Strategy
	log      zerolog.Logger

	mu          sync.Mutex
	lastSignals []strategy.Signal
}

// NewSignalAgent constructs a SignalAgent bound to strat.
func NewSignalAgent(bus *events.Bus, brk broker.Broker, strat strategy.Strategy, log zerolog.Logger) *SignalAgent {
	return &SignalAgent{
		bus:      bus,
		brk:      brk,
		strategy: strat,
		log:      log.With().Str("component", "SignalAgent").Str("strategy", strat.Name()).Logger(),
	}
}

// Subscribe registers the agent's handler on bus.
func (a *SignalAgent) Subscribe() {
	a.bus.Subscribe(&events.MarketDataReady{}, a.handleMarketData)
}

func (a *SignalAgent) handleMarketData(e events.Event) error {
	event := e.(*events.MarketDataReady)

	if !event.MarketOpen && a.bus.Context().Universe() != universe.Simulation {
		return nil
	}

	base := event.Base
	signals := make([]strategy.Signal, 0, len(event.Symbols))

	for _, symbol := range event.Symbols {
		currentPrice, ok := event.Prices[symbol]
		if !ok {
			continue
		}

		bars, ok := event.Bars[symbol]
		if !ok || len(bars.Close) < a.strategy.RequiredHistory() {
			signals = append(signals, a.publishHold(base, symbol, currentPrice,
				fmt.Sprintf("Insufficient history (need %d bars)", a.strategy.RequiredHistory())))
			continue
		}

		position := a.positionFor(symbol)
		signal, err := a.analyze(symbol, bars, currentPrice, position)
		if err != nil {
			signals = append(signals, a.publishHold(base, symbol, currentPrice,
				fmt.Sprintf("Signal generation error: %v", err)))
			continue
		}

		signals = append(signals, signal)
		if signal.Action != strategy.Hold {
			if err := a.bus.Publish(signalEvent(base, signal)); err != nil {
				a.log.Error().Err(err).Str("symbol", symbol).Msg("failed to publish signal")
			}
		}
	}

	a.mu.Lock()
	a.lastSignals = signals
	a.mu.Unlock()

	return a.bus.Publish(&events.SignalsUpdated{
		Base:    events.NewBase(a.bus.Context().Universe(), a.bus.Context().SessionID(), "SignalAgent"),
		Signals: signalSummaries(signals),
	})
}

// analyze recovers from a panicking strategy and reports it as an error,
// since SignalAgent must never let a bad strategy crash the pipeline.
func (a *SignalAgent) analyze(symbol string, bars events.BarSeries, currentPrice float64, position *strategy.Position) (sig strategy.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panic: %v", r)
		}
	}()
	return a.strategy.Analyze(symbol, bars, currentPrice, position)
}

func (a *SignalAgent) publishHold(base events.Base, symbol string, currentPrice float64, reason string) strategy.Signal {
	signal := strategy.Signal{Symbol: symbol, Action: strategy.Hold, Reason: reason, CurrentPrice: currentPrice}
	return signal
}

func (a *SignalAgent) positionFor(symbol string) *strategy.Position {
	pos, err := a.brk.GetPosition(context.Background(), symbol)
	if err != nil || pos == nil {
		return nil
	}
	var pnlPct float64
	if base := pos.AvgEntryPrice * pos.Qty; base > 0 {
		pnlPct = pos.UnrealizedPL / base
	}
	var currentPrice float64
	if pos.Qty != 0 {
		currentPrice = pos.MarketValue / pos.Qty
	}
	return &strategy.Position{
		Quantity:         pos.Qty,
		EntryPrice:       pos.AvgEntryPrice,
		CurrentPrice:     currentPrice,
		MarketValue:      pos.MarketValue,
		UnrealizedPnL:    pos.UnrealizedPL,
		UnrealizedPnLPct: pnlPct,
	}
}

func signalEvent(base events.Base, signal strategy.Signal) *events.SignalGenerated {
	return &events.SignalGenerated{
		Base:         base,
		Symbol:       signal.Symbol,
		Action:       string(signal.Action),
		Strength:     signal.Strength,
		Reason:       signal.Reason,
		CurrentPrice: signal.CurrentPrice,
		Momentum:     signal.Metadata["momentum"],
	}
}

func signalSummaries(signals []strategy.Signal) []map[string]any {
	out := make([]map[string]any, 0, len(signals))
	for _, s := range signals {
		out = append(out, map[string]any{
			"symbol":        s.Symbol,
			"action":        string(s.Action),
			"strength":      s.Strength,
			"reason":        s.Reason,
			"current_price": s.CurrentPrice,
			"momentum":      s.Metadata["momentum"],
		})
	}
	return out
}

// LastSignals returns the most recent per-symbol signal batch.
func (a *SignalAgent) LastSignals() []strategy.Signal {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]strategy.Signal, len(a.lastSignals))
	copy(out, a.lastSignals)
	return out
}

// ActionableCount reports how many of the last signal batch were not holds.
func (a *SignalAgent) ActionableCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, s := range a.lastSignals {
		if s.Action != strategy.Hold {
			n++
		}
	}
	return n
}

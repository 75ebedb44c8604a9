package agents

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarel/market-watch/internal/broker/simbroker"
	"github.com/aarel/market-watch/internal/events"
	"github.com/aarel/market-watch/internal/strategy"
	"github.com/aarel/market-watch/internal/universe"
)

// fixedStrategy always returns the configured signal, or panics when
// panicOn matches the requested symbol.
type fixedStrategy struct {
	signal  strategy.Signal
	history int
	panicOn string
}

func (f *fixedStrategy) Name() string             { return "fixed" }
func (f *fixedStrategy) RequiredHistory() int      { return f.history }
func (f *fixedStrategy) Parameters() map[string]float64 { return nil }
func (f *fixedStrategy) Analyze(symbol string, bars events.BarSeries, currentPrice float64, position *strategy.Position) (strategy.Signal, error) {
	if symbol == f.panicOn {
		panic("boom")
	}
	sig := f.signal
	sig.Symbol = symbol
	sig.CurrentPrice = currentPrice
	return sig, nil
}

func barsOf(closes ...float64) events.BarSeries {
	series := events.BarSeries{Close: make(map[int]float64, len(closes))}
	for i, c := range closes {
		series.Close[i] = c
	}
	return series
}

func TestSignalAgentPublishesActionableSignal(t *testing.T) {
	bus := newTestBus(t)
	brk := simbroker.New(simbroker.Config{Watchlist: []string{"AAA"}, InitialCash: 100000}, zerolog.Nop())
	strat := &fixedStrategy{signal: strategy.Signal{Action: strategy.Buy, Strength: 0.7}, history: 2}

	agent := NewSignalAgent(bus, brk, strat, zerolog.Nop())
	agent.Subscribe()

	var generated *events.SignalGenerated
	bus.Subscribe(&events.SignalGenerated{}, func(e events.Event) error {
		generated = e.(*events.SignalGenerated)
		return nil
	})

	err := bus.Publish(&events.MarketDataReady{
		Base:       events.NewBase(universe.Simulation, bus.Context().SessionID(), "DataAgent"),
		Symbols:    []string{"AAA"},
		Prices:     map[string]float64{"AAA": 42},
		Bars:       map[string]events.BarSeries{"AAA": barsOf(40, 41, 42)},
		MarketOpen: true,
	})
	require.NoError(t, err)
	require.NotNil(t, generated)
	assert.Equal(t, "buy", generated.Action)
	assert.Equal(t, 1, agent.ActionableCount())
}

func TestSignalAgentHoldsOnInsufficientHistory(t *testing.T) {
	bus := newTestBus(t)
	brk := simbroker.New(simbroker.Config{Watchlist: []string{"AAA"}, InitialCash: 100000}, zerolog.Nop())
	strat := &fixedStrategy{signal: strategy.Signal{Action: strategy.Buy}, history: 10}

	agent := NewSignalAgent(bus, brk, strat, zerolog.Nop())
	agent.Subscribe()

	fired := false
	bus.Subscribe(&events.SignalGenerated{}, func(e events.Event) error {
		fired = true
		return nil
	})

	err := bus.Publish(&events.MarketDataReady{
		Base:       events.NewBase(universe.Simulation, bus.Context().SessionID(), "DataAgent"),
		Symbols:    []string{"AAA"},
		Prices:     map[string]float64{"AAA": 42},
		Bars:       map[string]events.BarSeries{"AAA": barsOf(40, 41)},
		MarketOpen: true,
	})
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Equal(t, 0, agent.ActionableCount())
	assert.Equal(t, strategy.Hold, agent.LastSignals()[0].Action)
}

func TestSignalAgentDegradesPanicToHold(t *testing.T) {
	bus := newTestBus(t)
	brk := simbroker.New(simbroker.Config{Watchlist: []string{"AAA"}, InitialCash: 100000}, zerolog.Nop())
	strat := &fixedStrategy{signal: strategy.Signal{Action: strategy.Buy}, history: 2, panicOn: "AAA"}

	agent := NewSignalAgent(bus, brk, strat, zerolog.Nop())
	agent.Subscribe()

	err := bus.Publish(&events.MarketDataReady{
		Base:       events.NewBase(universe.Simulation, bus.Context().SessionID(), "DataAgent"),
		Symbols:    []string{"AAA"},
		Prices:     map[string]float64{"AAA": 42},
		Bars:       map[string]events.BarSeries{"AAA": barsOf(40, 41, 42)},
		MarketOpen: true,
	})
	require.NoError(t, err)
	assert.Equal(t, strategy.Hold, agent.LastSignals()[0].Action)
}

func TestSignalAgentSkipsWhenMarketClosedOutsideSimulation(t *testing.T) {
	ctx, err := universe.NewContext(universe.Paper, "", "")
	require.NoError(t, err)
	bus, err := events.NewBus(ctx, zerolog.Nop())
	require.NoError(t, err)

	brk := simbroker.New(simbroker.Config{Watchlist: []string{"AAA"}, InitialCash: 100000}, zerolog.Nop())
	strat := &fixedStrategy{signal: strategy.Signal{Action: strategy.Buy}, history: 2}

	agent := NewSignalAgent(bus, brk, strat, zerolog.Nop())
	agent.Subscribe()

	fired := false
	bus.SubscribeAll(func(e events.Event) error {
		if _, ok := e.(*events.MarketDataReady); !ok {
			fired = true
		}
		return nil
	})

	err = bus.Publish(&events.MarketDataReady{
		Base:       events.NewBase(universe.Paper, bus.Context().SessionID(), "DataAgent"),
		Symbols:    []string{"AAA"},
		Prices:     map[string]float64{"AAA": 42},
		Bars:       map[string]events.BarSeries{"AAA": barsOf(40, 41, 42)},
		MarketOpen: false,
	})
	require.NoError(t, err)
	assert.False(t, fired)
}

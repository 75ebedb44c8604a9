package agents

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarel/market-watch/internal/broker"
	"github.com/aarel/market-watch/internal/broker/simbroker"
	"github.com/aarel/market-watch/internal/config"
	"github.com/aarel/market-watch/internal/events"
	"github.com/aarel/market-watch/internal/universe"
)

func newTestBus(t *testing.T) *events.Bus {
	t.Helper()
	ctx, err := universe.NewContext(universe.Simulation, "", "")
	require.NoError(t, err)
	bus, err := events.NewBus(ctx, zerolog.Nop())
	require.NoError(t, err)
	return bus
}

func TestExecutionAgentPublishesOrderExecutedOnFill(t *testing.T) {
	bus := newTestBus(t)
	brk := simbroker.New(simbroker.Config{Watchlist: []string{"AAA"}, InitialCash: 100000}, zerolog.Nop())
	cfg := config.DefaultRuntimeConfig()
	cfg.AutoTrade = true
	var cfgMu sync.RWMutex

	exec := NewExecutionAgent(bus, brk, &cfg, &cfgMu, nil, zerolog.Nop())
	exec.Subscribe()

	var executed *events.OrderExecuted
	bus.Subscribe(&events.OrderExecuted{}, func(e events.Event) error {
		executed = e.(*events.OrderExecuted)
		return nil
	})

	err := bus.Publish(&events.RiskCheckPassed{
		Base:       events.NewBase(universe.Simulation, bus.Context().SessionID(), "RiskAgent"),
		Symbol:     "AAA",
		Action:     "buy",
		TradeValue: 1000,
	})
	require.NoError(t, err)

	require.NotNil(t, executed)
	assert.Equal(t, "AAA", executed.Symbol)
	assert.Equal(t, "filled", executed.Status)
	assert.Equal(t, 1, exec.Status()["orders_executed"])
}

func TestExecutionAgentSkipsWhenAutoTradeDisabled(t *testing.T) {
	bus := newTestBus(t)
	brk := simbroker.New(simbroker.Config{Watchlist: []string{"AAA"}, InitialCash: 100000}, zerolog.Nop())
	cfg := config.DefaultRuntimeConfig()
	cfg.AutoTrade = false
	var cfgMu sync.RWMutex

	exec := NewExecutionAgent(bus, brk, &cfg, &cfgMu, nil, zerolog.Nop())
	exec.Subscribe()

	fired := false
	bus.Subscribe(&events.OrderExecuted{}, func(e events.Event) error {
		fired = true
		return nil
	})
	bus.Subscribe(&events.OrderFailed{}, func(e events.Event) error {
		fired = true
		return nil
	})

	err := bus.Publish(&events.RiskCheckPassed{
		Base:       events.NewBase(universe.Simulation, bus.Context().SessionID(), "RiskAgent"),
		Symbol:     "AAA",
		Action:     "buy",
		TradeValue: 1000,
	})
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestExecutionAgentFailsSellWithNoPosition(t *testing.T) {
	bus := newTestBus(t)
	brk := simbroker.New(simbroker.Config{Watchlist: []string{"AAA"}, InitialCash: 100000}, zerolog.Nop())
	cfg := config.DefaultRuntimeConfig()
	cfg.AutoTrade = true
	var cfgMu sync.RWMutex

	exec := NewExecutionAgent(bus, brk, &cfg, &cfgMu, nil, zerolog.Nop())
	exec.Subscribe()

	var failed *events.OrderFailed
	bus.Subscribe(&events.OrderFailed{}, func(e events.Event) error {
		failed = e.(*events.OrderFailed)
		return nil
	})

	err := bus.Publish(&events.RiskCheckPassed{
		Base:   events.NewBase(universe.Simulation, bus.Context().SessionID(), "RiskAgent"),
		Symbol: "AAA",
		Action: "sell",
	})
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.Equal(t, "No position to sell", failed.Reason)
	assert.Equal(t, 1, exec.Status()["orders_failed"])
}

func TestExecutionAgentRejectsOrderExceedingBuyingPower(t *testing.T) {
	bus := newTestBus(t)
	brk := simbroker.New(simbroker.Config{Watchlist: []string{"AAA"}, InitialCash: 10}, zerolog.Nop())
	cfg := config.DefaultRuntimeConfig()
	cfg.AutoTrade = true
	var cfgMu sync.RWMutex

	exec := NewExecutionAgent(bus, brk, &cfg, &cfgMu, nil, zerolog.Nop())
	exec.Subscribe()

	var failed *events.OrderFailed
	bus.Subscribe(&events.OrderFailed{}, func(e events.Event) error {
		failed = e.(*events.OrderFailed)
		return nil
	})

	err := bus.Publish(&events.RiskCheckPassed{
		Base:       events.NewBase(universe.Simulation, bus.Context().SessionID(), "RiskAgent"),
		Symbol:     "AAA",
		Action:     "buy",
		TradeValue: 1_000_000,
	})
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.Equal(t, "insufficient_buying_power", failed.Reason)
}

func TestStatusOrUnknown(t *testing.T) {
	assert.Equal(t, "none", statusOrUnknown(nil))
	assert.Equal(t, "unknown", statusOrUnknown(&broker.OrderResult{}))
	assert.Equal(t, "rejected", statusOrUnknown(&broker.OrderResult{Status: "rejected"}))
}

package agents

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarel/market-watch/internal/broker/simbroker"
	"github.com/aarel/market-watch/internal/config"
	"github.com/aarel/market-watch/internal/events"
	"github.com/aarel/market-watch/internal/universe"
)

func TestRiskAgentApprovesBuyWithinLimits(t *testing.T) {
	t.Chdir(t.TempDir())
	bus := newTestBus(t)
	brk := simbroker.New(simbroker.Config{Watchlist: []string{"AAA"}, InitialCash: 100000}, zerolog.Nop())
	cfg := config.DefaultRuntimeConfig()
	var cfgMu sync.RWMutex

	agent := NewRiskAgent(bus, brk, &cfg, &cfgMu, zerolog.Nop())
	agent.Subscribe()

	var passed *events.RiskCheckPassed
	bus.Subscribe(&events.RiskCheckPassed{}, func(e events.Event) error {
		passed = e.(*events.RiskCheckPassed)
		return nil
	})

	err := bus.Publish(&events.SignalGenerated{
		Base:     events.NewBase(universe.Simulation, bus.Context().SessionID(), "SignalAgent"),
		Symbol:   "AAA",
		Action:   "buy",
		Strength: 0.5,
	})
	require.NoError(t, err)
	require.NotNil(t, passed)
	assert.Equal(t, "AAA", passed.Symbol)
	assert.Equal(t, 1, agent.Status()["checks_passed"])
}

func TestRiskAgentRejectsAtDailyTradeLimit(t *testing.T) {
	t.Chdir(t.TempDir())
	bus := newTestBus(t)
	brk := simbroker.New(simbroker.Config{Watchlist: []string{"AAA"}, InitialCash: 100000}, zerolog.Nop())
	cfg := config.DefaultRuntimeConfig()
	cfg.MaxDailyTrades = 1
	var cfgMu sync.RWMutex

	agent := NewRiskAgent(bus, brk, &cfg, &cfgMu, zerolog.Nop())
	agent.Subscribe()
	agent.IncrementTradeCount()

	var failed *events.RiskCheckFailed
	bus.Subscribe(&events.RiskCheckFailed{}, func(e events.Event) error {
		failed = e.(*events.RiskCheckFailed)
		return nil
	})

	err := bus.Publish(&events.SignalGenerated{
		Base:     events.NewBase(universe.Simulation, bus.Context().SessionID(), "SignalAgent"),
		Symbol:   "AAA",
		Action:   "buy",
		Strength: 0.5,
	})
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.Contains(t, failed.Reason, "Daily trade limit reached")
}

func TestRiskAgentIgnoresHoldSignals(t *testing.T) {
	t.Chdir(t.TempDir())
	bus := newTestBus(t)
	brk := simbroker.New(simbroker.Config{Watchlist: []string{"AAA"}, InitialCash: 100000}, zerolog.Nop())
	cfg := config.DefaultRuntimeConfig()
	var cfgMu sync.RWMutex

	agent := NewRiskAgent(bus, brk, &cfg, &cfgMu, zerolog.Nop())
	agent.Subscribe()

	fired := false
	bus.SubscribeAll(func(e events.Event) error {
		switch e.(type) {
		case *events.RiskCheckPassed, *events.RiskCheckFailed:
			fired = true
		}
		return nil
	})

	err := bus.Publish(&events.SignalGenerated{
		Base:   events.NewBase(universe.Simulation, bus.Context().SessionID(), "SignalAgent"),
		Symbol: "AAA",
		Action: "hold",
	})
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Equal(t, 0, agent.Status()["checks_passed"])
}

func TestRiskAgentRejectsSellWithNoPosition(t *testing.T) {
	t.Chdir(t.TempDir())
	bus := newTestBus(t)
	brk := simbroker.New(simbroker.Config{Watchlist: []string{"AAA"}, InitialCash: 100000}, zerolog.Nop())
	cfg := config.DefaultRuntimeConfig()
	var cfgMu sync.RWMutex

	agent := NewRiskAgent(bus, brk, &cfg, &cfgMu, zerolog.Nop())
	agent.Subscribe()

	var failed *events.RiskCheckFailed
	bus.Subscribe(&events.RiskCheckFailed{}, func(e events.Event) error {
		failed = e.(*events.RiskCheckFailed)
		return nil
	})

	err := bus.Publish(&events.SignalGenerated{
		Base:   events.NewBase(universe.Simulation, bus.Context().SessionID(), "SignalAgent"),
		Symbol: "AAA",
		Action: "sell",
	})
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.Contains(t, failed.Reason, "No position in AAA to sell")
}

package agents

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarel/market-watch/internal/analytics"
	"github.com/aarel/market-watch/internal/events"
	"github.com/aarel/market-watch/internal/universe"
)

func TestAnalyticsAgentRecordsEquityAndTrades(t *testing.T) {
	t.Chdir(t.TempDir())

	bus := newTestBus(t)
	store, err := analytics.New(universe.Simulation, zerolog.Nop())
	require.NoError(t, err)

	agent := NewAnalyticsAgent(bus, store, zerolog.Nop())
	agent.Subscribe()

	require.NoError(t, bus.Publish(&events.MarketDataReady{
		Base:    events.NewBase(universe.Simulation, bus.Context().SessionID(), "DataAgent"),
		Account: map[string]float64{"portfolio_value": 100000, "cash": 50000, "buying_power": 50000, "equity": 100000},
	}))

	price := 42.0
	require.NoError(t, bus.Publish(&events.OrderExecuted{
		Base:           events.NewBase(universe.Simulation, bus.Context().SessionID(), "ExecutionAgent"),
		Symbol:         "AAA",
		Action:         "buy",
		FilledAvgPrice: &price,
		Status:         "filled",
	}))

	status := agent.Status()
	assert.Equal(t, 1, status["equity_records_seen"])
	assert.Equal(t, 1, status["trade_records_seen"])

	equity, err := store.LoadEquity("all")
	require.NoError(t, err)
	require.Len(t, equity, 1)
	assert.Equal(t, 100000.0, equity[0]["portfolio_value"])

	trades, err := store.LoadTrades("all", 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "AAA", trades[0]["symbol"])
}

func TestAnalyticsAgentSkipsMarketDataWithoutPortfolioValue(t *testing.T) {
	t.Chdir(t.TempDir())

	bus := newTestBus(t)
	store, err := analytics.New(universe.Simulation, zerolog.Nop())
	require.NoError(t, err)

	agent := NewAnalyticsAgent(bus, store, zerolog.Nop())
	agent.Subscribe()

	require.NoError(t, bus.Publish(&events.MarketDataReady{
		Base: events.NewBase(universe.Simulation, bus.Context().SessionID(), "DataAgent"),
	}))

	assert.Equal(t, 0, agent.Status()["equity_records_seen"])
}

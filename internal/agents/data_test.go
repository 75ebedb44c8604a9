package agents

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarel/market-watch/internal/broker"
	"github.com/aarel/market-watch/internal/broker/simbroker"
	"github.com/aarel/market-watch/internal/config"
	"github.com/aarel/market-watch/internal/events"
)

func TestDataAgentTickPublishesMarketDataReady(t *testing.T) {
	bus := newTestBus(t)
	brk := simbroker.New(simbroker.Config{Watchlist: []string{"AAA", "BBB"}, InitialCash: 100000}, zerolog.Nop())

	cfg := config.DefaultRuntimeConfig()
	cfg.Watchlist = []string{"AAA", "BBB"}
	cfg.WatchlistMode = "static"
	cfg.MarketIndexSymbols = nil
	cfg.LookbackDays = 5
	var cfgMu sync.RWMutex

	agent := NewDataAgent(bus, brk, &cfg, &cfgMu, nil, zerolog.Nop())

	var ready *events.MarketDataReady
	bus.Subscribe(&events.MarketDataReady{}, func(e events.Event) error {
		ready = e.(*events.MarketDataReady)
		return nil
	})

	require.NoError(t, agent.Tick(context.Background()))
	require.NotNil(t, ready)
	assert.ElementsMatch(t, []string{"AAA", "BBB"}, ready.Symbols)
	assert.Contains(t, ready.Prices, "AAA")
	assert.Contains(t, ready.Bars, "AAA")
	assert.Equal(t, 100000.0, ready.Account["portfolio_value"])
	assert.Nil(t, agent.CachedTopGainers())
}

func TestDataAgentTopGainersModeFallsBackWhenNoneQualify(t *testing.T) {
	bus := newTestBus(t)
	brk := simbroker.New(simbroker.Config{Watchlist: []string{"AAA"}, InitialCash: 100000}, zerolog.Nop())

	cfg := config.DefaultRuntimeConfig()
	cfg.Watchlist = []string{"AAA"}
	cfg.WatchlistMode = "top_gainers"
	cfg.TopGainersMinPrice = 1_000_000 // unreachable, forces fallback
	cfg.MarketIndexSymbols = nil
	cfg.LookbackDays = 5
	var cfgMu sync.RWMutex

	agent := NewDataAgent(bus, brk, &cfg, &cfgMu, nil, zerolog.Nop())

	var ready *events.MarketDataReady
	bus.Subscribe(&events.MarketDataReady{}, func(e events.Event) error {
		ready = e.(*events.MarketDataReady)
		return nil
	})

	require.NoError(t, agent.Tick(context.Background()))
	require.NotNil(t, ready)
	assert.Equal(t, []string{"AAA"}, ready.Symbols)
}

func TestDataAgentUnionsHeldPositionsIntoWatchlist(t *testing.T) {
	bus := newTestBus(t)
	brk := simbroker.New(simbroker.Config{Watchlist: []string{"AAA", "CCC"}, InitialCash: 100000}, zerolog.Nop())
	ctx := context.Background()

	notional := 1000.0
	_, err := brk.SubmitOrder(ctx, broker.OrderRequest{Symbol: "CCC", Side: "buy", Notional: &notional})
	require.NoError(t, err)

	cfg := config.DefaultRuntimeConfig()
	cfg.Watchlist = []string{"AAA"}
	cfg.WatchlistMode = "static"
	cfg.MarketIndexSymbols = nil
	cfg.LookbackDays = 5
	var cfgMu sync.RWMutex

	agent := NewDataAgent(bus, brk, &cfg, &cfgMu, nil, zerolog.Nop())

	var ready *events.MarketDataReady
	bus.Subscribe(&events.MarketDataReady{}, func(e events.Event) error {
		ready = e.(*events.MarketDataReady)
		return nil
	})

	require.NoError(t, agent.Tick(ctx))
	require.NotNil(t, ready)
	assert.ElementsMatch(t, []string{"AAA", "CCC"}, ready.Symbols)
	require.Len(t, ready.Positions, 1)
	assert.Equal(t, "CCC", ready.Positions[0]["symbol"])
}

func TestDataAgentServesBarsFromFreshCache(t *testing.T) {
	t.Chdir(t.TempDir())

	bus := newTestBus(t)
	brk := simbroker.New(simbroker.Config{Watchlist: []string{"AAA"}, InitialCash: 100000}, zerolog.Nop())

	cfg := config.DefaultRuntimeConfig()
	cfg.Watchlist = []string{"AAA"}
	cfg.WatchlistMode = "static"
	cfg.MarketIndexSymbols = nil
	cfg.LookbackDays = 5
	var cfgMu sync.RWMutex

	cache := broker.NewHistoricalCache("historical")
	agent := NewDataAgent(bus, brk, &cfg, &cfgMu, cache, zerolog.Nop())

	var ready *events.MarketDataReady
	bus.Subscribe(&events.MarketDataReady{}, func(e events.Event) error {
		ready = e.(*events.MarketDataReady)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, agent.Tick(ctx))
	require.NotNil(t, ready)
	firstCloses := ready.Bars["AAA"].Close

	require.NoError(t, agent.Tick(ctx))
	secondCloses := ready.Bars["AAA"].Close
	assert.Equal(t, firstCloses, secondCloses)
}

package agents

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarel/market-watch/internal/events"
	"github.com/aarel/market-watch/internal/universe"
)

func TestObservabilityAgentClassifiesAndWritesRecord(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	bus := newTestBus(t)
	obs, err := NewObservabilityAgent(bus, universe.Simulation, "agent_events", 0, 0, zerolog.Nop())
	require.NoError(t, err)
	obs.Subscribe()

	err = bus.Publish(&events.RiskCheckFailed{
		Base:   events.NewBase(universe.Simulation, bus.Context().SessionID(), "RiskAgent"),
		Symbol: "AAA",
		Action: "buy",
		Reason: "Insufficient buying power for trade",
	})
	require.NoError(t, err)

	status := obs.Status()
	assert.Equal(t, 1, status["records_written"])

	path := universe.LogPath(universe.Simulation, "system/agent_events.jsonl")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(data[:len(data)-1], &record))
	assert.Equal(t, "risk_buying_power", record["reason_code"])
}

func TestObservabilityAgentFlagsStaleTicks(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	bus := newTestBus(t)
	obs, err := NewObservabilityAgent(bus, universe.Simulation, "agent_events", 0, 50*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)
	obs.Subscribe()

	require.NoError(t, bus.Publish(&events.MarketDataReady{
		Base: events.NewBase(universe.Simulation, bus.Context().SessionID(), "DataAgent"),
		Bars: map[string]events.BarSeries{},
	}))
	assert.False(t, obs.Status()["tick_stale"].(bool))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	obs.Start(ctx)
	defer obs.Stop()

	require.Eventually(t, func() bool {
		return obs.Status()["tick_stale"].(bool)
	}, 3*time.Second, 10*time.Millisecond)
}

func TestObservabilityAgentStartNoopWhenGapDisabled(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	bus := newTestBus(t)
	obs, err := NewObservabilityAgent(bus, universe.Simulation, "agent_events", 0, 0, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	obs.Start(ctx)
	obs.Stop()
	assert.False(t, obs.Status()["tick_stale"].(bool))
}

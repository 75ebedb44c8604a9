package agents

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarel/market-watch/internal/events"
	"github.com/aarel/market-watch/internal/universe"
)

func TestAlertAgentKeepsBoundedLogAndBroadcasts(t *testing.T) {
	bus := newTestBus(t)
	agent := NewAlertAgent(bus, nil, zerolog.Nop())
	agent.Subscribe()

	var broadcast []map[string]any
	agent.SetBroadcaster(func(entry map[string]any) {
		broadcast = append(broadcast, entry)
	})

	require.NoError(t, bus.Publish(&events.OrderFailed{
		Base:   events.NewBase(universe.Simulation, bus.Context().SessionID(), "ExecutionAgent"),
		Symbol: "AAA",
		Action: "buy",
		Reason: "insufficient_buying_power",
	}))

	logs := agent.GetLogs(10)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0]["message"], "order failed: buy AAA")
	require.Len(t, broadcast, 1)
}

func TestAlertAgentTruncatesToMaxSize(t *testing.T) {
	bus := newTestBus(t)
	agent := NewAlertAgent(bus, nil, zerolog.Nop())
	agent.maxSize = 3
	agent.Subscribe()

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(&events.LogEvent{
			Base:    events.NewBase(universe.Simulation, bus.Context().SessionID(), "Coordinator"),
			Level:   "info",
			Message: "tick",
		}))
	}

	assert.Len(t, agent.GetLogs(0), 3)
}

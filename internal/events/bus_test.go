package events

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarel/market-watch/internal/universe"
)

func newTestBus(t *testing.T, u universe.Universe) *Bus {
	t.Helper()
	ctx, err := universe.NewContext(u, "sess-1", "")
	require.NoError(t, err)
	b, err := NewBus(ctx, zerolog.Nop())
	require.NoError(t, err)
	return b
}

func TestNewBusRejectsNilContext(t *testing.T) {
	_, err := NewBus(nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestPublishRejectsCrossUniverseEvent(t *testing.T) {
	b := newTestBus(t, universe.Simulation)
	before := len(b.RecentEvents(100))

	evt := &LogEvent{Base: Base{Universe: universe.Paper, SessionID: "s"}, Message: "hi"}
	err := b.Publish(evt)

	assert.ErrorIs(t, err, ErrUniverseMismatch)
	assert.Len(t, b.RecentEvents(100), before)
}

func TestPublishRejectsMissingSessionID(t *testing.T) {
	b := newTestBus(t, universe.Simulation)
	evt := &LogEvent{Base: Base{Universe: universe.Simulation, SessionID: ""}, Message: "hi"}
	err := b.Publish(evt)
	assert.ErrorIs(t, err, ErrMissingProvenance)
}

func TestPublishDispatchesTypedThenGlobalInOrder(t *testing.T) {
	b := newTestBus(t, universe.Simulation)
	var order []string

	b.Subscribe(&LogEvent{}, func(e Event) error {
		order = append(order, "typed-1")
		return nil
	})
	b.Subscribe(&LogEvent{}, func(e Event) error {
		order = append(order, "typed-2")
		return nil
	})
	b.SubscribeAll(func(e Event) error {
		order = append(order, "global")
		return nil
	})

	evt := &LogEvent{Base: Base{Universe: universe.Simulation, SessionID: "s"}, Message: "hi"}
	require.NoError(t, b.Publish(evt))

	assert.Equal(t, []string{"typed-1", "typed-2", "global"}, order)
}

func TestPublishContinuesAfterHandlerError(t *testing.T) {
	b := newTestBus(t, universe.Simulation)
	called := false

	b.Subscribe(&LogEvent{}, func(e Event) error {
		return errors.New("boom")
	})
	b.Subscribe(&LogEvent{}, func(e Event) error {
		called = true
		return nil
	})

	evt := &LogEvent{Base: Base{Universe: universe.Simulation, SessionID: "s"}, Message: "hi"}
	require.NoError(t, b.Publish(evt))
	assert.True(t, called)
}

func TestRecentEventsBoundedAt100(t *testing.T) {
	b := newTestBus(t, universe.Simulation)
	for i := 0; i < 150; i++ {
		evt := &LogEvent{Base: Base{Universe: universe.Simulation, SessionID: "s"}, Message: "x"}
		require.NoError(t, b.Publish(evt))
	}
	assert.Len(t, b.RecentEvents(1000), maxLogSize)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus(t, universe.Simulation)
	count := 0
	handler := func(e Event) error {
		count++
		return nil
	}
	b.Subscribe(&LogEvent{}, handler)
	evt := &LogEvent{Base: Base{Universe: universe.Simulation, SessionID: "s"}, Message: "x"}
	require.NoError(t, b.Publish(evt))

	b.Unsubscribe(&LogEvent{}, handler)
	require.NoError(t, b.Publish(evt))

	assert.Equal(t, 1, count)
}

package simbroker

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarel/market-watch/internal/broker"
)

func newTestBroker(t *testing.T) *SimBroker {
	t.Helper()
	return New(Config{
		JiggleFactor: 0.001,
		InitialCash:  100000,
		Watchlist:    []string{"AAPL", "MSFT"},
	}, zerolog.Nop())
}

func TestUniverseIsAlwaysSimulation(t *testing.T) {
	b := newTestBroker(t)
	assert.Equal(t, "simulation", b.Universe().String())
}

func TestSubmitOrderBuyThenSellRoundTrips(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(t)

	qty := 10.0
	res, err := b.SubmitOrder(ctx, broker.OrderRequest{Symbol: "AAPL", Side: "buy", Qty: &qty})
	require.NoError(t, err)
	require.Equal(t, "filled", res.Status)

	pos, err := b.GetPosition(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 10.0, pos.Qty)

	res, err = b.SubmitOrder(ctx, broker.OrderRequest{Symbol: "AAPL", Side: "sell", Qty: &qty})
	require.NoError(t, err)
	assert.Equal(t, "filled", res.Status)

	pos, err = b.GetPosition(ctx, "AAPL")
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestSubmitOrderRejectsInsufficientBuyingPower(t *testing.T) {
	ctx := context.Background()
	b := New(Config{JiggleFactor: 0, InitialCash: 1.0, Watchlist: []string{"AAPL"}}, zerolog.Nop())

	qty := 1000.0
	res, err := b.SubmitOrder(ctx, broker.OrderRequest{Symbol: "AAPL", Side: "buy", Qty: &qty})
	require.NoError(t, err)
	assert.Equal(t, "rejected", res.Status)
	assert.Equal(t, "insufficient_buying_power", res.RejectedReason)
}

func TestSubmitOrderRejectsSellingMoreThanHeld(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(t)

	qty := 100.0
	_, err := b.SubmitOrder(ctx, broker.OrderRequest{Symbol: "AAPL", Side: "sell", Qty: &qty})
	assert.Error(t, err)
}

func TestGetBarsReturnsRequestedLength(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(t)

	series, err := b.GetBars(ctx, "AAPL", 20)
	require.NoError(t, err)
	assert.Len(t, series.Close, 20)
}

func TestGetSnapshotsJigglesPrice(t *testing.T) {
	ctx := context.Background()
	b := New(Config{JiggleFactor: 0.1, InitialCash: 100000, Watchlist: []string{"AAPL"}}, zerolog.Nop())

	snaps, err := b.GetSnapshots(ctx, []string{"AAPL"})
	require.NoError(t, err)
	require.Contains(t, snaps, "AAPL")
	assert.Greater(t, snaps["AAPL"].LatestTradePrice, 0.0)
}

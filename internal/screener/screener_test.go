package screener

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aarel/market-watch/internal/broker"
)

func TestComputeTopGainersOrdersByChangeDesc(t *testing.T) {
	snapshots := map[string]broker.Snapshot{
		"AAA": {LatestTradePrice: 110, PrevDailyClose: 100, DailyVolume: 2_000_000},
		"BBB": {LatestTradePrice: 130, PrevDailyClose: 100, DailyVolume: 2_000_000},
		"CCC": {LatestTradePrice: 105, PrevDailyClose: 100, DailyVolume: 2_000_000},
	}

	gainers := ComputeTopGainers(snapshots, 5, 1_000_000, 3)
	assert := assert.New(t)
	assert.Len(gainers, 3)
	assert.Equal("BBB", gainers[0].Symbol)
	assert.Equal("AAA", gainers[1].Symbol)
	assert.Equal("CCC", gainers[2].Symbol)
}

func TestComputeTopGainersFiltersByMinPrice(t *testing.T) {
	snapshots := map[string]broker.Snapshot{
		"PENNY": {LatestTradePrice: 1, PrevDailyClose: 0.9, DailyVolume: 5_000_000},
		"REAL":  {LatestTradePrice: 50, PrevDailyClose: 45, DailyVolume: 5_000_000},
	}
	gainers := ComputeTopGainers(snapshots, 5, 1_000_000, 5)
	assert.Len(t, gainers, 1)
	assert.Equal(t, "REAL", gainers[0].Symbol)
}

func TestComputeTopGainersBackfillsFromLowVolume(t *testing.T) {
	snapshots := map[string]broker.Snapshot{
		"HIVOL": {LatestTradePrice: 110, PrevDailyClose: 100, DailyVolume: 2_000_000},
		"LOVOL": {LatestTradePrice: 120, PrevDailyClose: 100, DailyVolume: 10_000},
	}
	gainers := ComputeTopGainers(snapshots, 5, 1_000_000, 2)
	assert.Len(t, gainers, 2)
	assert.Equal(t, "HIVOL", gainers[0].Symbol)
	assert.Equal(t, "LOVOL", gainers[1].Symbol)
}

func TestComputeTopGainersSkipsMissingPrevClose(t *testing.T) {
	snapshots := map[string]broker.Snapshot{
		"NOPREV": {LatestTradePrice: 110, DailyVolume: 2_000_000},
	}
	gainers := ComputeTopGainers(snapshots, 5, 1_000_000, 5)
	assert.Empty(t, gainers)
}

package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarel/market-watch/internal/events"
)

func seriesOf(closes []float64) events.BarSeries {
	s := events.BarSeries{Close: map[int]float64{}}
	for i, c := range closes {
		s.Close[i] = c
	}
	return s
}

func TestMomentumStrategyBuysOnStrongUptrend(t *testing.T) {
	m := NewMomentumStrategy(MomentumConfig{LookbackDays: 5, MomentumThreshold: 0.02, SellThreshold: -0.01})

	closes := []float64{100, 101, 102, 103, 104, 110}
	sig, err := m.Analyze("AAPL", seriesOf(closes), 110, nil)
	require.NoError(t, err)
	assert.Equal(t, Buy, sig.Action)
}

func TestMomentumStrategyHoldsInNeutralBand(t *testing.T) {
	m := NewMomentumStrategy(MomentumConfig{LookbackDays: 5, MomentumThreshold: 0.02, SellThreshold: -0.01})

	closes := []float64{100, 100.1, 100.2, 100.1, 100.0, 100.2}
	sig, err := m.Analyze("AAPL", seriesOf(closes), 100.2, nil)
	require.NoError(t, err)
	assert.Equal(t, Hold, sig.Action)
}

func TestMomentumStrategySellsOnReversalWithPosition(t *testing.T) {
	m := NewMomentumStrategy(MomentumConfig{LookbackDays: 5, MomentumThreshold: 0.02, SellThreshold: -0.01})

	closes := []float64{100, 99, 98, 97, 96, 90}
	pos := &Position{Quantity: 10, EntryPrice: 100}
	sig, err := m.Analyze("AAPL", seriesOf(closes), 90, pos)
	require.NoError(t, err)
	assert.Equal(t, Sell, sig.Action)
}

func TestMomentumStrategyErrorsOnInsufficientHistory(t *testing.T) {
	m := NewMomentumStrategy(MomentumConfig{LookbackDays: 20})
	_, err := m.Analyze("AAPL", seriesOf([]float64{100, 101}), 101, nil)
	assert.Error(t, err)
}

package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerTripsOnDailyLoss(t *testing.T) {
	cb := NewCircuitBreaker(0.03, 0.15, "America/New_York")

	day1 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	active, _ := cb.Update(100000, day1)
	require.False(t, active)

	active, reason := cb.Update(96000, day1.Add(time.Hour))
	assert.True(t, active)
	assert.Contains(t, reason, "Daily loss limit")
}

func TestCircuitBreakerTripsOnDrawdown(t *testing.T) {
	cb := NewCircuitBreaker(0.50, 0.10, "America/New_York")

	day1 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	cb.Update(100000, day1)
	cb.Update(110000, day1.Add(time.Hour)) // raises peak to 110000

	active, reason := cb.Update(98000, day1.Add(2*time.Hour)) // drawdown from peak ~10.9%
	assert.True(t, active)
	assert.Contains(t, reason, "drawdown")
}

func TestCircuitBreakerResetsOnDateRoll(t *testing.T) {
	cb := NewCircuitBreaker(0.03, 0.15, "America/New_York")

	day1 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	cb.Update(100000, day1)
	active, _ := cb.Update(90000, day1.Add(time.Hour))
	require.True(t, active)

	day2 := time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)
	active, reason := cb.Update(90000, day2)
	assert.False(t, active)
	assert.Empty(t, reason)
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(0.03, 0.15, "America/New_York")
	day1 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	cb.Update(100000, day1)
	cb.Update(90000, day1.Add(time.Hour))
	require.True(t, cb.Status().Active)

	cb.Reset()
	assert.False(t, cb.Status().Active)
	assert.Empty(t, cb.Status().LastDate)
}

func TestPositionSizerScalesByStrength(t *testing.T) {
	s := NewPositionSizer(true, 0.0, 1.0)
	value := s.CalculateTradeValue(0.5, 100000, 50000, 0.2)
	assert.InDelta(t, 10000.0, value, 0.001)
}

func TestPositionSizerCapsAtBuyingPower(t *testing.T) {
	s := NewPositionSizer(false, 0.0, 1.0)
	value := s.CalculateTradeValue(1.0, 100000, 1000, 0.5)
	assert.Equal(t, 1000.0, value)
}

func TestPositionSizerNeverNegative(t *testing.T) {
	s := NewPositionSizer(true, 0.0, 1.0)
	value := s.CalculateTradeValue(-5, 100000, 50000, 0.2)
	assert.GreaterOrEqual(t, value, 0.0)
}

package reasoncode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aarel/market-watch/internal/events"
)

func TestClassifyRiskCheckFailedReasons(t *testing.T) {
	code, outcome := Classify(&events.RiskCheckFailed{Reason: "Insufficient buying power for trade"})
	assert.Equal(t, "risk_buying_power", code)
	assert.Equal(t, Warn, outcome)
}

func TestClassifySignalGeneratedHoldInsufficientHistory(t *testing.T) {
	code, outcome := Classify(&events.SignalGenerated{Action: "hold", Reason: "Insufficient history (need 20 bars)"})
	assert.Equal(t, "signal_insufficient_history", code)
	assert.Equal(t, Info, outcome)
}

func TestClassifyOrderExecuted(t *testing.T) {
	code, outcome := Classify(&events.OrderExecuted{})
	assert.Equal(t, "order_executed", code)
	assert.Equal(t, Success, outcome)
}

func TestClassifyUnknownEvent(t *testing.T) {
	code, _ := Classify(&events.Base{})
	assert.Equal(t, "unknown_event", code)
}

func TestTickExpectationStaleness(t *testing.T) {
	te := NewTickExpectation(5 * time.Minute)
	base := time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)

	assert.False(t, te.Stale(base))
	te.Observe(base)
	assert.False(t, te.Stale(base.Add(2*time.Minute)))
	assert.True(t, te.Stale(base.Add(10*time.Minute)))
}

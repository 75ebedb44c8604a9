// Package risk implements the pure risk primitives shared by RiskAgent:
// the per-day equity circuit breaker and the signal-strength position
// sizer.
package risk

import (
	"fmt"
	"time"
)

// CircuitBreakerState is the breaker's persisted state, exposed read-only
// via Status.
type CircuitBreakerState struct {
	Active            bool
	Reason            string
	ActivatedAt       string
	DailyStartEquity  *float64
	PeakEquity        *float64
	LastDate          string
}

// CircuitBreaker tracks portfolio drawdowns per market-calendar day and
// halts trading when either limit is breached. Activation is sticky
// (stays active) until the market date rolls over or Reset is called.
type CircuitBreaker struct {
	dailyLossLimitPct float64
	maxDrawdownPct    float64
	marketTimezone    *time.Location
	state             CircuitBreakerState
}

// NewCircuitBreaker constructs a breaker with the given daily-loss and
// max-drawdown limits (as fractions, e.g. 0.03 for 3%), evaluated against
// the given market timezone's calendar day.
func NewCircuitBreaker(dailyLossLimitPct, maxDrawdownPct float64, marketTimezone string) *CircuitBreaker {
	loc, err := time.LoadLocation(marketTimezone)
	if err != nil {
		loc = time.Local
	}
	return &CircuitBreaker{
		dailyLossLimitPct: dailyLossLimitPct,
		maxDrawdownPct:    maxDrawdownPct,
		marketTimezone:    loc,
	}
}

// Update feeds the latest equity reading into the breaker and returns
// (active, reason). now defaults to the current time in the breaker's
// market timezone when zero.
func (cb *CircuitBreaker) Update(equity float64, now time.Time) (bool, string) {
	if equity <= 0 {
		return cb.state.Active, cb.state.Reason
	}

	timestamp := now
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	timestamp = timestamp.In(cb.marketTimezone)
	today := timestamp.Format("2006-01-02")

	if cb.state.LastDate != today {
		cb.state.LastDate = today
		eq := equity
		cb.state.DailyStartEquity = &eq
		peak := equity
		cb.state.PeakEquity = &peak
		cb.state.Active = false
		cb.state.Reason = ""
		cb.state.ActivatedAt = ""
	}

	if cb.state.PeakEquity == nil || equity > *cb.state.PeakEquity {
		peak := equity
		cb.state.PeakEquity = &peak
	}

	dailyLoss := pctChange(equity, cb.state.DailyStartEquity)
	drawdown := drawdownPct(equity, cb.state.PeakEquity)

	if cb.dailyLossLimitPct > 0 && dailyLoss <= -cb.dailyLossLimitPct {
		return cb.activate(fmt.Sprintf("Daily loss limit hit (%.1f%% <= -%.1f%%)", dailyLoss*100, cb.dailyLossLimitPct*100), timestamp)
	}
	if cb.maxDrawdownPct > 0 && drawdown >= cb.maxDrawdownPct {
		return cb.activate(fmt.Sprintf("Max drawdown limit hit (%.1f%% >= %.1f%%)", drawdown*100, cb.maxDrawdownPct*100), timestamp)
	}

	return cb.state.Active, cb.state.Reason
}

func (cb *CircuitBreaker) activate(reason string, timestamp time.Time) (bool, string) {
	cb.state.Active = true
	cb.state.Reason = reason
	cb.state.ActivatedAt = timestamp.Format(time.RFC3339)
	return true, reason
}

// Reset clears breaker state entirely (not just trip status), matching
// the behavior a fresh CircuitBreaker would have.
func (cb *CircuitBreaker) Reset() {
	cb.state = CircuitBreakerState{}
}

// Status returns the breaker's current state for UI or logging.
func (cb *CircuitBreaker) Status() CircuitBreakerState {
	return cb.state
}

func pctChange(value float64, base *float64) float64 {
	if base == nil || *base == 0 {
		return 0.0
	}
	return (value - *base) / *base
}

func drawdownPct(value float64, peak *float64) float64 {
	if peak == nil || *peak == 0 {
		return 0.0
	}
	return (*peak - value) / *peak
}

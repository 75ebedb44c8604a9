// Package reasoncode classifies events into stable (reason_code, outcome)
// pairs for the observability layer, independent of how those pairs are
// logged or stored.
package reasoncode

import (
	"strings"

	"github.com/aarel/market-watch/internal/events"
)

// Outcome is the coarse classification of an event for alerting/metrics.
type Outcome string

const (
	Info    Outcome = "info"
	Success Outcome = "success"
	Warn    Outcome = "warn"
	Fail    Outcome = "fail"
)

// Classify returns a stable reason code and outcome for event.
func Classify(event events.Event) (string, Outcome) {
	switch e := event.(type) {
	case *events.MarketDataReady:
		return "market_data_ready", Info

	case *events.SignalsUpdated:
		return "signals_updated", Info

	case *events.SignalGenerated:
		reason := strings.ToLower(e.Reason)
		if e.Action == "hold" {
			if strings.Contains(reason, "insufficient") {
				return "signal_insufficient_history", Info
			}
			if strings.Contains(reason, "error") {
				return "signal_error", Warn
			}
			return "signal_hold", Info
		}
		if strings.Contains(reason, "error") {
			return "signal_error", Warn
		}
		return "signal_" + e.Action, Success

	case *events.RiskCheckPassed:
		return "risk_passed", Success

	case *events.RiskCheckFailed:
		reason := strings.ToLower(e.Reason)
		switch {
		case strings.Contains(reason, "daily trade limit"):
			return "risk_daily_limit", Warn
		case strings.Contains(reason, "trade value") && strings.Contains(reason, "minimum"):
			return "risk_min_trade", Warn
		case strings.Contains(reason, "insufficient buying power"):
			return "risk_buying_power", Warn
		case strings.Contains(reason, "position lookup failed"):
			return "risk_position_lookup_failed", Fail
		case strings.Contains(reason, "no position"):
			return "risk_no_position", Warn
		}
		return "risk_rejected", Warn

	case *events.OrderExecuted:
		return "order_executed", Success

	case *events.OrderFailed:
		reason := strings.ToLower(e.Reason)
		if strings.Contains(reason, "position not found") {
			return "order_no_position", Warn
		}
		if strings.Contains(reason, "returned none") {
			return "order_no_response", Fail
		}
		return "order_failed", Fail

	case *events.StopLossTriggered:
		return "stop_loss_triggered", Warn
	}

	return "unknown_event", Info
}

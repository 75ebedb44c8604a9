package agents

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aarel/market-watch/internal/events"
	"github.com/aarel/market-watch/internal/reasoncode"
)

const defaultAlertLogSize = 200

// Broadcaster fans an alert entry out to connected UI clients (e.g. over
// a websocket). It is injected so AlertAgent stays decoupled from the
// transport.
type Broadcaster func(entry map[string]any)

// AlertAgent turns every event into a short human-readable log line, kept
// in a bounded in-memory ring for the status/log endpoint and optionally
// pushed to a live broadcaster.
type AlertAgent struct {
	bus         *events.Bus
	broadcaster Broadcaster
	log         zerolog.Logger

	mu      sync.Mutex
	entries []map[string]any
	maxSize int
}

// NewAlertAgent constructs an AlertAgent. broadcaster may be nil if no
// live transport is wired yet.
func NewAlertAgent(bus *events.Bus, broadcaster Broadcaster, log zerolog.Logger) *AlertAgent {
	return &AlertAgent{
		bus:         bus,
		broadcaster: broadcaster,
		log:         log.With().Str("component", "AlertAgent").Logger(),
		maxSize:     defaultAlertLogSize,
	}
}

// SetBroadcaster wires (or rewires) the live fan-out callback.
func (a *AlertAgent) SetBroadcaster(b Broadcaster) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.broadcaster = b
}

// Subscribe registers the agent to receive every event on the bus.
func (a *AlertAgent) Subscribe() {
	a.bus.SubscribeAll(a.handleEvent)
}

func (a *AlertAgent) handleEvent(e events.Event) error {
	reasonCode, outcome := reasoncode.Classify(e)
	base := e.Base()

	entry := map[string]any{
		"reason_code": reasonCode,
		"outcome":     string(outcome),
		"source":      base.Source,
		"timestamp":   base.Timestamp,
		"message":     describe(e, reasonCode),
	}

	a.mu.Lock()
	a.entries = append(a.entries, entry)
	if len(a.entries) > a.maxSize {
		a.entries = a.entries[len(a.entries)-a.maxSize:]
	}
	broadcaster := a.broadcaster
	a.mu.Unlock()

	if broadcaster != nil {
		broadcaster(entry)
	}
	return nil
}

// describe builds a short human-readable line for an event, falling back
// to its reason code when there's nothing more specific to say.
func describe(e events.Event, reasonCode string) string {
	switch ev := e.(type) {
	case *events.SignalGenerated:
		return fmt.Sprintf("%s signal on %s (strength %.2f): %s", ev.Action, ev.Symbol, ev.Strength, ev.Reason)
	case *events.RiskCheckPassed:
		return fmt.Sprintf("risk approved %s %s: %s", ev.Action, ev.Symbol, ev.Reason)
	case *events.RiskCheckFailed:
		return fmt.Sprintf("risk rejected %s %s: %s", ev.Action, ev.Symbol, ev.Reason)
	case *events.OrderExecuted:
		return fmt.Sprintf("order filled: %s %s (%s)", ev.Action, ev.Symbol, ev.Status)
	case *events.OrderFailed:
		return fmt.Sprintf("order failed: %s %s: %s", ev.Action, ev.Symbol, ev.Reason)
	case *events.StopLossTriggered:
		return fmt.Sprintf("stop loss triggered on %s (%.1f%% loss)", ev.Symbol, ev.LossPct*100)
	case *events.LogEvent:
		return ev.Message
	}
	return reasonCode
}

// GetLogs returns up to count of the most recent log entries, newest last.
func (a *AlertAgent) GetLogs(count int) []map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	if count <= 0 || count > len(a.entries) {
		count = len(a.entries)
	}
	out := make([]map[string]any, count)
	copy(out, a.entries[len(a.entries)-count:])
	return out
}

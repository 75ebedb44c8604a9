package agents

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aarel/market-watch/internal/broker"
	"github.com/aarel/market-watch/internal/config"
	"github.com/aarel/market-watch/internal/events"
)

// TradeCounter is the back-channel RiskAgent exposes so ExecutionAgent can
// credit a fill against the daily trade limit only after it actually goes
// through.
type TradeCounter interface {
	IncrementTradeCount()
}

// ExecutionAgent is the only agent allowed to submit orders. It gates on
// auto_trade, builds a deterministic client order ID, and translates
// broker responses into OrderExecuted/OrderFailed.
type ExecutionAgent struct {
	bus   *events.Bus
	brk   broker.Broker
	cfg   *config.RuntimeConfig
	cfgMu *sync.RWMutex
	risk  TradeCounter
	log   zerolog.Logger

	mu      sync.Mutex
	ordersExecuted int
	ordersFailed   int
}

// NewExecutionAgent constructs an ExecutionAgent. risk may be nil in tests
// that don't care about trade-count bookkeeping.
func NewExecutionAgent(bus *events.Bus, brk broker.Broker, cfg *config.RuntimeConfig, cfgMu *sync.RWMutex, risk TradeCounter, log zerolog.Logger) *ExecutionAgent {
	return &ExecutionAgent{
		bus:   bus,
		brk:   brk,
		cfg:   cfg,
		cfgMu: cfgMu,
		risk:  risk,
		log:   log.With().Str("component", "ExecutionAgent").Logger(),
	}
}

// Subscribe registers the agent's handler on bus.
func (a *ExecutionAgent) Subscribe() {
	a.bus.Subscribe(&events.RiskCheckPassed{}, a.handleRiskPassed)
}

func (a *ExecutionAgent) autoTrade() bool {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg.AutoTrade
}

func (a *ExecutionAgent) handleRiskPassed(e events.Event) error {
	approval := e.(*events.RiskCheckPassed)

	if !a.autoTrade() {
		a.log.Debug().Str("symbol", approval.Symbol).Msg("auto_trade disabled; skipping approved trade")
		return nil
	}

	ctx := context.Background()
	clientOrderID := buildClientOrderID("auto", approval.Symbol)

	req := broker.OrderRequest{
		Symbol:        approval.Symbol,
		Side:          approval.Action,
		ClientOrderID: clientOrderID,
	}

	if approval.Action == "buy" {
		notional := math.Round(approval.TradeValue*100) / 100
		req.Notional = &notional
	} else {
		position, err := a.brk.GetPosition(ctx, approval.Symbol)
		if err != nil || position == nil || position.Qty <= 0 {
			return a.fail(approval, "No position to sell")
		}
		qty := position.Qty
		req.Qty = &qty
	}

	result, err := a.brk.SubmitOrder(ctx, req)
	if err != nil {
		return a.fail(approval, err.Error())
	}
	if result == nil || result.Status != "filled" {
		reason := fmt.Sprintf("Order not filled (status=%s)", statusOrUnknown(result))
		if result != nil && result.RejectedReason != "" {
			reason = result.RejectedReason
		}
		return a.fail(approval, reason)
	}

	publishErr := a.confirm(approval, req, result)
	if a.risk != nil {
		a.risk.IncrementTradeCount()
	}
	return publishErr
}

// ExecuteManualTrade submits an order outside the signal/risk pipeline
// (operator-initiated), sharing the same submission and event path. For a
// sell given in notional terms, qty is derived from amount/current_price,
// falling back to the full position when the price lookup fails.
func (a *ExecutionAgent) ExecuteManualTrade(ctx context.Context, symbol, action string, amount, qty *float64) (*broker.OrderResult, error) {
	req := broker.OrderRequest{
		Symbol:        symbol,
		Side:          action,
		ClientOrderID: buildClientOrderID("manual", symbol),
	}
	switch {
	case action == "sell" && amount != nil:
		sellQty := a.qtyFromNotional(ctx, symbol, *amount)
		req.Qty = &sellQty
	case amount != nil:
		notional := math.Round(*amount*100) / 100
		req.Notional = &notional
	case qty != nil:
		req.Qty = qty
	default:
		return nil, fmt.Errorf("execution: manual trade requires amount or qty")
	}

	manualApproval := &events.RiskCheckPassed{
		Base:   events.NewBase(a.bus.Context().Universe(), a.bus.Context().SessionID(), "ExecutionAgent"),
		Symbol: symbol, Action: action,
	}

	result, err := a.brk.SubmitOrder(ctx, req)
	if err != nil {
		_ = a.fail(manualApproval, err.Error())
		return nil, err
	}
	if result == nil || result.Status != "filled" {
		reason := fmt.Sprintf("Order not filled (status=%s)", statusOrUnknown(result))
		if result != nil && result.RejectedReason != "" {
			reason = result.RejectedReason
		}
		_ = a.fail(manualApproval, reason)
		return result, nil
	}

	if err := a.confirm(manualApproval, req, result); err != nil {
		a.log.Error().Err(err).Str("symbol", symbol).Msg("failed to publish manual OrderExecuted")
	}
	if a.risk != nil {
		a.risk.IncrementTradeCount()
	}
	return result, nil
}

// qtyFromNotional converts a notional sell amount into a share quantity
// using the current price, falling back to the full open position if the
// price lookup fails.
func (a *ExecutionAgent) qtyFromNotional(ctx context.Context, symbol string, amount float64) float64 {
	price, err := a.brk.GetCurrentPrice(ctx, symbol)
	if err == nil && price > 0 {
		return amount / price
	}
	position, err := a.brk.GetPosition(ctx, symbol)
	if err == nil && position != nil {
		return position.Qty
	}
	return 0
}

func (a *ExecutionAgent) confirm(approval *events.RiskCheckPassed, req broker.OrderRequest, result *broker.OrderResult) error {
	a.mu.Lock()
	a.ordersExecuted++
	a.mu.Unlock()

	filledPrice := result.FilledAvgPrice
	filledPricePtr := &filledPrice
	if filledPrice == 0 {
		filledPricePtr = backfillPrice(req, result)
	}

	event := &events.OrderExecuted{
		Base:           events.NewBase(a.bus.Context().Universe(), a.bus.Context().SessionID(), "ExecutionAgent"),
		Symbol:         approval.Symbol,
		Action:         approval.Action,
		OrderID:        result.ID,
		FilledAvgPrice: filledPricePtr,
		Status:         result.Status,
		TimeInForce:    result.TimeInForce,
		OrderType:      result.OrderType,
	}
	if req.Qty != nil {
		event.Qty = req.Qty
	} else if result.Qty != 0 {
		q := result.Qty
		event.Qty = &q
	}
	if req.Notional != nil {
		event.Notional = req.Notional
	} else if result.Notional != 0 {
		n := result.Notional
		event.Notional = &n
	}
	if !result.SubmittedAt.IsZero() {
		event.SubmittedAt = result.SubmittedAt.Format(time.RFC3339)
	}
	if !result.FilledAt.IsZero() {
		event.FilledAt = result.FilledAt.Format(time.RFC3339)
	}

	return a.bus.Publish(event)
}

// backfillPrice derives a fill price from notional/qty when the broker
// doesn't report FilledAvgPrice directly.
func backfillPrice(req broker.OrderRequest, result *broker.OrderResult) *float64 {
	qty := result.Qty
	if qty == 0 && req.Qty != nil {
		qty = *req.Qty
	}
	notional := result.Notional
	if notional == 0 && req.Notional != nil {
		notional = *req.Notional
	}
	if qty == 0 {
		return nil
	}
	price := notional / qty
	if price <= 0 {
		return nil
	}
	return &price
}

func (a *ExecutionAgent) fail(approval *events.RiskCheckPassed, reason string) error {
	a.mu.Lock()
	a.ordersFailed++
	a.mu.Unlock()

	return a.bus.Publish(&events.OrderFailed{
		Base:   events.NewBase(a.bus.Context().Universe(), a.bus.Context().SessionID(), "ExecutionAgent"),
		Symbol: approval.Symbol,
		Action: approval.Action,
		Reason: reason,
	})
}

func statusOrUnknown(result *broker.OrderResult) string {
	if result == nil {
		return "none"
	}
	if result.Status == "" {
		return "unknown"
	}
	return result.Status
}

var clientOrderSeq atomic.Uint64

// buildClientOrderID formats "<prefix>-<symbol>-<unix_ms>-<seq>", where seq
// is a process-wide monotonic counter appended to every ID so that two
// orders submitted within the same millisecond still differ.
func buildClientOrderID(prefix, symbol string) string {
	seq := clientOrderSeq.Add(1)
	return fmt.Sprintf("%s-%s-%d-%d", prefix, symbol, time.Now().UnixMilli(), seq)
}

// Status reports the agent's order counters for the UI/status endpoint.
func (a *ExecutionAgent) Status() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]any{
		"orders_executed": a.ordersExecuted,
		"orders_failed":   a.ordersFailed,
	}
}

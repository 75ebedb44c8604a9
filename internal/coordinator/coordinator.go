// Package coordinator wires the fixed agent set around one EventBus,
// Broker, and AnalyticsStore for a single universe-bound session, and
// implements the destructive universe-transition protocol that replaces
// that whole wiring rather than toggling it in place.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aarel/market-watch/internal/agents"
	"github.com/aarel/market-watch/internal/analytics"
	"github.com/aarel/market-watch/internal/broker"
	"github.com/aarel/market-watch/internal/config"
	"github.com/aarel/market-watch/internal/events"
	"github.com/aarel/market-watch/internal/strategy"
	"github.com/aarel/market-watch/internal/universe"
)

// Coordinator owns the EventBus, the broker, the analytics store, and
// every agent for exactly one universe-bound session. It never infers its
// universe implicitly: every constructor path requires one explicitly.
type Coordinator struct {
	ctx   *universe.Context
	bus   *events.Bus
	brk   broker.Broker
	store *analytics.Store

	cfg   config.RuntimeConfig
	cfgMu sync.RWMutex

	data          *agents.DataAgent
	signal        *agents.SignalAgent
	risk          *agents.RiskAgent
	execution     *agents.ExecutionAgent
	monitor       *agents.MonitorAgent
	observability *agents.ObservabilityAgent
	analyticsAgt  *agents.AnalyticsAgent
	alert         *agents.AlertAgent
	replay        *agents.ReplayRecorderAgent

	log zerolog.Logger

	mu      sync.Mutex
	running bool
}

// New constructs a Coordinator bound to ctx. Every agent is constructed
// here and wired only to the bus and broker, never to the Coordinator
// itself, avoiding a cyclic dependency.
func New(ctx *universe.Context, brk broker.Broker, store *analytics.Store, cfg config.RuntimeConfig, strat strategy.Strategy, log zerolog.Logger) (*Coordinator, error) {
	if ctx == nil {
		return nil, fmt.Errorf("coordinator: requires an explicit universe.Context")
	}
	if brk.Universe() != ctx.Universe() {
		return nil, fmt.Errorf("coordinator: broker universe %s does not match context universe %s", brk.Universe(), ctx.Universe())
	}
	if store.Universe() != ctx.Universe() {
		return nil, fmt.Errorf("coordinator: analytics store universe %s does not match context universe %s", store.Universe(), ctx.Universe())
	}

	bus, err := events.NewBus(ctx, log)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		ctx:   ctx,
		bus:   bus,
		brk:   brk,
		store: store,
		cfg:   cfg,
		log:   log.With().Str("component", "Coordinator").Str("universe", string(ctx.Universe())).Logger(),
	}

	var historicalCache *broker.HistoricalCache
	if cfg.HistoricalCacheDir != "" {
		historicalCache = broker.NewHistoricalCache(cfg.HistoricalCacheDir)
	}
	c.data = agents.NewDataAgent(bus, brk, &c.cfg, &c.cfgMu, historicalCache, log)
	c.signal = agents.NewSignalAgent(bus, brk, strat, log)
	c.risk = agents.NewRiskAgent(bus, brk, &c.cfg, &c.cfgMu, log)
	c.execution = agents.NewExecutionAgent(bus, brk, &c.cfg, &c.cfgMu, c.risk, log)
	c.monitor = agents.NewMonitorAgent(bus, brk, &c.cfg, &c.cfgMu, log)
	c.analyticsAgt = agents.NewAnalyticsAgent(bus, store, log)
	c.alert = agents.NewAlertAgent(bus, nil, log)
	c.replay = agents.NewReplayRecorderAgent(bus, &c.cfg, &c.cfgMu, log)

	obs, err := agents.NewObservabilityAgent(bus, ctx.Universe(), cfg.ObservabilityLogPath, cfg.ObservabilityMaxLogMB, tickExpectationGap(cfg), log)
	if err != nil {
		return nil, fmt.Errorf("coordinator: construct observability agent: %w", err)
	}
	c.observability = obs

	bus.Subscribe(&events.StopLossTriggered{}, c.handleStopLoss)

	return c, nil
}

// tickExpectationGap derives the MarketDataReady staleness threshold from
// the configured trade interval: three missed ticks in a row is treated as
// an expectation breach, with a 10-minute floor so a very tight trade
// interval doesn't make the check noisy.
func tickExpectationGap(cfg config.RuntimeConfig) time.Duration {
	interval := time.Duration(cfg.TradeIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	gap := 3 * interval
	if gap < 10*time.Minute {
		gap = 10 * time.Minute
	}
	return gap
}

// Universe returns the universe this Coordinator is bound to.
func (c *Coordinator) Universe() universe.Universe { return c.ctx.Universe() }

// Context returns the Coordinator's UniverseContext.
func (c *Coordinator) Context() *universe.Context { return c.ctx }

// Bus returns the Coordinator's event bus.
func (c *Coordinator) Bus() *events.Bus { return c.bus }

// Start subscribes every agent and begins the periodic scheduling tasks.
// Calling Start twice is a no-op.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	c.signal.Subscribe()
	c.risk.Subscribe()
	c.execution.Subscribe()
	c.observability.Subscribe()
	c.analyticsAgt.Subscribe()
	c.alert.Subscribe()
	c.replay.Subscribe()

	c.data.Start(ctx)
	c.monitor.Start(ctx)
	c.observability.Start(ctx)

	c.log.Info().Str("session_id", c.ctx.SessionID()).Msg("coordinator started")
	return c.bus.Publish(&events.LogEvent{
		Base:    events.NewBase(c.ctx.Universe(), c.ctx.SessionID(), "Coordinator"),
		Level:   "info",
		Message: "coordinator started",
	})
}

// Stop cancels the periodic tasks, awaits their wind-down, and publishes a
// final shutdown LogEvent. A second Stop is a no-op.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	c.data.Stop()
	c.monitor.Stop()
	c.observability.Stop()

	c.log.Info().Msg("coordinator stopped")
	return c.bus.Publish(&events.LogEvent{
		Base:    events.NewBase(c.ctx.Universe(), c.ctx.SessionID(), "Coordinator"),
		Level:   "info",
		Message: "shutting down",
	})
}

// handleStopLoss converts a stop-loss breach directly into an approved
// sell, bypassing RiskAgent: the stop-loss condition is itself the risk
// decision.
func (c *Coordinator) handleStopLoss(e events.Event) error {
	trigger := e.(*events.StopLossTriggered)
	return c.bus.Publish(&events.RiskCheckPassed{
		Base:        events.NewBase(c.ctx.Universe(), c.ctx.SessionID(), "Coordinator"),
		Symbol:      trigger.Symbol,
		Action:      "sell",
		TradeValue:  trigger.PositionValue,
		PositionPct: 0,
		Reason:      "stop loss",
	})
}

// ManualTrade submits an operator-initiated trade outside the signal/risk
// pipeline, sharing the execution agent's submission and event path.
func (c *Coordinator) ManualTrade(ctx context.Context, symbol, action string, amount, qty *float64) (*broker.OrderResult, error) {
	return c.execution.ExecuteManualTrade(ctx, symbol, action, amount, qty)
}

// ResetCircuitBreaker clears RiskAgent's circuit breaker.
func (c *Coordinator) ResetCircuitBreaker() any {
	return c.risk.ResetCircuitBreaker()
}

// SetBroadcaster wires (or rewires) the live UI fan-out callback.
func (c *Coordinator) SetBroadcaster(b agents.Broadcaster) {
	c.alert.SetBroadcaster(b)
}

// UpdateConfig replaces the Coordinator's runtime configuration and
// persists it. Agents read it on their next use, so a change takes effect
// on the next tick without a restart.
func (c *Coordinator) UpdateConfig(cfg config.RuntimeConfig) error {
	c.cfgMu.Lock()
	c.cfg = cfg
	c.cfgMu.Unlock()
	return cfg.Save(c.ctx.Universe())
}

// RuntimeConfig returns a copy of the Coordinator's current configuration.
func (c *Coordinator) RuntimeConfig() config.RuntimeConfig {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.cfg
}

// GetLogs returns the most recent human-readable alert log entries.
func (c *Coordinator) GetLogs(count int) []map[string]any {
	return c.alert.GetLogs(count)
}

// Status reports a composite snapshot of account, positions, and agent
// state, matching the shape the UI layer expects.
func (c *Coordinator) Status(ctx context.Context) map[string]any {
	account, err := c.brk.GetAccount(ctx)
	accountErr := ""
	if err != nil {
		accountErr = err.Error()
	}

	positions, _ := c.brk.GetPositions(ctx)
	marketOpen, _ := c.brk.IsMarketOpen(ctx)

	c.mu.Lock()
	running := c.running
	c.mu.Unlock()

	cfg := c.RuntimeConfig()
	riskStatus := c.risk.Status()
	dailyTrades, _ := riskStatus["daily_trades"].(int)

	return map[string]any{
		"account":   account,
		"positions": positions,
		"bot": map[string]any{
			"running":          running,
			"auto_trade":       cfg.AutoTrade,
			"market_open":      marketOpen,
			"universe":         string(c.ctx.Universe()),
			"session_id":       c.ctx.SessionID(),
			"trading_mode":     string(c.ctx.Universe()),
			"error":            accountErr,
			"daily_trades":     dailyTrades,
			"max_daily_trades": cfg.MaxDailyTrades,
		},
		"top_gainers":    c.data.CachedTopGainers(),
		"market_indices": c.data.CachedMarketIndices(),
		"risk":           riskStatus,
		"execution":      c.execution.Status(),
		"monitor":        c.monitor.Status(),
		"observability":  c.observability.Status(),
		"analytics":      c.analyticsAgt.Status(),
		"replay":         c.replay.Status(),
		"timestamp":      time.Now().UTC(),
	}
}

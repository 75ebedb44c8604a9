package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aarel/market-watch/internal/broker"
	"github.com/aarel/market-watch/internal/config"
	"github.com/aarel/market-watch/internal/events"
	"github.com/aarel/market-watch/internal/risk"
)

// RiskAgent is the hard gate between signal generation and execution: it
// enforces the daily trade cap, the circuit breaker, position sizing,
// sector exposure, and correlation exposure before a trade is allowed
// through.
type RiskAgent struct {
	bus *events.Bus
	brk broker.Broker
	cfg *config.RuntimeConfig
	cfgMu *sync.RWMutex
	log zerolog.Logger

	sizer   *risk.PositionSizer
	breaker *risk.CircuitBreaker

	mu              sync.Mutex
	dailyTrades     int
	lastTradeDate   string
	checksPassed    int
	checksFailed    int
	sectorMapCache  map[string]string
	sectorMapKey    string
}

// NewRiskAgent constructs a RiskAgent. cfg/cfgMu are shared with the rest
// of the runtime so limit changes take effect on the next signal.
func NewRiskAgent(bus *events.Bus, brk broker.Broker, cfg *config.RuntimeConfig, cfgMu *sync.RWMutex, log zerolog.Logger) *RiskAgent {
	cfgMu.RLock()
	sizer := risk.NewPositionSizer(cfg.PositionSizerScaleByStrength, cfg.PositionSizerMinStrength, cfg.PositionSizerMaxStrength)
	breaker := risk.NewCircuitBreaker(cfg.DailyLossLimitPct, cfg.MaxDrawdownPct, cfg.MarketTimezone)
	cfgMu.RUnlock()

	return &RiskAgent{
		bus:     bus,
		brk:     brk,
		cfg:     cfg,
		cfgMu:   cfgMu,
		log:     log.With().Str("component", "RiskAgent").Logger(),
		sizer:   sizer,
		breaker: breaker,
	}
}

// Subscribe registers the agent's handler on bus.
func (a *RiskAgent) Subscribe() {
	a.bus.Subscribe(&events.SignalGenerated{}, a.handleSignal)
}

func (a *RiskAgent) snapshotConfig() config.RuntimeConfig {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return *a.cfg
}

func (a *RiskAgent) resetDailyLimits(cfg config.RuntimeConfig) {
	loc, err := time.LoadLocation(cfg.MarketTimezone)
	if err != nil {
		loc = time.Local
	}
	today := time.Now().In(loc).Format("2006-01-02")

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastTradeDate != today {
		a.dailyTrades = 0
		a.lastTradeDate = today
	}
}

func (a *RiskAgent) handleSignal(e events.Event) error {
	signal := e.(*events.SignalGenerated)
	if signal.Action == "hold" {
		return nil
	}

	cfg := a.snapshotConfig()
	a.resetDailyLimits(cfg)

	ctx := context.Background()

	a.mu.Lock()
	daily := a.dailyTrades
	a.mu.Unlock()
	if daily >= cfg.MaxDailyTrades {
		return a.fail(signal, fmt.Sprintf("Daily trade limit reached (%d)", cfg.MaxDailyTrades))
	}

	account, err := a.brk.GetAccount(ctx)
	if err != nil || account.PortfolioValue <= 0 {
		return a.fail(signal, "Invalid portfolio value")
	}

	active, reason := a.breaker.Update(account.PortfolioValue, time.Time{})
	if active && signal.Action == "buy" {
		return a.fail(signal, fmt.Sprintf("Circuit breaker active: %s", reason))
	}

	switch signal.Action {
	case "buy":
		return a.handleBuy(ctx, signal, cfg, account)
	case "sell":
		return a.handleSell(ctx, signal, account)
	}
	return nil
}

func (a *RiskAgent) handleBuy(ctx context.Context, signal *events.SignalGenerated, cfg config.RuntimeConfig, account broker.Account) error {
	positions, err := a.brk.GetPositions(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to fetch positions for risk checks")
		positions = nil
	} else if len(positions) >= cfg.MaxOpenPositions {
		return a.fail(signal, fmt.Sprintf("Max open positions reached (%d)", cfg.MaxOpenPositions))
	}

	tradeValue := a.sizer.CalculateTradeValue(signal.Strength, account.PortfolioValue, account.BuyingPower, cfg.MaxPositionPct)
	if tradeValue < cfg.MinTradeValue {
		return a.fail(signal, fmt.Sprintf("Trade value $%.2f below minimum $%.2f", tradeValue, cfg.MinTradeValue))
	}
	if account.BuyingPower < cfg.MinTradeValue {
		return a.fail(signal, fmt.Sprintf("Insufficient buying power ($%.2f)", account.BuyingPower))
	}

	if positions != nil {
		if !a.checkSectorExposure(signal.Symbol, tradeValue, positions, account.PortfolioValue, cfg) {
			return a.fail(signal, "Sector exposure limit reached")
		}
		if !a.checkCorrelationExposure(ctx, signal.Symbol, tradeValue, positions, account.PortfolioValue, cfg) {
			return a.fail(signal, "Correlation exposure limit reached")
		}
	}

	positionPct := tradeValue / account.PortfolioValue * 100
	return a.pass(signal, tradeValue, positionPct,
		fmt.Sprintf("Buy approved: $%.2f (%.1f%% of portfolio)", tradeValue, positionPct))
}

func (a *RiskAgent) handleSell(ctx context.Context, signal *events.SignalGenerated, account broker.Account) error {
	position, err := a.brk.GetPosition(ctx, signal.Symbol)
	if err != nil {
		return a.fail(signal, fmt.Sprintf("Position lookup failed: %v", err))
	}
	if position == nil {
		return a.fail(signal, fmt.Sprintf("No position in %s to sell", signal.Symbol))
	}

	tradeValue := position.MarketValue
	positionPct := tradeValue / account.PortfolioValue * 100
	return a.pass(signal, tradeValue, positionPct, fmt.Sprintf("Sell approved: $%.2f", tradeValue))
}

func (a *RiskAgent) checkSectorExposure(symbol string, tradeValue float64, positions []broker.Position, portfolioValue float64, cfg config.RuntimeConfig) bool {
	if portfolioValue <= 0 {
		return true
	}
	sectorMap := a.loadSectorMap(cfg)
	if len(sectorMap) == 0 {
		return true
	}
	sector, ok := sectorMap[strings.ToUpper(symbol)]
	if !ok {
		return true
	}

	var sectorValue float64
	for _, p := range positions {
		if sectorMap[strings.ToUpper(p.Symbol)] == sector {
			sectorValue += p.MarketValue
		}
	}

	proposed := sectorValue + maxFloat(tradeValue, 0)
	return proposed/portfolioValue <= cfg.MaxSectorExposurePct
}

func (a *RiskAgent) checkCorrelationExposure(ctx context.Context, symbol string, tradeValue float64, positions []broker.Position, portfolioValue float64, cfg config.RuntimeConfig) bool {
	if portfolioValue <= 0 || len(positions) == 0 {
		return true
	}

	targetReturns := a.returnsFor(ctx, symbol, cfg.CorrelationLookbackDays)
	if len(targetReturns) == 0 {
		return true
	}

	var correlatedValue, existingValue float64
	symbolUpper := strings.ToUpper(symbol)

	for _, p := range positions {
		posSymbol := strings.ToUpper(p.Symbol)
		if posSymbol == symbolUpper {
			existingValue += p.MarketValue
			continue
		}

		posReturns := a.returnsFor(ctx, p.Symbol, cfg.CorrelationLookbackDays)
		if len(posReturns) == 0 {
			continue
		}

		x, y := alignByIndex(targetReturns, posReturns)
		if len(x) < 3 {
			continue
		}

		corr := stat.Correlation(x, y, nil)
		if corr >= cfg.CorrelationThreshold {
			correlatedValue += p.MarketValue
		}
	}

	proposed := correlatedValue + existingValue + maxFloat(tradeValue, 0)
	return proposed/portfolioValue <= cfg.MaxCorrelatedExposurePct
}

// returnsFor returns the daily return series for symbol, keyed by the
// same integer bar index the broker returns closes under.
func (a *RiskAgent) returnsFor(ctx context.Context, symbol string, lookbackDays int) map[int]float64 {
	bars, err := a.brk.GetBars(ctx, symbol, lookbackDays)
	if err != nil || len(bars.Close) < 3 {
		return nil
	}

	indices := make([]int, 0, len(bars.Close))
	for i := range bars.Close {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	returns := make(map[int]float64, len(indices)-1)
	for k := 1; k < len(indices); k++ {
		prev := bars.Close[indices[k-1]]
		curr := bars.Close[indices[k]]
		if prev != 0 {
			returns[indices[k]] = (curr - prev) / prev
		}
	}
	if len(returns) < 2 {
		return nil
	}
	return returns
}

// alignByIndex intersects two return series on their shared keys,
// mirroring the pandas inner-join alignment the original implementation
// performs before computing a Pearson correlation.
func alignByIndex(a, b map[int]float64) ([]float64, []float64) {
	keys := make([]int, 0, len(a))
	for k := range a {
		if _, ok := b[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Ints(keys)

	x := make([]float64, len(keys))
	y := make([]float64, len(keys))
	for i, k := range keys {
		x[i] = a[k]
		y[i] = b[k]
	}
	return x, y
}

func (a *RiskAgent) loadSectorMap(cfg config.RuntimeConfig) map[string]string {
	key := cfg.SectorMapJSON + "|" + cfg.SectorMapPath

	a.mu.Lock()
	if a.sectorMapCache != nil && a.sectorMapKey == key {
		defer a.mu.Unlock()
		return a.sectorMapCache
	}
	a.mu.Unlock()

	raw := make(map[string]string)
	switch {
	case cfg.SectorMapJSON != "":
		if err := json.Unmarshal([]byte(cfg.SectorMapJSON), &raw); err != nil {
			a.log.Warn().Err(err).Msg("failed to parse inline sector map JSON")
		}
	case cfg.SectorMapPath != "":
		data, err := os.ReadFile(cfg.SectorMapPath)
		if err != nil {
			if os.IsNotExist(err) {
				a.log.Warn().Str("path", cfg.SectorMapPath).Msg("sector map file not found; sector exposure check disabled")
			} else {
				a.log.Warn().Err(err).Msg("failed to read sector map")
			}
		} else if err := json.Unmarshal(data, &raw); err != nil {
			a.log.Warn().Err(err).Msg("failed to parse sector map file")
		}
	}

	normalized := make(map[string]string, len(raw))
	for symbol, sector := range raw {
		if symbol == "" || sector == "" {
			continue
		}
		normalized[strings.ToUpper(symbol)] = strings.TrimSpace(sector)
	}

	a.mu.Lock()
	a.sectorMapCache = normalized
	a.sectorMapKey = key
	a.mu.Unlock()
	return normalized
}

func (a *RiskAgent) pass(signal *events.SignalGenerated, tradeValue, positionPct float64, reason string) error {
	a.mu.Lock()
	a.checksPassed++
	a.mu.Unlock()

	return a.bus.Publish(&events.RiskCheckPassed{
		Base:        events.NewBase(a.bus.Context().Universe(), a.bus.Context().SessionID(), "RiskAgent"),
		Symbol:      signal.Symbol,
		Action:      signal.Action,
		TradeValue:  tradeValue,
		PositionPct: positionPct,
		Reason:      reason,
	})
}

func (a *RiskAgent) fail(signal *events.SignalGenerated, reason string) error {
	a.mu.Lock()
	a.checksFailed++
	a.mu.Unlock()

	return a.bus.Publish(&events.RiskCheckFailed{
		Base:   events.NewBase(a.bus.Context().Universe(), a.bus.Context().SessionID(), "RiskAgent"),
		Symbol: signal.Symbol,
		Action: signal.Action,
		Reason: reason,
	})
}

// IncrementTradeCount is RiskAgent's back-channel: only ExecutionAgent's
// confirmed fills call this, so rejected and failed orders never count
// against the daily trade limit.
func (a *RiskAgent) IncrementTradeCount() {
	a.resetDailyLimits(a.snapshotConfig())
	a.mu.Lock()
	a.dailyTrades++
	a.mu.Unlock()
}

// ResetCircuitBreaker clears the circuit breaker's tripped state.
func (a *RiskAgent) ResetCircuitBreaker() risk.CircuitBreakerState {
	a.breaker.Reset()
	return a.breaker.Status()
}

// Status reports the agent's current counters for the UI/status endpoint.
func (a *RiskAgent) Status() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]any{
		"daily_trades":   a.dailyTrades,
		"checks_passed":  a.checksPassed,
		"checks_failed":  a.checksFailed,
		"circuit_breaker": a.breaker.Status(),
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Package agents implements the fixed set of cooperating agents that
// communicate only through the event bus: DataAgent, SignalAgent,
// RiskAgent, ExecutionAgent, MonitorAgent, and the
// observability/analytics/alert fan-out agents.
package agents

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aarel/market-watch/internal/broker"
	"github.com/aarel/market-watch/internal/config"
	"github.com/aarel/market-watch/internal/events"
	"github.com/aarel/market-watch/internal/screener"
)

// DataAgent fetches market data on a fixed interval and publishes
// MarketDataReady. It owns one periodic task; Stop cancels it
// cooperatively and waits for it to wind down.
type DataAgent struct {
	bus      *events.Bus
	brk      broker.Broker
	cfg      *config.RuntimeConfig
	cfgMu    *sync.RWMutex
	barCache *broker.HistoricalCache
	log      zerolog.Logger

	mu    sync.Mutex
	cache cachedTick

	ticker   *time.Ticker
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

type cachedTick struct {
	prices     map[string]float64
	topGainers []map[string]any
	indices    []map[string]any
}

// NewDataAgent constructs a DataAgent. cfg/cfgMu let the interval change
// at runtime: the next tick picks up a new value without restarting the
// scheduling task. cache may be nil, disabling the historical bar cache.
func NewDataAgent(bus *events.Bus, brk broker.Broker, cfg *config.RuntimeConfig, cfgMu *sync.RWMutex, cache *broker.HistoricalCache, log zerolog.Logger) *DataAgent {
	return &DataAgent{
		bus:      bus,
		brk:      brk,
		cfg:      cfg,
		cfgMu:    cfgMu,
		barCache: cache,
		log:      log.With().Str("component", "DataAgent").Logger(),
	}
}

func (a *DataAgent) intervalMinutes() int {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	if a.cfg.TradeIntervalMinutes <= 0 {
		return 5
	}
	return a.cfg.TradeIntervalMinutes
}

// Start runs an immediate tick, then begins the periodic loop.
func (a *DataAgent) Start(ctx context.Context) {
	a.stopChan = make(chan struct{})
	if err := a.Tick(ctx); err != nil {
		a.log.Error().Err(err).Msg("initial tick failed")
	}

	a.ticker = time.NewTicker(time.Duration(a.intervalMinutes()) * time.Minute)
	a.wg.Add(1)
	go a.run(ctx)
}

func (a *DataAgent) run(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-a.ticker.C:
			if err := a.Tick(ctx); err != nil {
				a.log.Error().Err(err).Msg("tick failed")
			}
			// Pick up an interval change made since the last fire.
			a.ticker.Reset(time.Duration(a.intervalMinutes()) * time.Minute)
		case <-a.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels the periodic loop and waits for it to exit. Safe to call
// more than once.
func (a *DataAgent) Stop() {
	a.stopOnce.Do(func() {
		if a.ticker != nil {
			a.ticker.Stop()
		}
		if a.stopChan != nil {
			close(a.stopChan)
		}
	})
	a.wg.Wait()
}

// Tick runs one fetch-and-publish cycle.
func (a *DataAgent) Tick(ctx context.Context) error {
	a.cfgMu.RLock()
	cfg := *a.cfg
	a.cfgMu.RUnlock()

	marketOpen, err := a.brk.IsMarketOpen(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to check market hours; proceeding advisory-only")
	}

	symbols, topGainers := a.resolveWatchlist(ctx, cfg)
	marketIndices := a.computeIndices(ctx, cfg)

	account, err := a.brk.GetAccount(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to fetch account")
	}
	accountData := map[string]float64{
		"portfolio_value": account.PortfolioValue,
		"buying_power":    account.BuyingPower,
		"cash":            account.Cash,
		"equity":          account.Equity,
	}

	positions, heldSymbols := a.fetchPositions(ctx)
	symbols = unionSymbols(symbols, heldSymbols)

	prices := make(map[string]float64)
	for _, g := range topGainers {
		if sym, ok := g["symbol"].(string); ok {
			if p, ok := g["price"].(float64); ok && p > 0 {
				prices[sym] = p
			}
		}
	}

	bars := make(map[string]events.BarSeries)
	for _, symbol := range symbols {
		if _, ok := prices[symbol]; !ok {
			price, err := a.brk.GetCurrentPrice(ctx, symbol)
			if err != nil {
				a.log.Warn().Err(err).Str("symbol", symbol).Msg("failed to fetch price")
			} else if price > 0 {
				prices[symbol] = price
			}
		}

		series, ok := a.cachedBars(symbol)
		if !ok {
			var err error
			series, err = a.brk.GetBars(ctx, symbol, cfg.LookbackDays)
			if err != nil {
				a.log.Warn().Err(err).Str("symbol", symbol).Msg("failed to fetch bars")
				continue
			}
			a.storeCachedBars(symbol, series)
		}
		if len(series.Close) > 0 {
			bars[symbol] = series
		}
	}

	a.mu.Lock()
	a.cache = cachedTick{prices: prices, topGainers: topGainers, indices: marketIndices}
	a.mu.Unlock()

	event := &events.MarketDataReady{
		Base:          events.NewBase(a.bus.Context().Universe(), a.bus.Context().SessionID(), "DataAgent"),
		Symbols:       symbols,
		Prices:        prices,
		Bars:          bars,
		Account:       accountData,
		Positions:     positions,
		TopGainers:    topGainers,
		MarketIndices: marketIndices,
		MarketOpen:    marketOpen,
	}
	return a.bus.Publish(event)
}

func (a *DataAgent) resolveWatchlist(ctx context.Context, cfg config.RuntimeConfig) ([]string, []map[string]any) {
	if cfg.WatchlistMode != "top_gainers" {
		return cfg.Watchlist, nil
	}

	screenSymbols := cfg.Watchlist
	if universeSymbols := screener.ScreeningUniverse(cfg.TopGainersUniverse); len(universeSymbols) > 0 {
		screenSymbols = universeSymbols
	}

	snapshots, err := a.brk.GetSnapshots(ctx, screenSymbols)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to compute top gainers; falling back to static watchlist")
		return cfg.Watchlist, nil
	}

	gainers := screener.ComputeTopGainers(snapshots, cfg.TopGainersMinPrice, float64(cfg.TopGainersMinVolume), cfg.TopGainersCount)
	if len(gainers) == 0 {
		return cfg.Watchlist, nil
	}

	symbols := make([]string, 0, len(gainers))
	out := make([]map[string]any, 0, len(gainers))
	for _, g := range gainers {
		symbols = append(symbols, g.Symbol)
		out = append(out, map[string]any{
			"symbol":     g.Symbol,
			"price":      g.Price,
			"prev_close": g.PrevClose,
			"change_pct": g.ChangePct,
			"volume":     g.Volume,
		})
	}
	return symbols, out
}

func (a *DataAgent) computeIndices(ctx context.Context, cfg config.RuntimeConfig) []map[string]any {
	if len(cfg.MarketIndexSymbols) == 0 {
		return nil
	}
	snapshots, err := a.brk.GetSnapshots(ctx, cfg.MarketIndexSymbols)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to compute market index proxies")
		return nil
	}

	var out []map[string]any
	for _, symbol := range cfg.MarketIndexSymbols {
		snap, ok := snapshots[symbol]
		if !ok {
			continue
		}
		price := snap.LatestTradePrice
		if price <= 0 {
			price = snap.DailyClose
		}
		prevClose := snap.PrevDailyClose
		if price <= 0 || prevClose <= 0 {
			continue
		}
		out = append(out, map[string]any{
			"symbol":     symbol,
			"price":      price,
			"prev_close": prevClose,
			"change_pct": (price - prevClose) / prevClose,
		})
	}
	return out
}

func (a *DataAgent) fetchPositions(ctx context.Context) ([]map[string]any, []string) {
	positions, err := a.brk.GetPositions(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to fetch positions")
		return nil, nil
	}

	out := make([]map[string]any, 0, len(positions))
	held := make([]string, 0, len(positions))
	for _, p := range positions {
		out = append(out, map[string]any{
			"symbol":            p.Symbol,
			"qty":               p.Qty,
			"market_value":      p.MarketValue,
			"avg_entry_price":   p.AvgEntryPrice,
			"unrealized_pl":     p.UnrealizedPL,
			"unrealized_pl_pct": p.UnrealizedPLPct,
		})
		held = append(held, p.Symbol)
	}
	return out, held
}

// CachedTopGainers returns the most recently computed top-gainers list.
func (a *DataAgent) CachedTopGainers() []map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cache.topGainers
}

// CachedMarketIndices returns the most recently computed index proxies.
func (a *DataAgent) CachedMarketIndices() []map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cache.indices
}

// cachedBars returns symbol's cached bar series when the cache is enabled
// and was refreshed today, sparing a repeated intraday broker round trip.
func (a *DataAgent) cachedBars(symbol string) (events.BarSeries, bool) {
	if a.barCache == nil || !a.barCache.Fresh(symbol) {
		return events.BarSeries{}, false
	}
	series, ok, err := a.barCache.Load(symbol)
	if err != nil || !ok {
		return events.BarSeries{}, false
	}
	return series, true
}

func (a *DataAgent) storeCachedBars(symbol string, series events.BarSeries) {
	if a.barCache == nil || len(series.Close) == 0 {
		return
	}
	if err := a.barCache.Store(symbol, broker.CachedBarsFromSeries(series)); err != nil {
		a.log.Warn().Err(err).Str("symbol", symbol).Msg("failed to update historical bar cache")
	}
}

func unionSymbols(symbols, extra []string) []string {
	seen := make(map[string]struct{}, len(symbols)+len(extra))
	out := make([]string, 0, len(symbols)+len(extra))
	for _, s := range symbols {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range extra {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

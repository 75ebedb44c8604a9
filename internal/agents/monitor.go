package agents

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aarel/market-watch/internal/broker"
	"github.com/aarel/market-watch/internal/config"
	"github.com/aarel/market-watch/internal/events"
	"github.com/aarel/market-watch/internal/universe"
)

// MonitorAgent periodically scans open positions for a stop-loss breach.
// It owns its own scheduling goroutine, following the same ticker pattern
// as DataAgent.
type MonitorAgent struct {
	bus   *events.Bus
	brk   broker.Broker
	cfg   *config.RuntimeConfig
	cfgMu *sync.RWMutex
	log   zerolog.Logger

	mu        sync.Mutex
	triggered int

	ticker   *time.Ticker
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewMonitorAgent constructs a MonitorAgent.
func NewMonitorAgent(bus *events.Bus, brk broker.Broker, cfg *config.RuntimeConfig, cfgMu *sync.RWMutex, log zerolog.Logger) *MonitorAgent {
	return &MonitorAgent{
		bus:   bus,
		brk:   brk,
		cfg:   cfg,
		cfgMu: cfgMu,
		log:   log.With().Str("component", "MonitorAgent").Logger(),
	}
}

func (a *MonitorAgent) intervalSeconds() int {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	if a.cfg.MonitorIntervalSeconds <= 0 {
		return 120
	}
	return a.cfg.MonitorIntervalSeconds
}

// Start runs an immediate check, then begins the periodic loop.
func (a *MonitorAgent) Start(ctx context.Context) {
	a.stopChan = make(chan struct{})
	if err := a.Check(ctx); err != nil {
		a.log.Error().Err(err).Msg("initial stop-loss check failed")
	}

	a.ticker = time.NewTicker(time.Duration(a.intervalSeconds()) * time.Second)
	a.wg.Add(1)
	go a.run(ctx)
}

func (a *MonitorAgent) run(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-a.ticker.C:
			if err := a.Check(ctx); err != nil {
				a.log.Error().Err(err).Msg("stop-loss check failed")
			}
			a.ticker.Reset(time.Duration(a.intervalSeconds()) * time.Second)
		case <-a.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels the periodic loop and waits for it to exit. Safe to call
// more than once.
func (a *MonitorAgent) Stop() {
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

// Check scans every open position and emits StopLossTriggered for any
// breach of stop_loss_pct.
func (a *MonitorAgent) Check(ctx context.Context) error {
	marketOpen, err := a.brk.IsMarketOpen(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to check market hours; proceeding advisory-only")
	}
	if !marketOpen && a.bus.Context().Universe() != universe.Simulation {
		return nil
	}

	a.cfgMu.RLock()
	stopLossPct := a.cfg.StopLossPct
	a.cfgMu.RUnlock()
	if stopLossPct <= 0 {
		return nil
	}

	positions, err := a.brk.GetPositions(ctx)
	if err != nil {
		return err
	}

	for _, position := range positions {
		if position.Qty <= 0 || position.AvgEntryPrice <= 0 {
			continue
		}
		currentPrice := position.MarketValue / position.Qty
		lossPct := (currentPrice - position.AvgEntryPrice) / position.AvgEntryPrice
		if lossPct > -stopLossPct {
			continue
		}

		a.mu.Lock()
		a.triggered++
		a.mu.Unlock()

		if err := a.bus.Publish(&events.StopLossTriggered{
			Base:          events.NewBase(a.bus.Context().Universe(), a.bus.Context().SessionID(), "MonitorAgent"),
			Symbol:        position.Symbol,
			EntryPrice:    position.AvgEntryPrice,
			CurrentPrice:  currentPrice,
			LossPct:       lossPct,
			PositionValue: position.MarketValue,
		}); err != nil {
			a.log.Error().Err(err).Str("symbol", position.Symbol).Msg("failed to publish stop-loss trigger")
		}
	}
	return nil
}

// Status reports the agent's trigger counter for the UI/status endpoint.
func (a *MonitorAgent) Status() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]any{"stop_losses_triggered": a.triggered}
}

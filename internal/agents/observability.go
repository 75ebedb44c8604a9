package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aarel/market-watch/internal/events"
	"github.com/aarel/market-watch/internal/obslog"
	"github.com/aarel/market-watch/internal/reasoncode"
	"github.com/aarel/market-watch/internal/universe"
)

// ObservabilityAgent listens to every event on the bus and appends a
// structured observability record to a universe-scoped JSONL system log,
// annotating each record with a stable (reason_code, outcome) pair and the
// most recent market context. It also tracks a standing expectation that a
// MarketDataReady tick should keep arriving within maxTickGap. The check
// runs on wall-clock time and does not consider whether the market is open.
type ObservabilityAgent struct {
	bus     *events.Bus
	writer  *obslog.Writer
	tracker *reasoncode.ContextTracker
	tick    *reasoncode.TickExpectation
	log     zerolog.Logger

	mu       sync.Mutex
	recorded int
	stale    bool

	ticker   *time.Ticker
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewObservabilityAgent constructs an ObservabilityAgent writing to
// logs/<universe>/system/<logName>.jsonl. maxLogMB <= 0 disables rotation.
// maxTickGap <= 0 disables the staleness expectation check.
func NewObservabilityAgent(bus *events.Bus, u universe.Universe, logName string, maxLogMB float64, maxTickGap time.Duration, log zerolog.Logger) (*ObservabilityAgent, error) {
	if logName == "" {
		logName = "agent_events"
	}
	path := universe.LogPath(u, fmt.Sprintf("system/%s.jsonl", logName))
	writer, err := obslog.New(path, maxLogMB)
	if err != nil {
		return nil, err
	}
	return &ObservabilityAgent{
		bus:     bus,
		writer:  writer,
		tracker: reasoncode.NewContextTracker(),
		tick:    reasoncode.NewTickExpectation(maxTickGap),
		log:     log.With().Str("component", "ObservabilityAgent").Logger(),
	}, nil
}

// Subscribe registers the agent to receive every event on the bus.
func (a *ObservabilityAgent) Subscribe() {
	a.bus.SubscribeAll(a.handleEvent)
}

// Start begins the periodic staleness-expectation check. A zero-value
// maxTickGap (passed at construction) makes this a no-op.
func (a *ObservabilityAgent) Start(ctx context.Context) {
	if a.tick.MaxGap <= 0 {
		return
	}
	interval := a.tick.MaxGap / 2
	if interval < time.Second {
		interval = time.Second
	}
	a.stopChan = make(chan struct{})
	a.ticker = time.NewTicker(interval)
	a.wg.Add(1)
	go a.run(ctx)
}

func (a *ObservabilityAgent) run(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-a.ticker.C:
			a.checkStale()
		case <-a.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels the periodic staleness check and waits for it to exit. Safe
// to call more than once, and safe to call when Start was never invoked.
func (a *ObservabilityAgent) Stop() {
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

func (a *ObservabilityAgent) checkStale() {
	now := time.Now().UTC()
	a.mu.Lock()
	wasStale := a.stale
	a.stale = a.tick.Stale(now)
	nowStale := a.stale
	a.mu.Unlock()

	if !nowStale || wasStale {
		return
	}
	a.log.Warn().Dur("max_gap", a.tick.MaxGap).Msg("no MarketDataReady tick within expected interval")
	record := map[string]any{
		"reason_code": "tick_stale",
		"outcome":     string(reasoncode.Warn),
		"source":      "ObservabilityAgent",
		"timestamp":   now,
	}
	if err := a.writer.Write(record); err != nil {
		a.log.Error().Err(err).Msg("failed to write staleness record")
	}
}

func (a *ObservabilityAgent) handleEvent(e events.Event) error {
	if marketData, ok := e.(*events.MarketDataReady); ok {
		a.tracker.Update(marketData)
		a.mu.Lock()
		a.tick.Observe(marketData.Base.Timestamp)
		a.stale = false
		a.mu.Unlock()
	}

	reasonCode, outcome := reasoncode.Classify(e)
	base := e.Base()

	record := map[string]any{
		"reason_code":     reasonCode,
		"outcome":         string(outcome),
		"source":          base.Source,
		"universe":        string(base.Universe),
		"session_id":      base.SessionID,
		"timestamp":       base.Timestamp,
		"market_context":  a.tracker.Current(),
	}
	if base.DataLineageID != "" {
		record["data_lineage_id"] = base.DataLineageID
	}
	if base.ValidityClass != "" {
		record["validity_class"] = base.ValidityClass
	}

	if err := a.writer.Write(record); err != nil {
		a.log.Error().Err(err).Msg("failed to write observability record")
		return nil
	}

	a.mu.Lock()
	a.recorded++
	a.mu.Unlock()
	return nil
}

// Status reports the agent's record counter for the UI/status endpoint.
func (a *ObservabilityAgent) Status() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]any{
		"records_written": a.recorded,
		"market_context":  a.tracker.Current(),
		"tick_stale":      a.stale,
	}
}

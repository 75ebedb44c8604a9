package agents

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aarel/market-watch/internal/config"
	"github.com/aarel/market-watch/internal/events"
)

// ReplayRecorderAgent appends the latest bar of each MarketDataReady tick
// to a per-symbol, per-day CSV under data/replay/<SYMBOL>-<DATE>.csv, the
// same file layout and column set SimBroker's replay reader expects. It
// is the writer half of SimBroker's optional intraday replay: recording
// is off by default and only meaningful for a SIMULATION run that wants
// to capture a session for later replay.
type ReplayRecorderAgent struct {
	bus   *events.Bus
	cfg   *config.RuntimeConfig
	cfgMu *sync.RWMutex
	log   zerolog.Logger

	fileMu sync.Mutex
	header map[string]bool

	mu      sync.Mutex
	written int
}

// NewReplayRecorderAgent constructs a ReplayRecorderAgent.
func NewReplayRecorderAgent(bus *events.Bus, cfg *config.RuntimeConfig, cfgMu *sync.RWMutex, log zerolog.Logger) *ReplayRecorderAgent {
	return &ReplayRecorderAgent{
		bus:    bus,
		cfg:    cfg,
		cfgMu:  cfgMu,
		log:    log.With().Str("component", "ReplayRecorderAgent").Logger(),
		header: make(map[string]bool),
	}
}

// Subscribe registers the agent's handler on bus.
func (a *ReplayRecorderAgent) Subscribe() {
	a.bus.Subscribe(&events.MarketDataReady{}, a.handleMarketData)
}

func (a *ReplayRecorderAgent) enabled() (bool, string) {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	dir := a.cfg.ReplayDir
	if dir == "" {
		dir = "data/replay"
	}
	return a.cfg.ReplayRecordingEnabled, dir
}

func (a *ReplayRecorderAgent) handleMarketData(e events.Event) error {
	enabled, dir := a.enabled()
	if !enabled {
		return nil
	}

	event := e.(*events.MarketDataReady)
	date := event.Base.Timestamp.Format("20060102")

	for symbol, series := range event.Bars {
		if len(series.Close) == 0 {
			continue
		}
		last := len(series.Close) - 1
		if err := a.appendRow(dir, symbol, date, event.Base.Timestamp, series, last); err != nil {
			a.log.Warn().Err(err).Str("symbol", symbol).Msg("failed to record replay row")
			continue
		}
		a.mu.Lock()
		a.written++
		a.mu.Unlock()
	}
	return nil
}

func (a *ReplayRecorderAgent) appendRow(dir, symbol, date string, ts time.Time, series events.BarSeries, idx int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("replay recorder: create dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.csv", symbol, date))

	a.fileMu.Lock()
	defer a.fileMu.Unlock()

	needsHeader := !a.header[path]
	if needsHeader {
		if _, err := os.Stat(path); err == nil {
			needsHeader = false
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("replay recorder: open %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
			return err
		}
	}
	a.header[path] = true

	row := []string{
		ts.Format(time.RFC3339),
		fmt.Sprintf("%g", series.Open[idx]),
		fmt.Sprintf("%g", series.High[idx]),
		fmt.Sprintf("%g", series.Low[idx]),
		fmt.Sprintf("%g", series.Close[idx]),
		fmt.Sprintf("%g", series.Volume[idx]),
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Status reports the agent's row counter for the UI/status endpoint.
func (a *ReplayRecorderAgent) Status() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]any{"rows_recorded": a.written}
}

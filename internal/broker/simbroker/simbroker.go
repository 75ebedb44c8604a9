// Package simbroker implements an in-memory Broker for the SIMULATION
// universe: synthetic prices with bounded jiggle, optional CSV intraday
// replay, and synchronous fills against an in-memory portfolio.
package simbroker

import (
	"context"
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aarel/market-watch/internal/broker"
	"github.com/aarel/market-watch/internal/events"
	"github.com/aarel/market-watch/internal/universe"
)

// Config configures a SimBroker.
type Config struct {
	JiggleFactor   float64 // bounded fractional price fluctuation per tick, e.g. 0.001
	ReplayEnabled  bool
	ReplayDate     string // YYYYMMDD; defaults to today (UTC) when empty
	ReplayDir      string // defaults to "data/replay"
	InitialCash    float64
	Watchlist      []string
}

type replayFrame struct {
	rows []replayRow
	idx  int
}

type replayRow struct {
	timestamp                      time.Time
	open, high, low, close, volume float64
}

// SimBroker is a Broker for the SIMULATION universe only.
type SimBroker struct {
	cfg Config
	log zerolog.Logger

	mu         sync.Mutex
	account    broker.Account
	positions  map[string]*broker.Position
	orders     []*broker.OrderResult
	prices     map[string]float64
	replay     map[string]*replayFrame
}

// New constructs a SimBroker. It takes no universe argument and performs
// no universe check: every SimBroker reports universe.Simulation from
// Universe.
func New(cfg Config, log zerolog.Logger) *SimBroker {
	if cfg.InitialCash <= 0 {
		cfg.InitialCash = 100000.0
	}
	if cfg.ReplayDir == "" {
		cfg.ReplayDir = "data/replay"
	}
	if cfg.ReplayDate == "" {
		cfg.ReplayDate = time.Now().UTC().Format("20060102")
	}

	b := &SimBroker{
		cfg: cfg,
		log: log.With().Str("component", "SimBroker").Logger(),
		account: broker.Account{
			PortfolioValue: cfg.InitialCash,
			Cash:           cfg.InitialCash,
			BuyingPower:    cfg.InitialCash,
			Equity:         cfg.InitialCash,
		},
		positions: make(map[string]*broker.Position),
		prices:    make(map[string]float64),
		replay:    make(map[string]*replayFrame),
	}

	for _, sym := range cfg.Watchlist {
		b.prices[sym] = b.seedPrice()
	}
	if cfg.ReplayEnabled {
		b.loadReplayFrames(cfg.Watchlist)
	}

	b.log.Info().Float64("initial_equity", b.account.Equity).Bool("replay_enabled", cfg.ReplayEnabled).Msg("SimBroker connected")
	return b
}

// Universe always reports SIMULATION.
func (b *SimBroker) Universe() universe.Universe { return universe.Simulation }

func (b *SimBroker) seedPrice() float64 {
	return round2(10 + rand.Float64()*290)
}

func (b *SimBroker) loadReplayFrames(symbols []string) {
	for _, sym := range symbols {
		path := filepath.Join(b.cfg.ReplayDir, fmt.Sprintf("%s-%s.csv", sym, b.cfg.ReplayDate))
		rows, err := readReplayCSV(path)
		if err != nil || len(rows) == 0 {
			continue
		}
		b.replay[sym] = &replayFrame{rows: rows}
		b.prices[sym] = rows[0].close
		b.log.Debug().Str("symbol", sym).Int("bars", len(rows)).Msg("replay loaded")
	}
}

func readReplayCSV(path string) ([]replayRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil || len(records) < 2 {
		return nil, err
	}

	header := records[0]
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}

	rows := make([]replayRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		ts, _ := time.Parse(time.RFC3339, rec[col["timestamp"]])
		rows = append(rows, replayRow{
			timestamp: ts,
			open:      parseFloat(rec[col["open"]]),
			high:      parseFloat(rec[col["high"]]),
			low:       parseFloat(rec[col["low"]]),
			close:     parseFloat(rec[col["close"]]),
			volume:    parseFloat(rec[col["volume"]]),
		})
	}
	return rows, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// replayStep advances symbol's replay index by one tick and returns the
// new close price, or false if symbol has no replay frame.
func (b *SimBroker) replayStep(symbol string) (float64, bool) {
	fr, ok := b.replay[symbol]
	if !ok || len(fr.rows) == 0 {
		return 0, false
	}
	row := fr.rows[fr.idx%len(fr.rows)]
	fr.idx = (fr.idx + 1) % len(fr.rows)
	b.prices[symbol] = row.close
	return row.close, true
}

// jigglePrices applies the configured bounded random fluctuation to every
// tracked price, unless a replay frame is driving that symbol this tick.
func (b *SimBroker) jigglePrices() {
	for symbol, price := range b.prices {
		if b.cfg.ReplayEnabled {
			if _, ok := b.replayStep(symbol); ok {
				continue
			}
		}
		factor := b.cfg.JiggleFactor
		delta := (rand.Float64()*2 - 1) * factor
		next := price * (1 + delta)
		if next < 0.01 {
			next = 0.01
		}
		b.prices[symbol] = next
	}
}

func (b *SimBroker) updatePortfolio() {
	positionValue := 0.0
	for symbol, pos := range b.positions {
		price, ok := b.prices[symbol]
		if !ok {
			price = pos.AvgEntryPrice
		}
		pos.MarketValue = pos.Qty * price
		pos.UnrealizedPL = (price - pos.AvgEntryPrice) * pos.Qty
		if pos.AvgEntryPrice > 0 {
			pos.UnrealizedPLPct = (price / pos.AvgEntryPrice) - 1
		} else {
			pos.UnrealizedPLPct = 0
		}
		positionValue += pos.MarketValue
	}
	b.account.Equity = b.account.Cash + positionValue
	b.account.PortfolioValue = b.account.Equity
}

// GetAccount returns the current simulated account snapshot.
func (b *SimBroker) GetAccount(ctx context.Context) (broker.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updatePortfolio()
	return b.account, nil
}

// GetPosition returns the simulated position for symbol, or nil if none.
func (b *SimBroker) GetPosition(ctx context.Context, symbol string) (*broker.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updatePortfolio()
	if pos, ok := b.positions[symbol]; ok {
		cp := *pos
		return &cp, nil
	}
	return nil, nil
}

// GetPositions returns every simulated open position.
func (b *SimBroker) GetPositions(ctx context.Context) ([]broker.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updatePortfolio()
	out := make([]broker.Position, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, *pos)
	}
	return out, nil
}

// GetBars returns a synthetic (or replayed) OHLCV series for symbol of up
// to days length.
func (b *SimBroker) GetBars(ctx context.Context, symbol string, days int) (events.BarSeries, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if fr, ok := b.replay[symbol]; ok && len(fr.rows) > 0 {
		rows := fr.rows
		if len(rows) > days {
			rows = rows[len(rows)-days:]
		}
		return barsFromRows(rows), nil
	}

	price, ok := b.prices[symbol]
	if !ok {
		price = b.seedPrice()
		b.prices[symbol] = price
	}

	closes := make([]float64, days)
	closes[days-1] = price
	for i := days - 2; i >= 0; i-- {
		closes[i] = closes[i+1] * (1 + (rand.Float64()*0.04 - 0.02))
	}

	series := events.BarSeries{
		Open:   map[int]float64{},
		High:   map[int]float64{},
		Low:    map[int]float64{},
		Close:  map[int]float64{},
		Volume: map[int]float64{},
	}
	for i, c := range closes {
		series.Close[i] = c
		series.Open[i] = c * (0.98 + rand.Float64()*0.04)
		series.High[i] = c * (1.0 + rand.Float64()*0.03)
		series.Low[i] = c * (0.97 + rand.Float64()*0.03)
		series.Volume[i] = float64(1_000_000 + rand.Intn(9_000_000))
	}
	return series, nil
}

func barsFromRows(rows []replayRow) events.BarSeries {
	series := events.BarSeries{
		Open:   map[int]float64{},
		High:   map[int]float64{},
		Low:    map[int]float64{},
		Close:  map[int]float64{},
		Volume: map[int]float64{},
	}
	for i, r := range rows {
		series.Open[i] = r.open
		series.High[i] = r.high
		series.Low[i] = r.low
		series.Close[i] = r.close
		series.Volume[i] = r.volume
	}
	return series
}

// GetSnapshots jiggles prices then returns a snapshot per requested symbol.
func (b *SimBroker) GetSnapshots(ctx context.Context, symbols []string) (map[string]broker.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jigglePrices()

	out := make(map[string]broker.Snapshot, len(symbols))
	for _, symbol := range symbols {
		price, ok := b.prices[symbol]
		if !ok {
			price = b.seedPrice()
			b.prices[symbol] = price
		}
		prevClose := price * (1 + (rand.Float64()*0.1 - 0.05))
		out[symbol] = broker.Snapshot{
			LatestTradePrice: price,
			DailyClose:       price,
			DailyVolume:      float64(1_000_000 + rand.Intn(9_000_000)),
			PrevDailyClose:   prevClose,
			PrevDailyVolume:  float64(1_000_000 + rand.Intn(9_000_000)),
		}
	}
	return out, nil
}

// GetCurrentPrice jiggles prices then returns symbol's current price.
func (b *SimBroker) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jigglePrices()
	price, ok := b.prices[symbol]
	if !ok {
		price = b.seedPrice()
		b.prices[symbol] = price
	}
	return price, nil
}

// SubmitOrder fills synchronously at the current tick price, subject to
// buying-power (buy) and inventory (sell) checks.
func (b *SimBroker) SubmitOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	price, ok := b.prices[req.Symbol]
	if !ok {
		price = b.seedPrice()
		b.prices[req.Symbol] = price
	}

	var qty float64
	switch {
	case req.Notional != nil:
		qty = *req.Notional / price
	case req.Qty != nil:
		qty = *req.Qty
	default:
		return nil, fmt.Errorf("simbroker: order for %s has neither qty nor notional", req.Symbol)
	}

	orderValue := qty * price
	now := time.Now().UTC()

	switch req.Side {
	case "buy":
		if orderValue > b.account.BuyingPower {
			return &broker.OrderResult{
				Symbol:         req.Symbol,
				Side:           req.Side,
				Status:         "rejected",
				RejectedReason: "insufficient_buying_power",
				SubmittedAt:    now,
			}, nil
		}
		b.account.Cash -= orderValue
		b.account.BuyingPower -= orderValue

		if existing, ok := b.positions[req.Symbol]; ok {
			newQty := existing.Qty + qty
			newCost := existing.AvgEntryPrice*existing.Qty + orderValue
			existing.AvgEntryPrice = newCost / newQty
			existing.Qty = newQty
		} else {
			b.positions[req.Symbol] = &broker.Position{
				Symbol:        req.Symbol,
				Qty:           qty,
				AvgEntryPrice: price,
				MarketValue:   orderValue,
			}
		}

	case "sell":
		existing, ok := b.positions[req.Symbol]
		if !ok || existing.Qty < qty {
			return nil, fmt.Errorf("simbroker: not enough shares of %s to sell", req.Symbol)
		}
		b.account.Cash += orderValue
		b.account.BuyingPower += orderValue
		if existing.Qty-qty < 1e-6 {
			delete(b.positions, req.Symbol)
		} else {
			existing.Qty -= qty
		}

	default:
		return nil, fmt.Errorf("simbroker: unknown order side %q", req.Side)
	}

	result := &broker.OrderResult{
		ID:             uuid.New().String(),
		Symbol:         req.Symbol,
		Side:           req.Side,
		Qty:            qty,
		FilledAvgPrice: price,
		Notional:       orderValue,
		Status:         "filled",
		SubmittedAt:    now,
		FilledAt:       now,
		TimeInForce:    "day",
		OrderType:      "market",
	}
	b.orders = append(b.orders, result)
	b.log.Info().Str("symbol", req.Symbol).Str("side", req.Side).Float64("qty", qty).Float64("price", price).Msg("simulated order filled")
	return result, nil
}

// IsMarketOpen emulates the US equity session (9:30-16:00 ET, weekdays).
// It has no override of its own; callers that trade outside these hours
// under SIMULATION do so by checking Universe.AllowsMarketHoursOverride.
func (b *SimBroker) IsMarketOpen(ctx context.Context) (bool, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false, nil
	}
	minutes := now.Hour()*60 + now.Minute()
	return minutes >= 9*60+30 && minutes <= 16*60, nil
}

// GetAssetNames returns placeholder company names for symbols.
func (b *SimBroker) GetAssetNames(ctx context.Context, symbols []string) (map[string]string, error) {
	common := map[string]string{
		"AAPL": "Apple Inc.", "MSFT": "Microsoft Corporation", "GOOG": "Alphabet Inc. (Class C)",
		"GOOGL": "Alphabet Inc. (Class A)", "AMZN": "Amazon.com, Inc.", "META": "Meta Platforms, Inc.",
		"NVDA": "NVIDIA Corporation", "TSLA": "Tesla, Inc.", "AMD": "Advanced Micro Devices, Inc.",
		"INTC": "Intel Corporation", "NFLX": "Netflix, Inc.", "QQQ": "Invesco QQQ Trust", "SPY": "SPDR S&P 500 ETF",
	}
	out := make(map[string]string, len(symbols))
	for _, s := range symbols {
		if name, ok := common[s]; ok {
			out[s] = name
			continue
		}
		out[s] = fmt.Sprintf("%s Inc.", s)
	}
	return out, nil
}

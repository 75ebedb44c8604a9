package broker

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aarel/market-watch/internal/events"
)

// CachedBar is the msgpack-serializable row stored by HistoricalCache,
// mirroring the columns of the CSV cache named in the file layout
// (data/shared/historical/<SYMBOL>_daily.csv).
type CachedBar struct {
	Timestamp time.Time `msgpack:"t"`
	Open      float64   `msgpack:"o"`
	High      float64   `msgpack:"h"`
	Low       float64   `msgpack:"l"`
	Close     float64   `msgpack:"c"`
	Volume    float64   `msgpack:"v"`
}

// CachedBarsFromSeries converts a BarSeries into cache rows, assigning each
// row a synthetic daily timestamp ending today so the cache round-trips
// through the same CSV shape GetBars callers expect.
func CachedBarsFromSeries(series events.BarSeries) []CachedBar {
	n := len(series.Close)
	rows := make([]CachedBar, 0, n)
	today := time.Now().UTC().Truncate(24 * time.Hour)
	for i := 0; i < n; i++ {
		rows = append(rows, CachedBar{
			Timestamp: today.AddDate(0, 0, -(n - 1 - i)),
			Open:      series.Open[i],
			High:      series.High[i],
			Low:       series.Low[i],
			Close:     series.Close[i],
			Volume:    series.Volume[i],
		})
	}
	return rows
}

// HistoricalCache is a disk-backed cache of daily OHLCV bars. It keeps a
// binary msgpack file per symbol (fast to load, used for repeated intraday
// lookups) alongside the canonical CSV named in the file layout, which
// remains the format other tooling (backfill scripts, the backtest
// engine) reads directly.
type HistoricalCache struct {
	dir string
}

// NewHistoricalCache returns a cache rooted at dir (e.g. "data/shared/historical").
func NewHistoricalCache(dir string) *HistoricalCache {
	return &HistoricalCache{dir: dir}
}

func (c *HistoricalCache) msgpackPath(symbol string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s_daily.msgpack", symbol))
}

func (c *HistoricalCache) csvPath(symbol string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s_daily.csv", symbol))
}

// Fresh reports whether symbol's cache entry was written today (UTC), so a
// caller on a repeated intraday lookup can skip a network/broker round trip
// for data that already reflects today's bar.
func (c *HistoricalCache) Fresh(symbol string) bool {
	info, err := os.Stat(c.msgpackPath(symbol))
	if err != nil {
		return false
	}
	return info.ModTime().UTC().Truncate(24 * time.Hour).Equal(time.Now().UTC().Truncate(24 * time.Hour))
}

// Load returns the cached bar series for symbol, reading the fast msgpack
// file when present. Returns (series, false, nil) on a cache miss.
func (c *HistoricalCache) Load(symbol string) (events.BarSeries, bool, error) {
	data, err := os.ReadFile(c.msgpackPath(symbol))
	if err != nil {
		if os.IsNotExist(err) {
			return events.BarSeries{}, false, nil
		}
		return events.BarSeries{}, false, fmt.Errorf("historical cache: read %s: %w", symbol, err)
	}

	var rows []CachedBar
	if err := msgpack.Unmarshal(data, &rows); err != nil {
		return events.BarSeries{}, false, fmt.Errorf("historical cache: decode %s: %w", symbol, err)
	}
	return seriesFromCachedBars(rows), true, nil
}

// Store writes rows to both the msgpack cache and the canonical CSV file
// for symbol, creating the cache directory if needed.
func (c *HistoricalCache) Store(symbol string, rows []CachedBar) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("historical cache: mkdir: %w", err)
	}

	data, err := msgpack.Marshal(rows)
	if err != nil {
		return fmt.Errorf("historical cache: encode %s: %w", symbol, err)
	}
	if err := os.WriteFile(c.msgpackPath(symbol), data, 0o644); err != nil {
		return fmt.Errorf("historical cache: write %s: %w", symbol, err)
	}

	return c.writeCSV(symbol, rows)
}

func (c *HistoricalCache) writeCSV(symbol string, rows []CachedBar) error {
	f, err := os.Create(c.csvPath(symbol))
	if err != nil {
		return fmt.Errorf("historical cache: create csv %s: %w", symbol, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, row := range rows {
		rec := []string{
			row.Timestamp.Format(time.RFC3339),
			strconv.FormatFloat(row.Open, 'f', -1, 64),
			strconv.FormatFloat(row.High, 'f', -1, 64),
			strconv.FormatFloat(row.Low, 'f', -1, 64),
			strconv.FormatFloat(row.Close, 'f', -1, 64),
			strconv.FormatFloat(row.Volume, 'f', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func seriesFromCachedBars(rows []CachedBar) events.BarSeries {
	series := events.BarSeries{
		Open:   map[int]float64{},
		High:   map[int]float64{},
		Low:    map[int]float64{},
		Close:  map[int]float64{},
		Volume: map[int]float64{},
	}
	for i, row := range rows {
		series.Open[i] = row.Open
		series.High[i] = row.High
		series.Low[i] = row.Low
		series.Close[i] = row.Close
		series.Volume[i] = row.Volume
	}
	return series
}

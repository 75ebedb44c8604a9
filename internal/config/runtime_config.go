package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aarel/market-watch/internal/universe"
)

// RuntimeConfig is the mutable, universe-scoped trading configuration:
// strategy selection and thresholds, the watchlist, and risk limits. It
// is threaded into agents at construction and persisted to
// data/<universe>/config_state.json so changes survive a restart.
type RuntimeConfig struct {
	Strategy string `json:"strategy"`

	Watchlist             []string `json:"watchlist"`
	WatchlistMode          string   `json:"watchlist_mode"` // "static" or "top_gainers"
	TopGainersCount        int      `json:"top_gainers_count"`
	TopGainersUniverse     string   `json:"top_gainers_universe"`
	TopGainersMinPrice     float64  `json:"top_gainers_min_price"`
	TopGainersMinVolume    int64    `json:"top_gainers_min_volume"`

	LookbackDays      int     `json:"lookback_days"`
	MomentumThreshold float64 `json:"momentum_threshold"`
	SellThreshold     float64 `json:"sell_threshold"`

	StopLossPct    float64 `json:"stop_loss_pct"`
	MaxPositionPct float64 `json:"max_position_pct"`
	MinTradeValue  float64 `json:"min_trade_value"`

	MaxDailyTrades    int `json:"max_daily_trades"`
	MaxOpenPositions  int `json:"max_open_positions"`

	DailyLossLimitPct float64 `json:"daily_loss_limit_pct"`
	MaxDrawdownPct    float64 `json:"max_drawdown_pct"`

	MaxSectorExposurePct     float64 `json:"max_sector_exposure_pct"`
	MaxCorrelatedExposurePct float64 `json:"max_correlated_exposure_pct"`
	CorrelationThreshold     float64 `json:"correlation_threshold"`
	CorrelationLookbackDays  int     `json:"correlation_lookback_days"`

	TradeIntervalMinutes int  `json:"trade_interval"`
	AutoTrade            bool `json:"auto_trade"`

	MarketTimezone string `json:"market_timezone"`
	SectorMapPath  string `json:"sector_map_path"`
	SectorMapJSON  string `json:"sector_map_json"`

	MarketIndexSymbols []string `json:"market_index_symbols"`

	PositionSizerScaleByStrength bool    `json:"position_sizer_scale_by_strength"`
	PositionSizerMinStrength     float64 `json:"position_sizer_min_strength"`
	PositionSizerMaxStrength     float64 `json:"position_sizer_max_strength"`

	ObservabilityEnabled   bool    `json:"observability_enabled"`
	ObservabilityLogPath   string  `json:"observability_log_path"`
	ObservabilityMaxLogMB  float64 `json:"observability_max_log_mb"`

	AnalyticsEnabled bool `json:"analytics_enabled"`

	MonitorIntervalSeconds int `json:"monitor_interval_seconds"`

	ReplayRecordingEnabled bool   `json:"replay_recording_enabled"`
	ReplayDir              string `json:"replay_dir"`

	HistoricalCacheDir string `json:"historical_cache_dir"`
}

// DefaultRuntimeConfig returns the out-of-the-box runtime configuration,
// mirroring the original implementation's documented defaults.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Strategy: "momentum",

		Watchlist:           []string{"SPY", "QQQ", "AAPL", "MSFT", "NVDA"},
		WatchlistMode:       "top_gainers",
		TopGainersCount:     20,
		TopGainersUniverse:  "large_cap",
		TopGainersMinPrice:  5,
		TopGainersMinVolume: 1_000_000,

		LookbackDays:      20,
		MomentumThreshold: 0.02,
		SellThreshold:     -0.01,

		StopLossPct:    0.05,
		MaxPositionPct: 0.5,
		MinTradeValue:  1.0,

		MaxDailyTrades:   5,
		MaxOpenPositions: 20,

		DailyLossLimitPct: 0.03,
		MaxDrawdownPct:    0.15,

		MaxSectorExposurePct:     1.00,
		MaxCorrelatedExposurePct: 1.00,
		CorrelationThreshold:     0.8,
		CorrelationLookbackDays:  30,

		TradeIntervalMinutes: 5,
		AutoTrade:            true,

		MarketTimezone: "America/New_York",
		SectorMapPath:  "data/shared/sector_map.json",

		MarketIndexSymbols: []string{
			"SPY", "QQQ", "DIA", "IVV", "VOO", "IWM", "SMH",
			"XLF", "XLK", "XLY", "XLI", "XLE", "XLV", "XLB", "XLU", "XLRE", "XLC",
		},

		PositionSizerScaleByStrength: true,
		PositionSizerMinStrength:     0.0,
		PositionSizerMaxStrength:     1.0,

		ObservabilityEnabled:  true,
		ObservabilityLogPath:  "agent_events",
		ObservabilityMaxLogMB: 5,

		AnalyticsEnabled: true,

		MonitorIntervalSeconds: 120,

		ReplayRecordingEnabled: false,
		ReplayDir:              "data/replay",

		HistoricalCacheDir: "data/shared/historical",
	}
}

// LoadRuntimeConfig loads the persisted runtime config for u, or returns
// DefaultRuntimeConfig if none has been persisted yet.
func LoadRuntimeConfig(u universe.Universe) (RuntimeConfig, error) {
	path := universe.DataPath(u, "config_state.json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRuntimeConfig(), nil
		}
		return RuntimeConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultRuntimeConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RuntimeConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save persists cfg to data/<u>/config_state.json.
func (cfg RuntimeConfig) Save(u universe.Universe) error {
	path := universe.DataPath(u, "config_state.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create data dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode runtime config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// ParseStrictBool parses a boolean the way auto_trade is required to:
// true/false, yes/no, on/off, 1/0, case-insensitively. Any other string
// is rejected rather than silently defaulting, since a prior version of
// this system had a real bug where a non-empty string like "false" was
// truthy.
func ParseStrictBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("config: invalid boolean value %q", value)
	}
}

// SetAutoTrade applies a strictly-parsed auto_trade value to cfg.
func (cfg *RuntimeConfig) SetAutoTrade(value string) error {
	b, err := ParseStrictBool(value)
	if err != nil {
		return err
	}
	cfg.AutoTrade = b
	return nil
}

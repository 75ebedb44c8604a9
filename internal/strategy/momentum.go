package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/aarel/market-watch/internal/events"
)

// MomentumConfig parameterizes MomentumStrategy.
type MomentumConfig struct {
	LookbackDays      int
	MomentumThreshold float64 // e.g. 0.02 == 2% momentum triggers a buy
	SellThreshold     float64 // e.g. -0.01 == -1% momentum triggers a sell
}

// MomentumStrategy buys on strong upward momentum and sells on reversal,
// using go-talib's momentum indicator over each symbol's recent closes.
type MomentumStrategy struct {
	cfg MomentumConfig
}

// NewMomentumStrategy constructs a MomentumStrategy, filling in defaults
// for any zero-valued fields.
func NewMomentumStrategy(cfg MomentumConfig) *MomentumStrategy {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 20
	}
	if cfg.MomentumThreshold == 0 {
		cfg.MomentumThreshold = 0.02
	}
	if cfg.SellThreshold == 0 {
		cfg.SellThreshold = -0.01
	}
	return &MomentumStrategy{cfg: cfg}
}

// Name implements Strategy.
func (m *MomentumStrategy) Name() string { return "Momentum Strategy" }

// RequiredHistory implements Strategy.
func (m *MomentumStrategy) RequiredHistory() int { return m.cfg.LookbackDays + 1 }

// Parameters implements Strategy.
func (m *MomentumStrategy) Parameters() map[string]float64 {
	return map[string]float64{
		"lookback_days":      float64(m.cfg.LookbackDays),
		"momentum_threshold": m.cfg.MomentumThreshold,
		"sell_threshold":     m.cfg.SellThreshold,
	}
}

// Analyze implements Strategy using talib.Mom over the ordered close
// series, normalized to a percentage of the lookback-start price.
func (m *MomentumStrategy) Analyze(symbol string, bars events.BarSeries, currentPrice float64, position *Position) (Signal, error) {
	closes := orderedCloses(bars)
	if len(closes) < m.cfg.LookbackDays+1 {
		return Signal{}, fmt.Errorf("momentum strategy: need %d bars, have %d", m.cfg.LookbackDays+1, len(closes))
	}

	mom := talib.Mom(closes, m.cfg.LookbackDays)
	raw := mom[len(mom)-1]
	base := closes[len(closes)-1-m.cfg.LookbackDays]
	var momentumPct float64
	if base != 0 {
		momentumPct = raw / base
	}

	action := Hold
	strength := 0.0
	reason := fmt.Sprintf("momentum %.2f%% within neutral band", momentumPct*100)

	switch {
	case momentumPct >= m.cfg.MomentumThreshold:
		action = Buy
		strength = clamp01(momentumPct / (m.cfg.MomentumThreshold * 3))
		reason = fmt.Sprintf("momentum %.2f%% >= threshold %.2f%%", momentumPct*100, m.cfg.MomentumThreshold*100)
	case momentumPct <= m.cfg.SellThreshold && position != nil:
		action = Sell
		strength = 1.0
		reason = fmt.Sprintf("momentum %.2f%% <= sell threshold %.2f%%", momentumPct*100, m.cfg.SellThreshold*100)
	}

	return Signal{
		Symbol:       symbol,
		Action:       action,
		Strength:     strength,
		Reason:       reason,
		CurrentPrice: currentPrice,
		Metadata:     map[string]float64{"momentum": momentumPct},
	}, nil
}

func orderedCloses(bars events.BarSeries) []float64 {
	out := make([]float64, len(bars.Close))
	for i := range out {
		out[i] = bars.Close[i]
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package reasoncode

import (
	"math"
	"sort"
	"time"

	"github.com/aarel/market-watch/internal/events"
)

// MarketContext is a snapshot of recent market conditions, annotated onto
// every observability record so a reviewer can tell what the market was
// doing when an event fired.
type MarketContext struct {
	MarketOpen       bool      `json:"market_open"`
	SymbolCount      int       `json:"symbol_count"`
	PricedSymbols    int       `json:"priced_symbols"`
	BarsSymbols      int       `json:"bars_symbols"`
	TopGainersCount  int       `json:"top_gainers_count"`
	AvgVolatility    *float64  `json:"avg_volatility"`
	VolatilityRegime string    `json:"volatility_regime"`
	DirectionBias    string    `json:"direction_bias"`
	LastUpdated      time.Time `json:"last_updated"`
}

// ContextTracker maintains the most recent MarketContext, updated each
// time a MarketDataReady event is observed and otherwise held steady for
// every event in between.
type ContextTracker struct {
	current MarketContext
}

// NewContextTracker returns a tracker with an empty, "unknown" context.
func NewContextTracker() *ContextTracker {
	return &ContextTracker{current: MarketContext{VolatilityRegime: "unknown", DirectionBias: "unknown"}}
}

// Update recomputes the context from a MarketDataReady event and returns it.
func (t *ContextTracker) Update(e *events.MarketDataReady) MarketContext {
	avgVol, direction := summarizeBars(e.Bars)
	t.current = MarketContext{
		MarketOpen:       e.MarketOpen,
		SymbolCount:      len(e.Symbols),
		PricedSymbols:    len(e.Prices),
		BarsSymbols:      len(e.Bars),
		TopGainersCount:  len(e.TopGainers),
		AvgVolatility:    avgVol,
		VolatilityRegime: categorizeVolatility(avgVol),
		DirectionBias:    direction,
		LastUpdated:      time.Now().UTC(),
	}
	return t.current
}

// Current returns the last computed context without updating it.
func (t *ContextTracker) Current() MarketContext { return t.current }

func summarizeBars(bars map[string]events.BarSeries) (*float64, string) {
	var volatilities []float64
	var directions []float64

	for _, series := range bars {
		closes := orderedValues(series.Close)
		if len(closes) < 3 {
			continue
		}

		var returns []float64
		for i := 1; i < len(closes); i++ {
			if closes[i-1] != 0 {
				returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
			}
		}
		if len(returns) < 2 {
			continue
		}
		volatilities = append(volatilities, stdev(returns))

		var trend float64
		if closes[0] != 0 {
			trend = (closes[len(closes)-1] - closes[0]) / closes[0]
		}
		directions = append(directions, trend)
	}

	var avgVol *float64
	if len(volatilities) > 0 {
		v := mean(volatilities)
		avgVol = &v
	}

	return avgVol, categorizeDirection(directions)
}

func orderedValues(m map[int]float64) []float64 {
	if len(m) == 0 {
		return nil
	}
	indices := make([]int, 0, len(m))
	for i := range m {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	out := make([]float64, len(indices))
	for i, idx := range indices {
		out[i] = m[idx]
	}
	return out
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

func categorizeVolatility(avgVol *float64) string {
	if avgVol == nil {
		return "unknown"
	}
	switch {
	case *avgVol < 0.01:
		return "low"
	case *avgVol < 0.02:
		return "normal"
	default:
		return "high"
	}
}

func categorizeDirection(directions []float64) string {
	if len(directions) == 0 {
		return "unknown"
	}
	var positive, negative int
	for _, d := range directions {
		switch {
		case d > 0:
			positive++
		case d < 0:
			negative++
		}
	}
	n := float64(len(directions))
	switch {
	case float64(positive) >= n*0.7:
		return "bullish"
	case float64(negative) >= n*0.7:
		return "bearish"
	default:
		return "mixed"
	}
}

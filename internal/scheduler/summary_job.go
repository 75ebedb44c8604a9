package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/aarel/market-watch/internal/coordinator"
)

// DailySummaryJob logs a one-line daily recap of equity drift and trade
// count for the active universe, reading straight from the analytics
// store's JSONL source of truth rather than the derived index, so it
// stays correct even when the index has fallen behind.
type DailySummaryJob struct {
	appState *coordinator.AppState
	log      zerolog.Logger
}

// NewDailySummaryJob constructs a DailySummaryJob against appState.
func NewDailySummaryJob(appState *coordinator.AppState, log zerolog.Logger) *DailySummaryJob {
	return &DailySummaryJob{
		appState: appState,
		log:      log.With().Str("component", "DailySummaryJob").Logger(),
	}
}

// Name implements Job.
func (j *DailySummaryJob) Name() string { return "daily_summary" }

// Run implements Job.
func (j *DailySummaryJob) Run() error {
	store := j.appState.Store()

	equity, err := store.LoadEquity("1d")
	if err != nil {
		return err
	}
	trades, err := store.LoadTrades("1d", 0)
	if err != nil {
		return err
	}

	var startEquity, endEquity float64
	if len(equity) > 0 {
		startEquity = floatField(equity[0], "equity")
		endEquity = floatField(equity[len(equity)-1], "equity")
	}

	buys, sells := 0, 0
	for _, t := range trades {
		if s, _ := t["side"].(string); s == "buy" {
			buys++
		} else if s == "sell" {
			sells++
		}
	}

	change := endEquity - startEquity
	j.log.Info().
		Str("universe", string(j.appState.Coordinator().Universe())).
		Float64("start_equity", startEquity).
		Float64("end_equity", endEquity).
		Float64("change", change).
		Int("buys", buys).
		Int("sells", sells).
		Msg("daily summary")
	return nil
}

func floatField(rec map[string]any, key string) float64 {
	switch v := rec[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

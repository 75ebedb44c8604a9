// Package screener computes dynamic top-gainers watchlists from broker
// snapshots, independent of any agent so it stays separately testable.
package screener

import (
	"sort"

	"github.com/aarel/market-watch/internal/broker"
)

// namedUniverses maps a top_gainers_universe name to the symbol set the
// top-gainers screen ranks over, independent of the agent's trading
// watchlist. Unknown names fall back to the caller's own watchlist.
var namedUniverses = map[string][]string{
	"large_cap": {
		"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "AVGO",
		"JPM", "V", "UNH", "XOM", "WMT", "MA", "PG", "HD", "COST", "MRK",
	},
	"sp500_sample": {
		"SPY", "QQQ", "AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META",
		"TSLA", "BRK.B", "JPM", "JNJ", "V", "PG", "XOM",
	},
}

// ScreeningUniverse returns the named symbol universe to screen for top
// gainers, or nil if name is unrecognized.
func ScreeningUniverse(name string) []string {
	return namedUniverses[name]
}

// Gainer is one ranked entry from ComputeTopGainers.
type Gainer struct {
	Symbol     string
	Price      float64
	PrevClose  float64
	ChangePct  float64
	Volume     float64
}

func snapshotPrice(s broker.Snapshot) (float64, bool) {
	if s.LatestTradePrice > 0 {
		return s.LatestTradePrice, true
	}
	if s.DailyClose > 0 {
		return s.DailyClose, true
	}
	return 0, false
}

func snapshotVolume(s broker.Snapshot) float64 {
	v := s.DailyVolume
	if s.PrevDailyVolume > v {
		v = s.PrevDailyVolume
	}
	return v
}

// ComputeTopGainers ranks snapshots by daily change percentage, preferring
// entries at or above minVolume; if fewer than limit qualify, the ranking
// is backfilled with the best of the remaining low-volume entries so the
// watchlist still reaches its target size.
func ComputeTopGainers(snapshots map[string]broker.Snapshot, minPrice float64, minVolume float64, limit int) []Gainer {
	var entries, lowVolume []Gainer

	for symbol, snap := range snapshots {
		price, ok := snapshotPrice(snap)
		if !ok {
			continue
		}
		prevClose := snap.PrevDailyClose
		if prevClose <= 0 {
			continue
		}
		if price < minPrice {
			continue
		}

		volume := snapshotVolume(snap)
		changePct := (price - prevClose) / prevClose
		entry := Gainer{Symbol: symbol, Price: price, PrevClose: prevClose, ChangePct: changePct, Volume: volume}

		if volume >= minVolume {
			entries = append(entries, entry)
		} else {
			lowVolume = append(lowVolume, entry)
		}
	}

	sortByChangeDesc(entries)
	if len(entries) < limit && len(lowVolume) > 0 {
		sortByChangeDesc(lowVolume)
		needed := limit - len(entries)
		if needed > len(lowVolume) {
			needed = len(lowVolume)
		}
		entries = append(entries, lowVolume[:needed]...)
	}

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

func sortByChangeDesc(entries []Gainer) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ChangePct > entries[j].ChangePct
	})
}

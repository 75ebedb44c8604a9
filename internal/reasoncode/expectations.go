package reasoncode

import "time"

// TickExpectation tracks how long it has been since the last
// MarketDataReady tick and flags staleness once MaxGap has elapsed.
// Market hours are not considered: a gap while the market is closed
// counts the same as one while it is open.
type TickExpectation struct {
	MaxGap   time.Duration
	lastSeen time.Time
}

// NewTickExpectation returns a TickExpectation that flags staleness once
// more than maxGap has elapsed since the last call to Observe.
func NewTickExpectation(maxGap time.Duration) *TickExpectation {
	return &TickExpectation{MaxGap: maxGap}
}

// Observe records a tick at timestamp.
func (te *TickExpectation) Observe(timestamp time.Time) {
	te.lastSeen = timestamp
}

// Stale reports whether more than MaxGap has elapsed between the last
// observed tick and now. Always false before the first Observe call.
func (te *TickExpectation) Stale(now time.Time) bool {
	if te.lastSeen.IsZero() {
		return false
	}
	return now.Sub(te.lastSeen) > te.MaxGap
}

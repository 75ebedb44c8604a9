package analytics

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarel/market-watch/internal/universe"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return &Store{
		u:          universe.Simulation,
		log:        zerolog.Nop(),
		equityPath: filepath.Join(dir, "equity.jsonl"),
		tradesPath: filepath.Join(dir, "trades.jsonl"),
	}
}

func TestRecordEquityRejectsMissingSessionID(t *testing.T) {
	s := newTestStore(t)
	err := s.RecordEquity(Record{"equity": 1000.0})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaValidation)
}

func TestRecordEquityRejectsUniverseMismatch(t *testing.T) {
	s := newTestStore(t)
	err := s.RecordEquity(Record{"session_id": "s1", "universe": "live", "equity": 1000.0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "universe mismatch")
}

func TestRecordEquityDefaultsLineageAndValidity(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordEquity(Record{"session_id": "s1", "equity": 1000.0}))

	rows, err := s.LoadEquity("all")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "unknown_lineage", rows[0]["data_lineage_id"])
	assert.Equal(t, "SIM_VALID_FOR_TRAINING", rows[0]["validity_class"])
	assert.Equal(t, "simulation", rows[0]["universe"])
}

func TestRecordTradeRequiresValidSide(t *testing.T) {
	s := newTestStore(t)
	err := s.RecordTrade(Record{"session_id": "s1", "symbol": "AAPL", "side": "short"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid 'side'")
}

func TestRecordTradeRequiresSymbol(t *testing.T) {
	s := newTestStore(t)
	err := s.RecordTrade(Record{"session_id": "s1", "side": "buy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing 'symbol'")
}

func TestRecordTradeAppendsSuccessfully(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordTrade(Record{
		"session_id": "s1",
		"symbol":     "AAPL",
		"side":       "buy",
		"qty":        10.0,
		"price":      150.0,
	}))

	rows, err := s.LoadTrades("all", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "AAPL", rows[0]["symbol"])
}

func TestLoadTradesRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordTrade(Record{
			"session_id": "s1",
			"symbol":     "AAPL",
			"side":       "buy",
		}))
	}

	rows, err := s.LoadTrades("all", 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRecordEquityEmptySnapshotIsNoop(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordEquity(nil))

	rows, err := s.LoadEquity("all")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

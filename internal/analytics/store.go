// Package analytics implements the append-only, universe-scoped JSONL
// persistence layer for equity snapshots and trades, plus a derived
// sqlite index rebuilt from that JSONL source of truth.
package analytics

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aarel/market-watch/internal/universe"
)

// Record is a loosely-typed analytics row, mirroring the flexible JSON
// object shape equity snapshots and trades are recorded as.
type Record map[string]any

// ErrSchemaValidation is returned when a record fails the write-side
// schema contract. Violations are never silently dropped.
var ErrSchemaValidation = errors.New("analytics: schema validation failed")

func schemaErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaValidation, fmt.Sprintf(format, args...))
}

// Store persists equity snapshots and trades to per-universe JSONL files.
type Store struct {
	u    universe.Universe
	log  zerolog.Logger

	equityPath string
	tradesPath string

	equityMu sync.Mutex
	tradesMu sync.Mutex

	index *Index // optional derived sqlite index, nil when disabled
}

// New constructs a Store scoped to u, rooted at logs/<u>/.
func New(u universe.Universe, log zerolog.Logger) (*Store, error) {
	basePath := universe.LogPath(u, "")
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("analytics: create base dir: %w", err)
	}

	return &Store{
		u:          u,
		log:        log.With().Str("component", "AnalyticsStore").Logger(),
		equityPath: universe.LogPath(u, "equity.jsonl"),
		tradesPath: universe.LogPath(u, "trades.jsonl"),
	}, nil
}

// EquityPath returns the path of the append-only equity JSONL file.
func (s *Store) EquityPath() string { return s.equityPath }

// TradesPath returns the path of the append-only trades JSONL file.
func (s *Store) TradesPath() string { return s.tradesPath }

// Universe returns the universe the store is scoped to.
func (s *Store) Universe() universe.Universe { return s.u }

// WithIndex attaches a derived sqlite index that every successful write is
// mirrored into. The JSONL files remain the source of truth; the index
// can always be rebuilt from them via RebuildIndex.
func (s *Store) WithIndex(idx *Index) *Store {
	s.index = idx
	return s
}

// RecordEquity appends an equity snapshot, defaulting and validating its
// provenance fields first. A nil/empty snapshot is a silent no-op,
// matching the contract that a tick with no account data has nothing to
// record.
func (s *Store) RecordEquity(snapshot Record) error {
	if len(snapshot) == 0 {
		return nil
	}
	rec := cloneRecord(snapshot)

	setDefault(rec, "data_lineage_id", "unknown_lineage")
	setDefault(rec, "validity_class", s.u.DefaultValidityClass())

	if _, hasSessionID := rec["session_id"]; !hasSessionID {
		return schemaErr("equity snapshot missing 'session_id' field")
	}

	if existing, ok := rec["universe"]; ok && existing != string(s.u) {
		return schemaErr("equity snapshot universe mismatch: snapshot has %q, store expects %q", existing, s.u)
	}
	rec["universe"] = string(s.u)

	if err := s.validateEquitySchema(rec); err != nil {
		return err
	}

	s.equityMu.Lock()
	defer s.equityMu.Unlock()
	if err := appendJSONL(s.equityPath, rec); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.InsertEquity(rec); err != nil {
			s.log.Error().Err(err).Msg("failed to mirror equity snapshot into derived index")
		}
	}
	return nil
}

// RecordTrade appends a trade record, defaulting and validating its
// provenance and trade-specific fields first.
func (s *Store) RecordTrade(trade Record) error {
	if len(trade) == 0 {
		return nil
	}
	rec := cloneRecord(trade)

	setDefault(rec, "data_lineage_id", "unknown_lineage")
	setDefault(rec, "validity_class", s.u.DefaultValidityClass())

	if _, hasSessionID := rec["session_id"]; !hasSessionID {
		return schemaErr("trade record missing 'session_id' field")
	}

	if existing, ok := rec["universe"]; ok && existing != string(s.u) {
		return schemaErr("trade record universe mismatch: trade has %q, store expects %q", existing, s.u)
	}
	rec["universe"] = string(s.u)

	if err := s.validateTradeSchema(rec); err != nil {
		return err
	}

	s.tradesMu.Lock()
	defer s.tradesMu.Unlock()
	if err := appendJSONL(s.tradesPath, rec); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.InsertTrade(rec); err != nil {
			s.log.Error().Err(err).Msg("failed to mirror trade into derived index")
		}
	}
	return nil
}

func (s *Store) validateEquitySchema(rec Record) error {
	if rec["universe"] != string(s.u) {
		return schemaErr("equity snapshot universe mismatch: snapshot has %q, store expects %q", rec["universe"], s.u)
	}
	sid, _ := rec["session_id"].(string)
	if sid == "" {
		return schemaErr("equity snapshot has empty 'session_id'")
	}
	lineage, _ := rec["data_lineage_id"].(string)
	if lineage == "" {
		return schemaErr("equity snapshot has empty 'data_lineage_id'")
	}
	return nil
}

func (s *Store) validateTradeSchema(rec Record) error {
	if rec["universe"] != string(s.u) {
		return schemaErr("trade record universe mismatch: trade has %q, store expects %q", rec["universe"], s.u)
	}
	sid, _ := rec["session_id"].(string)
	if sid == "" {
		return schemaErr("trade record has empty 'session_id'")
	}
	if _, ok := rec["symbol"]; !ok {
		return schemaErr("trade record missing 'symbol' field")
	}
	side, _ := rec["side"].(string)
	if side != "buy" && side != "sell" {
		return schemaErr("trade record has invalid 'side': %q, must be 'buy' or 'sell'", side)
	}
	lineage, _ := rec["data_lineage_id"].(string)
	if lineage == "" {
		return schemaErr("trade record has empty 'data_lineage_id'")
	}
	vc, _ := rec["validity_class"].(string)
	if vc == "" {
		return schemaErr("trade record missing 'validity_class' field")
	}
	return nil
}

// LoadEquity returns recorded equity snapshots within period (see
// ParsePeriodCutoff).
func (s *Store) LoadEquity(period string) ([]Record, error) {
	cutoff, err := ParsePeriodCutoff(period)
	if err != nil {
		return nil, err
	}
	return readJSONL(s.equityPath, cutoff)
}

// LoadTrades returns up to limit of the most recent trades within period.
// A non-positive limit returns every matching trade.
func (s *Store) LoadTrades(period string, limit int) ([]Record, error) {
	cutoff, err := ParsePeriodCutoff(period)
	if err != nil {
		return nil, err
	}
	trades, err := readJSONL(s.tradesPath, cutoff)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	return trades, nil
}

func cloneRecord(r Record) Record {
	out := make(Record, len(r)+2)
	for k, v := range r {
		out[k] = v
	}
	return out
}

func setDefault(r Record, key string, value any) {
	if _, ok := r[key]; !ok {
		r[key] = value
	}
}

func appendJSONL(path string, rec Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("analytics: mkdir for %s: %w", path, err)
	}
	if _, ok := rec["timestamp"]; !ok {
		rec["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("analytics: open %s: %w", path, err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("analytics: encode record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("analytics: write %s: %w", path, err)
	}
	return nil
}

func readJSONL(path string, cutoff *time.Time) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("analytics: open %s: %w", path, err)
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if cutoff != nil {
			if ts, ok := parseTimestamp(rec["timestamp"]); ok && ts.Before(*cutoff) {
				continue
			}
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("analytics: scan %s: %w", path, err)
	}
	return out, nil
}

func parseTimestamp(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

package analytics

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aarel/market-watch/internal/database"
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS equity_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	session_id TEXT NOT NULL,
	universe TEXT NOT NULL,
	equity REAL,
	cash REAL,
	buying_power REAL
);
CREATE INDEX IF NOT EXISTS idx_equity_timestamp ON equity_snapshots(timestamp);

CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	session_id TEXT NOT NULL,
	universe TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	qty REAL,
	price REAL
);
CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
`

// Index is a derived, rebuildable sqlite mirror of the JSONL source of
// truth. It exists purely to support fast range/aggregate queries; losing
// it is never a correctness problem since RebuildIndex replays the JSONL
// files in full.
type Index struct {
	db *database.DB
}

// OpenIndex opens (creating if necessary) the sqlite index database at
// path and ensures its schema exists.
func OpenIndex(ctx context.Context, path string) (*Index, error) {
	db, err := database.New(database.Config{
		Name:    "analytics_index",
		Path:    path,
		Profile: database.ProfileCache,
	})
	if err != nil {
		return nil, fmt.Errorf("analytics: open index db: %w", err)
	}
	if err := db.Migrate(indexSchema); err != nil {
		return nil, fmt.Errorf("analytics: migrate index schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close closes the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// InsertEquity mirrors an equity snapshot record into the index.
func (idx *Index) InsertEquity(rec Record) error {
	_, err := idx.db.Exec(
		`INSERT INTO equity_snapshots (timestamp, session_id, universe, equity, cash, buying_power) VALUES (?, ?, ?, ?, ?, ?)`,
		stringField(rec, "timestamp"),
		stringField(rec, "session_id"),
		stringField(rec, "universe"),
		floatField(rec, "equity"),
		floatField(rec, "cash"),
		floatField(rec, "buying_power"),
	)
	return err
}

// InsertTrade mirrors a trade record into the index.
func (idx *Index) InsertTrade(rec Record) error {
	_, err := idx.db.Exec(
		`INSERT INTO trades (timestamp, session_id, universe, symbol, side, qty, price) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		stringField(rec, "timestamp"),
		stringField(rec, "session_id"),
		stringField(rec, "universe"),
		stringField(rec, "symbol"),
		stringField(rec, "side"),
		floatField(rec, "qty"),
		floatField(rec, "price"),
	)
	return err
}

// Rebuild wipes and repopulates the index from the given equity and trade
// records, which callers are expected to have loaded fresh from the JSONL
// source of truth.
func (idx *Index) Rebuild(ctx context.Context, equity, trades []Record) error {
	return database.WithTransaction(idx.db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM equity_snapshots`); err != nil {
			return fmt.Errorf("clear equity_snapshots: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM trades`); err != nil {
			return fmt.Errorf("clear trades: %w", err)
		}
		for _, rec := range equity {
			if _, err := tx.Exec(
				`INSERT INTO equity_snapshots (timestamp, session_id, universe, equity, cash, buying_power) VALUES (?, ?, ?, ?, ?, ?)`,
				stringField(rec, "timestamp"), stringField(rec, "session_id"), stringField(rec, "universe"),
				floatField(rec, "equity"), floatField(rec, "cash"), floatField(rec, "buying_power"),
			); err != nil {
				return fmt.Errorf("reinsert equity snapshot: %w", err)
			}
		}
		for _, rec := range trades {
			if _, err := tx.Exec(
				`INSERT INTO trades (timestamp, session_id, universe, symbol, side, qty, price) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				stringField(rec, "timestamp"), stringField(rec, "session_id"), stringField(rec, "universe"),
				stringField(rec, "symbol"), stringField(rec, "side"), floatField(rec, "qty"), floatField(rec, "price"),
			); err != nil {
				return fmt.Errorf("reinsert trade: %w", err)
			}
		}
		return nil
	})
}

// RebuildIndex reloads every equity snapshot and trade from the store's
// JSONL files and repopulates idx from scratch.
func (s *Store) RebuildIndex(ctx context.Context, idx *Index) error {
	equity, err := s.LoadEquity("all")
	if err != nil {
		return fmt.Errorf("analytics: load equity for rebuild: %w", err)
	}
	trades, err := s.LoadTrades("all", 0)
	if err != nil {
		return fmt.Errorf("analytics: load trades for rebuild: %w", err)
	}
	return idx.Rebuild(ctx, equity, trades)
}

func stringField(rec Record, key string) string {
	s, _ := rec[key].(string)
	return s
}

func floatField(rec Record, key string) float64 {
	switch v := rec[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

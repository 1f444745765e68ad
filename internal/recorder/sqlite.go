package recorder

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists refresh history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps ":memory:" databases alive across calls
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS refresh_runs (
			run_id             TEXT PRIMARY KEY,
			timestamp          INTEGER NOT NULL,
			kind               TEXT NOT NULL,
			trigger_source     TEXT NOT NULL,
			status             TEXT NOT NULL,
			duration_ms        INTEGER,
			updated_tickers    TEXT,
			total_market_value TEXT,
			error              TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_ts ON refresh_runs(timestamp)`,

		`CREATE TABLE IF NOT EXISTS refresh_valuations (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id       TEXT NOT NULL REFERENCES refresh_runs(run_id),
			ticker       TEXT NOT NULL,
			broker       TEXT NOT NULL,
			quantity     TEXT NOT NULL,
			last_price   TEXT,
			market_value TEXT,
			performance  TEXT,
			stale        INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_valuations_run ON refresh_valuations(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordRefresh stores the run and its per-holding valuation in one transaction.
// Decimals are stored as text to keep them exact.
func (r *SQLiteRecorder) RecordRefresh(evt *RefreshEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO refresh_runs
		(run_id, timestamp, kind, trigger_source, status, duration_ms, updated_tickers, total_market_value, error)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		evt.RunID, evt.StartedAt.Unix(), evt.Kind, evt.Trigger, evt.Status,
		evt.Duration.Milliseconds(), strings.Join(evt.Updated, ","),
		evt.TotalMarketValue.String(), nullable(evt.Error),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, row := range evt.Rows {
		m := row.Metrics
		var price, value, perf any
		stale := 0
		if m.Stale {
			stale = 1
		}
		if m.LastPrice != nil {
			price = m.LastPrice.String()
		}
		if m.MarketValue != nil {
			value = m.MarketValue.String()
		}
		if m.Performance != nil {
			perf = m.Performance.String()
		}
		if _, err := tx.Exec(`INSERT INTO refresh_valuations
			(run_id, ticker, broker, quantity, last_price, market_value, performance, stale)
			VALUES (?,?,?,?,?,?,?,?)`,
			evt.RunID, row.Holding.Ticker, row.Holding.Broker, row.Holding.Quantity.String(),
			price, value, perf, stale,
		); err != nil {
			return fmt.Errorf("insert valuation: %w", err)
		}
	}
	return tx.Commit()
}

// CountRuns returns how many runs with status were recorded.
func (r *SQLiteRecorder) CountRuns(status string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM refresh_runs WHERE status = ?`, status).Scan(&n)
	return n, err
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Package persistence provides the SQLite-backed observation sink.
// Records arrive on a queue fed by all workers and are written by one
// dedicated consumer goroutine, so the simulation never blocks on disk
// and the writer never feeds back into the run.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/agora/internal/sink"
)

const queueDepth = 4096

// SQLiteSink implements sink.Sink over a SQLite database.
type SQLiteSink struct {
	conn  *sqlx.DB
	runID string

	queue chan sink.Record
	done  chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Open opens or creates the sink database at path, tags all rows with
// runID, and starts the consumer goroutine.
func Open(path, runID string) (*SQLiteSink, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sink db: %w", err)
	}

	s := &SQLiteSink{
		conn:  conn,
		runID: runID,
		queue: make(chan sink.Record, queueDepth),
		done:  make(chan struct{}),
	}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate sink db: %w", err)
	}
	if _, err := conn.Exec("INSERT INTO runs (run_id) VALUES (?)", runID); err != nil {
		conn.Close()
		return nil, fmt.Errorf("register run: %w", err)
	}
	go s.consume()
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS panel (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		subround TEXT NOT NULL,
		grp TEXT NOT NULL,
		agent INTEGER NOT NULL,
		data_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS aggregate (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		grp TEXT NOT NULL,
		data_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		good TEXT NOT NULL,
		seller TEXT NOT NULL,
		buyer TEXT NOT NULL,
		price REAL NOT NULL,
		quantity REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_panel_round ON panel(run_id, round);
	CREATE INDEX IF NOT EXISTS idx_trades_round ON trades(run_id, round);
	CREATE INDEX IF NOT EXISTS idx_trades_good ON trades(run_id, good);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Put queues a record. It never waits for the write to land; it only
// blocks if the queue itself is full, applying backpressure instead of
// dropping observations.
func (s *SQLiteSink) Put(r sink.Record) {
	s.queue <- r
}

// Close flushes the queue and closes the database. Safe to call once;
// Put must not be called after Close.
func (s *SQLiteSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.queue)
		<-s.done
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// consume drains the queue until Close. Write errors are logged, not
// propagated: the sink never aborts a simulation.
func (s *SQLiteSink) consume() {
	defer close(s.done)
	for r := range s.queue {
		if err := s.write(r); err != nil {
			slog.Error("sink write failed", "error", err)
		}
	}
}

func (s *SQLiteSink) write(r sink.Record) error {
	switch rec := r.(type) {
	case sink.Panel:
		data, err := json.Marshal(rec.Data)
		if err != nil {
			return fmt.Errorf("marshal panel data: %w", err)
		}
		_, err = s.conn.Exec(
			`INSERT INTO panel (run_id, round, subround, grp, agent, data_json)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			s.runID, rec.Round, rec.Subround, rec.Group, rec.Agent, string(data),
		)
		return err

	case sink.Aggregate:
		data, err := json.Marshal(rec.Data)
		if err != nil {
			return fmt.Errorf("marshal aggregate data: %w", err)
		}
		_, err = s.conn.Exec(
			`INSERT INTO aggregate (run_id, round, grp, data_json)
			 VALUES (?, ?, ?, ?)`,
			s.runID, rec.Round, rec.Group, string(data),
		)
		return err

	case sink.Trades:
		tx, err := s.conn.Beginx()
		if err != nil {
			return err
		}
		defer tx.Rollback()
		for key, qty := range rec.Counts {
			_, err := tx.Exec(
				`INSERT INTO trades (run_id, round, good, seller, buyer, price, quantity)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				s.runID, rec.Round, key.Good, key.Seller, key.Buyer, key.Price, qty,
			)
			if err != nil {
				return err
			}
		}
		return tx.Commit()
	}
	return fmt.Errorf("unknown record type %T", r)
}

// Trade is one settled-trade row, for inspection tools and tests.
type Trade struct {
	Round    int     `db:"round"`
	Good     string  `db:"good"`
	Seller   string  `db:"seller"`
	Buyer    string  `db:"buyer"`
	Price    float64 `db:"price"`
	Quantity float64 `db:"quantity"`
}

// RecentTrades returns the most recent trade rows, newest first.
func RecentTrades(conn *sqlx.DB, limit int) ([]Trade, error) {
	var trades []Trade
	err := conn.Select(&trades,
		`SELECT round, good, seller, buyer, price, quantity
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	return trades, err
}

// GoodVolume is total traded quantity for one good.
type GoodVolume struct {
	Good     string  `db:"good"`
	Quantity float64 `db:"quantity"`
	Trades   int     `db:"trades"`
}

// Volumes returns per-good traded totals across the whole database.
func Volumes(conn *sqlx.DB) ([]GoodVolume, error) {
	var vols []GoodVolume
	err := conn.Select(&vols,
		`SELECT good, SUM(quantity) AS quantity, COUNT(*) AS trades
		 FROM trades GROUP BY good ORDER BY quantity DESC`)
	return vols, err
}

// Run is one registered simulation run.
type Run struct {
	RunID     string `db:"run_id"`
	StartedAt string `db:"started_at"`
	Trades    int    `db:"trades"`
}

// Runs returns every registered run with its trade row count, newest
// first.
func Runs(conn *sqlx.DB) ([]Run, error) {
	var runs []Run
	err := conn.Select(&runs,
		`SELECT r.run_id, r.started_at, COUNT(t.id) AS trades
		 FROM runs r LEFT JOIN trades t ON t.run_id = r.run_id
		 GROUP BY r.run_id ORDER BY r.started_at DESC`)
	return runs, err
}

// AggregateRow is one group-level snapshot row.
type AggregateRow struct {
	RunID string `db:"run_id"`
	Round int    `db:"round"`
	Group string `db:"grp"`
	Data  string `db:"data_json"`
}

// Aggregates returns aggregate rows, optionally filtered by group,
// newest first.
func Aggregates(conn *sqlx.DB, group string, limit int) ([]AggregateRow, error) {
	var rows []AggregateRow
	if group != "" {
		err := conn.Select(&rows,
			`SELECT run_id, round, grp, data_json FROM aggregate
			 WHERE grp = ? ORDER BY id DESC LIMIT ?`, group, limit)
		return rows, err
	}
	err := conn.Select(&rows,
		`SELECT run_id, round, grp, data_json FROM aggregate
		 ORDER BY id DESC LIMIT ?`, limit)
	return rows, err
}

// PanelRow is one agent's logged data row.
type PanelRow struct {
	RunID    string `db:"run_id"`
	Round    int    `db:"round"`
	Subround string `db:"subround"`
	Group    string `db:"grp"`
	Agent    int    `db:"agent"`
	Data     string `db:"data_json"`
}

// PanelRows returns panel rows for one group, newest first.
func PanelRows(conn *sqlx.DB, group string, limit int) ([]PanelRow, error) {
	var rows []PanelRow
	err := conn.Select(&rows,
		`SELECT run_id, round, subround, grp, agent, data_json FROM panel
		 WHERE grp = ? ORDER BY id DESC LIMIT ?`, group, limit)
	return rows, err
}

// OpenReadOnly opens an existing sink database for inspection.
func OpenReadOnly(path string) (*sqlx.DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sink db: %w", err)
	}
	return conn, nil
}

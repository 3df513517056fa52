// Package results keeps a history of comparison reports in SQLite so runs
// can be listed and reloaded without re-parsing their logs.
package results

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/saveenergy/cbsreport/internal/logging"
	"github.com/saveenergy/cbsreport/pkg/types"
)

const DefaultMaxRuns = 1000

// ErrStoreRetryable marks failures caused by a locked database.
var ErrStoreRetryable = errors.New("history store busy")

// Run is the listing view of a stored report.
type Run struct {
	ID            string    `json:"id"`
	LogTimestamp  string    `json:"log_timestamp"`
	GeneratedAt   time.Time `json:"generated_at"`
	ScenarioCount int       `json:"scenario_count"`
	AbsentCount   int       `json:"absent_count"`
}

type Store struct {
	db        *sql.DB
	maxRuns   int
	closeOnce sync.Once
}

func New(dbPath string, maxRuns int) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// modernc.org/sqlite requires explicit PRAGMAs (not query-string params)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	return &Store{db: db, maxRuns: maxRuns}, nil
}

func (s *Store) Close() {
	s.closeOnce.Do(func() {
		if err := s.db.Close(); err != nil {
			logging.Warn("history store: close failed", logging.Err(err))
		}
	})
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		log_timestamp TEXT NOT NULL,
		generated_at TIMESTAMP NOT NULL,
		scenario_count INTEGER NOT NULL,
		absent_count INTEGER NOT NULL,
		report_json TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_generated_at ON runs(generated_at)`)
	return err
}

// Save stores the report under its ID, replacing an earlier save of the
// same run, then trims the oldest runs beyond the configured maximum.
func (s *Store) Save(r types.ComparisonReport) error {
	if r.ID == "" {
		return fmt.Errorf("report id cannot be empty")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO runs (id, log_timestamp, generated_at, scenario_count, absent_count, report_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.LogTimestamp, r.GeneratedAt.UTC(), len(r.Scenarios), r.AbsentCount(), string(data),
	)
	if err != nil {
		return wrapStoreError("insert run", err)
	}

	s.trim()
	return nil
}

// Get returns nil, nil when no run has the given ID.
func (s *Store) Get(id string) (*types.ComparisonReport, error) {
	var data string
	err := s.db.QueryRow(`SELECT report_json FROM runs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreError("query run", err)
	}

	var r types.ComparisonReport
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &r, nil
}

// List returns up to limit runs, newest first. limit <= 0 lists all.
func (s *Store) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, log_timestamp, generated_at, scenario_count, absent_count
		FROM runs ORDER BY generated_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, wrapStoreError("list runs", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.LogTimestamp, &r.GeneratedAt, &r.ScenarioCount, &r.AbsentCount); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("list runs", err)
	}
	return runs, nil
}

func (s *Store) trim() {
	res, err := s.db.Exec(
		`DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY generated_at DESC, id LIMIT ?
		)`, s.maxRuns)
	if err != nil {
		logging.Warn("history trim failed", logging.Err(err))
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logging.Info("history trimmed to max",
			logging.Field{Key: "removed", Value: n},
			logging.Field{Key: "max", Value: s.maxRuns})
	}
}

func wrapStoreError(op string, err error) error {
	if isBusy(err) {
		return fmt.Errorf("%s: %w", op, errors.Join(ErrStoreRetryable, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

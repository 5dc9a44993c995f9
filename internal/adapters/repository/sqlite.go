package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite" // database/sql driver "sqlite"

	"github.com/okian/conjunction/internal/domain/model"
	"github.com/okian/conjunction/pkg/metrics"
)

const timeLayout = time.RFC3339Nano

// SQLiteStore records refresh runs and their decisions.
type SQLiteStore struct {
	db          *sql.DB
	busyTimeout time.Duration
	retention   int
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(ctx context.Context, path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	s := &SQLiteStore{busyTimeout: defaultBusyTimeout, retention: defaultRetention}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrStorage, path, err)
	}
	// One connection keeps pragmas in effect and serializes writers.
	db.SetMaxOpenConns(1)
	s.db = db

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`PRAGMA busy_timeout = %d;`, s.busyTimeout.Milliseconds()),
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS runs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL UNIQUE,
			reason TEXT,
			source TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			events INTEGER NOT NULL,
			error TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS decisions (
			run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			event_key TEXT NOT NULL,
			status TEXT NOT NULL,
			trend TEXT NOT NULL,
			forecast REAL,
			certainty REAL NOT NULL,
			hours_to_decision REAL NOT NULL,
			overdue INTEGER NOT NULL,
			PRIMARY KEY (run_id, event_key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_key ON decisions(event_key);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate: %w", ErrStorage, err)
		}
	}
	return nil
}

// SaveRun stores the run and its decisions in one transaction, then prunes
// runs beyond the retention limit.
func (s *SQLiteStore) SaveRun(ctx context.Context, run Run, recs map[string]model.DecisionRecord) (err error) {
	defer func() {
		if err != nil {
			metrics.RecordStoreError("save_run")
		}
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrStorage, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs(run_id, reason, source, started_at, finished_at, events, error) VALUES(?,?,?,?,?,?,?)`,
		run.ID, run.Reason, run.Source,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
		run.Events, nullString(run.Error),
	); err != nil {
		return fmt.Errorf("%w: insert run %s: %w", ErrStorage, run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO decisions(run_id, event_key, status, trend, forecast, certainty, hours_to_decision, overdue) VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare: %w", ErrStorage, err)
	}
	defer stmt.Close()

	keys := make([]string, 0, len(recs))
	for k := range recs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rec := recs[k]
		var forecast sql.NullFloat64
		if rec.ForecastValue != nil {
			forecast = sql.NullFloat64{Float64: *rec.ForecastValue, Valid: true}
		}
		if _, err = stmt.ExecContext(ctx, run.ID, k, string(rec.Status), string(rec.Trend),
			forecast, rec.Certainty, rec.HoursToDecision, rec.Overdue); err != nil {
			return fmt.Errorf("%w: insert decision %s: %w", ErrStorage, k, err)
		}
	}

	if s.retention > 0 {
		if _, err = tx.ExecContext(ctx,
			`DELETE FROM runs WHERE seq NOT IN (SELECT seq FROM runs ORDER BY seq DESC LIMIT ?)`,
			s.retention); err != nil {
			return fmt.Errorf("%w: prune: %w", ErrStorage, err)
		}
		if _, err = tx.ExecContext(ctx,
			`DELETE FROM decisions WHERE run_id NOT IN (SELECT run_id FROM runs)`); err != nil {
			return fmt.Errorf("%w: prune decisions: %w", ErrStorage, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrStorage, err)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, reason, source, started_at, finished_at, events, error FROM runs ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		metrics.RecordStoreError("runs")
		return nil, fmt.Errorf("%w: query runs: %w", ErrStorage, err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			reason, source    sql.NullString
			started, finished string
			runErr            sql.NullString
		)
		if err := rows.Scan(&r.ID, &reason, &source, &started, &finished, &r.Events, &runErr); err != nil {
			return nil, fmt.Errorf("%w: scan run: %w", ErrStorage, err)
		}
		r.Reason, r.Source, r.Error = reason.String, source.String, runErr.String
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("%w: run %s started_at: %w", ErrStorage, r.ID, err)
		}
		if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("%w: run %s finished_at: %w", ErrStorage, r.ID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return out, nil
}

// History returns one event's decisions across runs, newest first.
func (s *SQLiteStore) History(ctx context.Context, key string, limit int) ([]HistoryEntry, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.run_id, r.finished_at, d.event_key, d.status, d.trend, d.forecast, d.certainty, d.hours_to_decision, d.overdue
		   FROM decisions d JOIN runs r ON r.run_id = d.run_id
		  WHERE d.event_key = ?
		  ORDER BY r.seq DESC LIMIT ?`, key, limit)
	if err != nil {
		metrics.RecordStoreError("history")
		return nil, fmt.Errorf("%w: query history: %w", ErrStorage, err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			h             HistoryEntry
			at            string
			status, trend string
			forecast      sql.NullFloat64
			overdue       int
		)
		if err := rows.Scan(&h.RunID, &at, &h.Key, &status, &trend, &forecast, &h.Certainty, &h.HoursToDecision, &overdue); err != nil {
			return nil, fmt.Errorf("%w: scan history: %w", ErrStorage, err)
		}
		if h.At, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("%w: history at: %w", ErrStorage, err)
		}
		h.Status, h.Trend = model.Status(status), model.Trend(trend)
		if forecast.Valid {
			v := forecast.Float64
			h.Forecast = &v
		}
		h.Overdue = overdue != 0
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Package history keeps a sqlite ledger of reconciliation outcomes, one
// row per profile per run.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yllada/lynxsync/common"
	"github.com/yllada/lynxsync/vpn"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs(
	run_id   TEXT PRIMARY KEY,
	started  INTEGER NOT NULL,
	finished INTEGER NOT NULL,
	failed   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes(
	run_id     TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	label      TEXT NOT NULL,
	profile_id TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	server     TEXT NOT NULL,
	load       INTEGER NOT NULL,
	error_kind TEXT NOT NULL,
	error      TEXT NOT NULL,
	ts         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_ts ON outcomes(ts);
CREATE INDEX IF NOT EXISTS idx_outcomes_profile ON outcomes(profile_id);
`

// Entry is one recorded profile outcome.
type Entry struct {
	RunID     string
	Time      time.Time
	Label     string
	ProfileID string
	Outcome   string
	Server    string
	Load      int
	ErrorKind string
	Error     string
}

// Ledger records run reports. It implements vpn.Observer.
type Ledger struct {
	db        *sql.DB
	path      string
	retention time.Duration
	log       common.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithRetention makes Observe prune entries older than d, measured from
// the observed run. Zero keeps everything.
func WithRetention(d time.Duration) Option {
	return func(l *Ledger) {
		l.retention = d
	}
}

// WithLogger sets the logger.
func WithLogger(log common.Logger) Option {
	return func(l *Ledger) {
		l.log = log
	}
}

// Open opens (creating if needed) the ledger at path.
func Open(ctx context.Context, path string, opts ...Option) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: ping %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	l := &Ledger{db: db, path: path, log: common.GetLogger()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Path returns the ledger location.
func (l *Ledger) Path() string {
	return l.path
}

// Observe records every result of report in one transaction.
func (l *Ledger) Observe(ctx context.Context, report *vpn.Report) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := report.Finished.UnixMilli()
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs(run_id, started, finished, failed) VALUES(?,?,?,?)`,
		report.RunID, report.Started.UnixMilli(), ts, report.Failed()); err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outcomes(run_id, seq, label, profile_id, outcome, server, load, error_kind, error, ts) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("history: prepare: %w", err)
	}
	defer stmt.Close()

	for i, res := range report.Results {
		var server string
		var load int
		if res.Settings != nil {
			server, load = res.Settings.ServerName, res.Settings.Load.Percent
		}
		errText := ""
		if res.Err != nil {
			errText = res.Err.Error()
		}
		if _, err := stmt.ExecContext(ctx, report.RunID, i, res.Label, res.ProfileID,
			res.Outcome.String(), server, load, common.FailureKind(res.Err), errText, ts); err != nil {
			return fmt.Errorf("history: insert outcome: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}

	if l.retention > 0 {
		n, err := l.Prune(ctx, report.Finished.Add(-l.retention))
		if err != nil {
			return err
		}
		if n > 0 {
			l.log.Debug("History: pruned %d entries older than %s", n, l.retention)
		}
	}
	return nil
}

// Recent returns up to n entries, newest run first and in run order
// within a run.
func (l *Ledger) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return []Entry{}, nil
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, ts, label, profile_id, outcome, server, load, error_kind, error
		 FROM outcomes ORDER BY ts DESC, run_id, seq LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ForProfile returns the outcomes recorded for profileID, newest first.
func (l *Ledger) ForProfile(ctx context.Context, profileID string, n int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, ts, label, profile_id, outcome, server, load, error_kind, error
		 FROM outcomes WHERE profile_id = ? ORDER BY ts DESC LIMIT ?`, profileID, n)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Prune deletes entries older than before and returns how many went.
func (l *Ledger) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM outcomes WHERE ts < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, `DELETE FROM runs WHERE finished < ?`, before.UnixMilli()); err != nil {
		return 0, fmt.Errorf("history: prune runs: %w", err)
	}
	return res.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	entries := []Entry{}
	for rows.Next() {
		var (
			e  Entry
			ts int64
		)
		if err := rows.Scan(&e.RunID, &ts, &e.Label, &e.ProfileID, &e.Outcome, &e.Server, &e.Load, &e.ErrorKind, &e.Error); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Time = time.UnixMilli(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

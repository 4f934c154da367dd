// Package ledger records patch runs in a SQLite database so that repeat
// runs against the same project can be detected and past runs listed.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

var log = commonlog.GetLogger("smalimod.ledger")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCommitted = "committed"
	StatusDryRun    = "dry-run"
	StatusFailed    = "failed"
)

var sqlOpen = sql.Open

var schema = []string{`
CREATE TABLE IF NOT EXISTS runs (
	id       TEXT PRIMARY KEY,
	patchset TEXT NOT NULL,
	root     TEXT NOT NULL,
	dry_run  INTEGER NOT NULL,
	started  TEXT NOT NULL,
	finished TEXT,
	status   TEXT NOT NULL,
	message  TEXT NOT NULL DEFAULT ''
)`, `
CREATE TABLE IF NOT EXISTS classes (
	run_id TEXT NOT NULL REFERENCES runs(id),
	seq    INTEGER NOT NULL,
	path   TEXT NOT NULL,
	edits  INTEGER NOT NULL,
	entries_before INTEGER NOT NULL,
	entries_after  INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
)`}

// Ledger is an open run history.
type Ledger struct {
	db   *sql.DB
	path string
}

// Run is one recorded invocation.
type Run struct {
	ID       string
	PatchSet string
	Root     string
	DryRun   bool
	Started  time.Time
	Finished time.Time // zero while running
	Status   string
	Message  string
}

// ClassRecord is one class patched during a run. Before and After count
// entries across all of the class's methods.
type ClassRecord struct {
	Path   string
	Edits  int
	Before int
	After  int
}

// Open opens or creates the ledger at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sqlOpen("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create ledger tables: %w", err)
		}
	}
	log.Debugf("opened ledger %s", path)
	return &Ledger{db: db, path: path}, nil
}

// Close releases the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the database file.
func (l *Ledger) Path() string {
	return l.path
}

// Begin records the start of a run and returns it with a fresh id.
func (l *Ledger) Begin(patchSet, root string, dryRun bool) (*Run, error) {
	r := &Run{
		ID:       uuid.NewString(),
		PatchSet: patchSet,
		Root:     root,
		DryRun:   dryRun,
		Started:  time.Now().UTC(),
		Status:   StatusRunning,
	}
	_, err := l.db.Exec(`INSERT INTO runs (id, patchset, root, dry_run, started, status) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.PatchSet, r.Root, boolInt(dryRun), formatTime(r.Started), r.Status)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return r, nil
}

// RecordClass adds a patched class to a run, in call order.
func (l *Ledger) RecordClass(runID string, c ClassRecord) error {
	_, err := l.db.Exec(`INSERT INTO classes (run_id, seq, path, edits, entries_before, entries_after)
		VALUES (?, (SELECT COUNT(*) FROM classes WHERE run_id = ?), ?, ?, ?, ?)`,
		runID, runID, c.Path, c.Edits, c.Before, c.After)
	if err != nil {
		return fmt.Errorf("insert class %s: %w", c.Path, err)
	}
	return nil
}

// Finish closes a run. A nil runErr marks it committed (or dry-run);
// otherwise it is marked failed with the error text.
func (l *Ledger) Finish(r *Run, runErr error) error {
	r.Finished = time.Now().UTC()
	switch {
	case runErr != nil:
		r.Status = StatusFailed
		r.Message = runErr.Error()
	case r.DryRun:
		r.Status = StatusDryRun
	default:
		r.Status = StatusCommitted
	}
	_, err := l.db.Exec(`UPDATE runs SET finished = ?, status = ?, message = ? WHERE id = ?`,
		formatTime(r.Finished), r.Status, r.Message, r.ID)
	if err != nil {
		return fmt.Errorf("update run %s: %w", r.ID, err)
	}
	return nil
}

// LastCommitted returns the most recent committed run of patchSet against
// root, if any.
func (l *Ledger) LastCommitted(patchSet, root string) (*Run, bool, error) {
	row := l.db.QueryRow(`SELECT id, patchset, root, dry_run, started, finished, status, message
		FROM runs WHERE patchset = ? AND root = ? AND status = ?
		ORDER BY rowid DESC LIMIT 1`, patchSet, root, StatusCommitted)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

// Runs returns up to limit runs, newest first. A limit <= 0 returns all.
func (l *Ledger) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.Query(`SELECT id, patchset, root, dry_run, started, finished, status, message
		FROM runs ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Classes returns the classes recorded for a run, in order.
func (l *Ledger) Classes(runID string) ([]ClassRecord, error) {
	rows, err := l.db.Query(`SELECT path, edits, entries_before, entries_after FROM classes WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("select classes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ClassRecord
	for rows.Next() {
		var c ClassRecord
		if err := rows.Scan(&c.Path, &c.Edits, &c.Before, &c.After); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r        Run
		dryRun   int
		started  string
		finished sql.NullString
	)
	if err := s.Scan(&r.ID, &r.PatchSet, &r.Root, &dryRun, &started, &finished, &r.Status, &r.Message); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	r.DryRun = dryRun != 0
	var err error
	if r.Started, err = parseTime(started); err != nil {
		return nil, err
	}
	if finished.Valid {
		if r.Finished, err = parseTime(finished.String); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

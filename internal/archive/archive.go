// Package archive provides SQLite cold storage for records evicted from the
// bounded live history window, and for completed verification passes. The
// live JSON store stays small and fast; nothing is truly lost.
package archive

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Archive is a SQLite-backed cold store.
type Archive struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Open initializes the archive database at the given path.
func Open(path string) (*Archive, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	a := &Archive{db: db, path: path}
	if err := a.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS archived_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project TEXT NOT NULL,
		run_id TEXT NOT NULL,
		recorded_at DATETIME NOT NULL,
		payload TEXT NOT NULL,
		archived_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_archived_runs_project ON archived_runs(project);

	CREATE TABLE IF NOT EXISTS verification_passes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		passed INTEGER NOT NULL,
		loops INTEGER NOT NULL,
		confidence REAL NOT NULL,
		report TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize archive schema: %w", err)
	}
	return nil
}

// ArchiveRun stores one evicted run record. The payload is the record's
// JSON encoding, kept opaque so the archive schema never chases the live
// record shape.
func (a *Archive) ArchiveRun(project, runID string, recordedAt time.Time, payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.db.Exec(
		`INSERT INTO archived_runs (project, run_id, recorded_at, payload) VALUES (?, ?, ?, ?)`,
		project, runID, recordedAt.UTC(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to archive run %s/%s: %w", project, runID, err)
	}
	return nil
}

// StorePass records a completed verification pass for later review.
func (a *Archive) StorePass(passed bool, loops int, confidence float64, report []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.db.Exec(
		`INSERT INTO verification_passes (passed, loops, confidence, report) VALUES (?, ?, ?, ?)`,
		passed, loops, confidence, string(report),
	)
	if err != nil {
		return fmt.Errorf("failed to store verification pass: %w", err)
	}
	return nil
}

// ArchivedCount reports how many runs are archived for a project.
func (a *Archive) ArchivedCount(project string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var count int
	err := a.db.QueryRow(
		`SELECT COUNT(*) FROM archived_runs WHERE project = ?`, project,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count archived runs: %w", err)
	}
	return count, nil
}

// ArchivedRun is one archived record as read back from the archive.
type ArchivedRun struct {
	Project    string
	RunID      string
	RecordedAt time.Time
	Payload    string
	ArchivedAt time.Time
}

// ArchivedRuns reads back a project's archived records, oldest first.
func (a *Archive) ArchivedRuns(project string, limit int) ([]ArchivedRun, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := a.db.Query(
		`SELECT project, run_id, recorded_at, payload, archived_at
		 FROM archived_runs WHERE project = ? ORDER BY id ASC LIMIT ?`,
		project, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived runs: %w", err)
	}
	defer rows.Close()

	var out []ArchivedRun
	for rows.Next() {
		var r ArchivedRun
		if err := rows.Scan(&r.Project, &r.RunID, &r.RecordedAt, &r.Payload, &r.ArchivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archived run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

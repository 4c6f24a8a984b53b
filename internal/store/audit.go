// Package store persists refinement session history in SQLite so that
// past generations, their failures, and final outcomes can be inspected
// after the fact.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/digitalex/codeless/internal/generation"
	"github.com/digitalex/codeless/internal/refine"
)

// AuditStore records refinement sessions and every rejected attempt.
// It implements refine.Recorder.
type AuditStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// SessionRecord is one row of the sessions table.
type SessionRecord struct {
	ID              string
	InterfaceSpec   string
	State           string
	Passed          bool
	Diagnostic      string
	TestGenerations int
	ImplGenerations int
	OracleRuns      int
	StartedAt       time.Time
	FinishedAt      time.Time
}

// AttemptRecord is one rejected generation attempt within a session.
type AttemptRecord struct {
	SessionID string
	Track     string
	Seq       int
	Code      string
	Errors    string
	CreatedAt time.Time
}

// Open initializes the audit database at the given path.
func Open(path string) (*AuditStore, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &AuditStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection.
func (s *AuditStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *AuditStore) Path() string {
	return s.dbPath
}

// initialize creates the required tables.
func (s *AuditStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		interface_spec TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'init',
		passed INTEGER NOT NULL DEFAULT 0,
		diagnostic TEXT,
		test_generations INTEGER NOT NULL DEFAULT 0,
		impl_generations INTEGER NOT NULL DEFAULT 0,
		oracle_runs INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		track TEXT NOT NULL,
		seq INTEGER NOT NULL,
		code TEXT NOT NULL,
		errors TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(session_id, track, seq),
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_session ON attempts(session_id);
	CREATE INDEX IF NOT EXISTS idx_attempts_track ON attempts(session_id, track);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Timestamps are stored as RFC3339 text. The sqlite driver hands DATETIME
// columns back as strings, so reads parse rather than scan into time.Time.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SessionStarted inserts the session row at the start of a run.
func (s *AuditStore) SessionStarted(id, interfaceSpec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO sessions (id, interface_spec, started_at) VALUES (?, ?, ?)`,
		id, interfaceSpec, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to record session start: %w", err)
	}
	return nil
}

// AttemptRecorded stores one rejected attempt. seq is 1-based within its
// track.
func (s *AuditStore) AttemptRecorded(id, track string, seq int, attempt generation.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO attempts (session_id, track, seq, code, errors, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, track, seq, attempt.Code, attempt.Errors, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// SessionFinished updates the session row with the final outcome.
func (s *AuditStore) SessionFinished(id string, result *refine.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE sessions
		 SET state = ?, passed = ?, diagnostic = ?,
		     test_generations = ?, impl_generations = ?, oracle_runs = ?,
		     finished_at = ?
		 WHERE id = ?`,
		string(result.State), boolToInt(result.Passed), result.Diagnostic,
		result.TestGenerations, result.ImplGenerations, result.OracleRuns,
		formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to record session finish: %w", err)
	}
	return nil
}

// GetSession loads one session row.
func (s *AuditStore) GetSession(id string) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT id, interface_spec, state, passed, COALESCE(diagnostic, ''),
		        test_generations, impl_generations, oracle_runs,
		        started_at, COALESCE(finished_at, started_at)
		 FROM sessions WHERE id = ?`, id,
	)

	var rec SessionRecord
	var passed int
	var startedAt, finishedAt string
	err := row.Scan(&rec.ID, &rec.InterfaceSpec, &rec.State, &passed, &rec.Diagnostic,
		&rec.TestGenerations, &rec.ImplGenerations, &rec.OracleRuns,
		&startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	rec.Passed = passed != 0
	rec.StartedAt = parseTime(startedAt)
	rec.FinishedAt = parseTime(finishedAt)
	return &rec, nil
}

// ListSessions returns the most recent sessions, newest first.
func (s *AuditStore) ListSessions(limit int) ([]SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, interface_spec, state, passed, COALESCE(diagnostic, ''),
		        test_generations, impl_generations, oracle_runs,
		        started_at, COALESCE(finished_at, started_at)
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var passed int
		var startedAt, finishedAt string
		if err := rows.Scan(&rec.ID, &rec.InterfaceSpec, &rec.State, &passed, &rec.Diagnostic,
			&rec.TestGenerations, &rec.ImplGenerations, &rec.OracleRuns,
			&startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		rec.Passed = passed != 0
		rec.StartedAt = parseTime(startedAt)
		rec.FinishedAt = parseTime(finishedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListAttempts returns a session's attempts in insertion order.
func (s *AuditStore) ListAttempts(sessionID string) ([]AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT session_id, track, seq, code, COALESCE(errors, ''), created_at
		 FROM attempts WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var records []AttemptRecord
	for rows.Next() {
		var rec AttemptRecord
		var createdAt string
		if err := rows.Scan(&rec.SessionID, &rec.Track, &rec.Seq, &rec.Code, &rec.Errors, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		rec.CreatedAt = parseTime(createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

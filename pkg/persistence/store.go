// Package persistence stores run history in SQLite: one row per board
// session and one per executed command. The CLI records every hardware
// session here so flaky boards can be diagnosed after the fact.
package persistence

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	board      TEXT NOT NULL,
	started_at TEXT NOT NULL,
	ended_at   TEXT,
	result     TEXT
);

CREATE TABLE IF NOT EXISTS commands (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	machine    TEXT NOT NULL,
	command    TEXT NOT NULL,
	code       INTEGER NOT NULL,
	output     TEXT NOT NULL,
	ran_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_commands_session ON commands(session_id);
`

// Store is a run-history database handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the run-history database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000", path,
	))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Timestamps use a fixed-width format so lexicographic ORDER BY sorts
// chronologically (RFC3339Nano trims trailing zeros and does not).
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func now() string {
	return time.Now().UTC().Format(timeFormat)
}

// SessionStarted records a new board session.
func (s *Store) SessionStarted(id, board string) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, board, started_at) VALUES (?, ?, ?)`,
		id, board, now(),
	)
	if err != nil {
		return fmt.Errorf("record session start: %w", err)
	}
	return nil
}

// SessionEnded marks a session finished with a result ("ok" or an error
// summary).
func (s *Store) SessionEnded(id, result string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ?, result = ? WHERE id = ?`,
		now(), result, id,
	)
	if err != nil {
		return fmt.Errorf("record session end: %w", err)
	}
	return nil
}

// CommandRan records one executed command and its result.
func (s *Store) CommandRan(sessionID, machine, command string, code int, output string) error {
	_, err := s.db.Exec(
		`INSERT INTO commands (session_id, machine, command, code, output, ran_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, machine, command, code, output, now(),
	)
	if err != nil {
		return fmt.Errorf("record command: %w", err)
	}
	return nil
}

// SessionRecord is one row of run history.
type SessionRecord struct {
	ID        string
	Board     string
	StartedAt string
	EndedAt   string
	Result    string
}

// RecentSessions lists the most recent sessions, newest first.
func (s *Store) RecentSessions(limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, board, started_at, COALESCE(ended_at, ''), COALESCE(result, '')
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var r SessionRecord
		if err := rows.Scan(&r.ID, &r.Board, &r.StartedAt, &r.EndedAt, &r.Result); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Package collector implements a local development collector: the
// ingest API served over HTTP against a sqlite event store. The store's
// UNIQUE event id constraint makes it a faithful test target for the
// exporter's duplicate-key recovery.
package collector

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// Store wraps the sqlite database holding received sessions and events.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serialize writes
}

// ErrDuplicateEvent reports an insert for an already-ingested event id.
var ErrDuplicateEvent = fmt.Errorf("duplicate event id")

// OpenStore opens or creates the collector database at path.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		init_timestamp TEXT NOT NULL,
		end_timestamp TEXT,
		end_state TEXT,
		end_state_reason TEXT,
		tags TEXT,
		event_counts TEXT
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		event_type TEXT NOT NULL,
		init_timestamp TEXT,
		end_timestamp TEXT,
		payload TEXT NOT NULL,
		received_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	);

	CREATE INDEX IF NOT EXISTS idx_events_session
		ON events(session_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// UpsertSession writes or refreshes a session row.
func (s *Store) UpsertSession(payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, _ := payload["session_id"].(string)
	if id == "" {
		return fmt.Errorf("session_id is required")
	}

	_, err := s.db.Exec(`
		INSERT INTO sessions (session_id, init_timestamp, end_timestamp, end_state, end_state_reason, tags, event_counts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			end_timestamp = excluded.end_timestamp,
			end_state = excluded.end_state,
			end_state_reason = excluded.end_state_reason,
			event_counts = excluded.event_counts`,
		id,
		str(payload["init_timestamp"]),
		str(payload["end_timestamp"]),
		str(payload["end_state"]),
		str(payload["end_state_reason"]),
		encode(payload["tags"]),
		encode(payload["event_counts"]),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// InsertEvents writes one batch atomically. Any duplicate event id
// rolls the whole batch back and returns ErrDuplicateEvent — the batch
// is the unit of ingest, never applied partially.
func (s *Store) InsertEvents(events []map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin ingest: %w", err)
	}

	for _, ev := range events {
		id, _ := ev["id"].(string)
		if id == "" {
			tx.Rollback()
			return fmt.Errorf("event id is required")
		}
		_, err := tx.Exec(`
			INSERT INTO events (id, session_id, event_type, init_timestamp, end_timestamp, payload)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id,
			str(ev["session_id"]),
			str(ev["event_type"]),
			str(ev["init_timestamp"]),
			str(ev["end_timestamp"]),
			encode(ev),
		)
		if err != nil {
			tx.Rollback()
			if isUniqueViolation(err) {
				return fmt.Errorf("event %s: %w", id, ErrDuplicateEvent)
			}
			return fmt.Errorf("insert event %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ingest: %w", err)
	}
	return nil
}

// CountsByType returns how many events of each type have been ingested.
func (s *Store) CountsByType() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT event_type, COUNT(*) FROM events GROUP BY event_type ORDER BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func encode(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// Package store persists the active session identifier across process
// restarts. One well-known key is kept in a small sqlite database so the
// widget can resume a conversation after the embedding app relaunches.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const sessionKey = "session_id"

// SessionStore is a durable single-key store for the session identifier.
// Last write wins; absence of a stored id is not an error.
type SessionStore struct {
	db *sql.DB
}

// Open creates the backing database (and its parent directory) if needed.
func Open(path string) (*SessionStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init session store: %w", err)
	}

	return &SessionStore{db: db}, nil
}

// Load returns the stored session id, or ok=false on first run.
func (s *SessionStore) Load() (id string, ok bool, err error) {
	row := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, sessionKey)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("load session id: %w", err)
	}
	return id, id != "", nil
}

// Save stores the session id, replacing any previous value.
func (s *SessionStore) Save(id string) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		sessionKey, id,
	)
	if err != nil {
		return fmt.Errorf("save session id: %w", err)
	}
	return nil
}

// Clear removes the stored session id. Clearing an empty store is a no-op.
func (s *SessionStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, sessionKey); err != nil {
		return fmt.Errorf("clear session id: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

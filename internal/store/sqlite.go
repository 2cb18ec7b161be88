package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists entries in a local SQLite database. It backs the CLI
// host, where the session token must survive process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS auth_store (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at TEXT
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create auth_store table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get returns the value for key if present and unexpired.
func (s *SQLiteStore) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow(`
		SELECT value FROM auth_store
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, time.Now().UTC().Format(time.RFC3339)).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set stores value under key, replacing any existing entry.
func (s *SQLiteStore) Set(key string, value []byte, ttl time.Duration) error {
	var expiresAt any
	if ttl > 0 {
		expiresAt = time.Now().UTC().Add(ttl).Format(time.RFC3339)
	}

	_, err := s.db.Exec(`
		INSERT INTO auth_store (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	return err
}

// Delete removes key.
func (s *SQLiteStore) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM auth_store WHERE key = ?", key)
	return err
}

// CleanupExpired removes all expired entries.
func (s *SQLiteStore) CleanupExpired() error {
	_, err := s.db.Exec("DELETE FROM auth_store WHERE expires_at IS NOT NULL AND expires_at <= ?",
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SettingLastRun holds the id of the most recent convert run.
const SettingLastRun = "last_run_id"

// DB is the conversion catalog.
type DB struct {
	*sql.DB
}

// Open opens or creates the catalog at dbPath. ":memory:" gives a private
// in-memory catalog.
func Open(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}

	// Timestamps are stored in SQLite's own text format so date() and ORDER BY agree.
	sqlDB, err := sql.Open("sqlite", dbPath+"?_time_format=sqlite&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	// One connection: an in-memory catalog lives and dies with it, and
	// pipeline writes are serialized anyway.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create catalog schema: %w", err)
	}

	return &DB{sqlDB}, nil
}

// Close releases the connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// GetSetting returns the value stored under key, or "" if unset.
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		return "", nil
	case err != nil:
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores value under key.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to store setting %s: %w", key, err)
	}
	return nil
}

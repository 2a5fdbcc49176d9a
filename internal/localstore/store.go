package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Keys of the JSON values the workout layer keeps on the device.
const (
	KeyWorkoutsSnapshot  = "workouts_snapshot"
	KeyCompletedWorkouts = "completed_workouts"
	KeySyncQueue         = "sync_queue"
	KeySyncApplied       = "sync_applied"
)

// Store is a device-local key/value store of JSON documents backed by SQLite.
// It is a single-writer cache, not a source of truth.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store database at dir/fittrack.db.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "fittrack.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}
	// One connection keeps read-modify-write sequences serialized.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}

	return &Store{db: db}, nil
}

// Get decodes the value stored at key into dst. found is false, and dst is
// left untouched, when the key has never been written.
func (s *Store) Get(key string, dst any) (found bool, err error) {
	var raw string
	err = s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return true, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// Has reports whether key has been written.
func (s *Store) Has(key string) (bool, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM kv WHERE key = ?`, key).Scan(&count); err != nil {
		return false, fmt.Errorf("checking %s: %w", key, err)
	}
	return count > 0, nil
}

// Set replaces the value stored at key.
func (s *Store) Set(key string, value any) error {
	return s.SetMany(map[string]any{key: value})
}

// SetMany writes all values in a single transaction.
func (s *Store) SetMany(values map[string]any) error {
	encoded := make(map[string]string, len(values))
	for k, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", k, err)
		}
		encoded[k] = string(data)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning store tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for k, v := range encoded {
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
			k, v,
		)
		if err != nil {
			return fmt.Errorf("writing %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing store tx: %w", err)
	}
	return nil
}

// Close closes the store database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetOrDefault returns the value at key, or def when the key is missing.
func GetOrDefault[T any](s *Store, key string, def T) (T, error) {
	var v T
	found, err := s.Get(key, &v)
	if err != nil {
		return def, err
	}
	if !found {
		return def, nil
	}
	return v, nil
}

package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

// Store is the key-value persistence used for preferences and the credential.
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	Has(key []byte) bool
	Fold(fn func(key []byte, value []byte) error) error
	Close() error
}

// DB wraps the SQLite database instance and provides helper methods.
type DB struct {
	db *sql.DB
	sync.RWMutex
	closeOnce sync.Once
	closed    bool
	closeErr  error
}

// Open initializes and returns a DB instance.
func Open(path string) (*DB, error) {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database at %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database at %s: %w", path, err)
	}

	dbWrapper := &DB{db: db}
	if err := dbWrapper.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	log.Debugf("SQLite state store opened at %s", path)
	return dbWrapper, nil
}

// initSchema creates the schema if it doesn't exist
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TRIGGER IF NOT EXISTS update_kv_timestamp
		AFTER UPDATE ON kv
		BEGIN
			UPDATE kv SET updated_at = CURRENT_TIMESTAMP WHERE key = NEW.key;
		END;
	`
	_, err := d.db.Exec(schema)
	return err
}

// Close safely closes the database connection.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		d.Lock()
		defer d.Unlock()

		d.closeErr = d.db.Close()
		d.closed = true

		if d.closeErr != nil {
			log.Errorf("Error during state store close: %v", d.closeErr)
		} else {
			log.Debug("State store closed.")
		}
	})

	return d.closeErr
}

// Has checks if a key exists in the database.
func (d *DB) Has(key []byte) bool {
	d.RLock()
	defer d.RUnlock()

	var exists bool
	err := d.db.QueryRow("SELECT EXISTS(SELECT 1 FROM kv WHERE key = ?)", string(key)).Scan(&exists)
	return err == nil && exists
}

// Get retrieves the value associated with a key.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.RLock()
	defer d.RUnlock()

	var value []byte
	err := d.db.QueryRow("SELECT value FROM kv WHERE key = ?", string(key)).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("error querying key %s: %w", string(key), err)
	}
	return value, nil
}

// Put stores a key-value pair in the database, replacing any previous value.
func (d *DB) Put(key []byte, value []byte) error {
	d.Lock()
	defer d.Unlock()

	if value == nil {
		value = []byte{}
	}
	_, err := d.db.Exec(`
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, string(key), value)
	if err != nil {
		return fmt.Errorf("error storing key %s: %w", string(key), err)
	}
	return nil
}

// Delete removes a key from the database. Deleting a missing key is not an error.
func (d *DB) Delete(key []byte) error {
	d.Lock()
	defer d.Unlock()

	if _, err := d.db.Exec("DELETE FROM kv WHERE key = ?", string(key)); err != nil {
		return fmt.Errorf("error deleting key %s: %w", string(key), err)
	}
	return nil
}

// Fold iterates over all key-value pairs in key order and calls the provided function.
func (d *DB) Fold(fn func(key []byte, value []byte) error) error {
	d.RLock()
	rows, err := d.db.Query("SELECT key, value FROM kv ORDER BY key")
	if err != nil {
		d.RUnlock()
		return fmt.Errorf("error querying state store for fold: %w", err)
	}

	type pair struct {
		key   string
		value []byte
	}
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.key, &p.value); err != nil {
			log.WithError(err).Warn("Fold: Error scanning row")
			continue
		}
		pairs = append(pairs, p)
	}
	rowsErr := rows.Err()
	rows.Close()
	d.RUnlock()
	if rowsErr != nil {
		return fmt.Errorf("error iterating state store: %w", rowsErr)
	}

	// Callbacks run without the lock so they may write back to the store.
	for _, p := range pairs {
		if err := fn([]byte(p.key), p.value); err != nil {
			return err
		}
	}
	return nil
}

// ABOUTME: SQLite Backend using modernc.org/sqlite
// ABOUTME: Keeps the serialized Document in a single-row table of one database file

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend stores the document body in a SQLite database file.
type SQLiteBackend struct {
	path string
	db   *sql.DB
}

// NewSQLiteBackend returns a backend for the database at path. The database
// is opened by Init.
func NewSQLiteBackend(path string) *SQLiteBackend {
	return &SQLiteBackend{path: path}
}

// Init creates the parent directory, opens the database and creates the schema.
func (b *SQLiteBackend) Init() error {
	if b.db != nil {
		return nil
	}

	// Ensure parent directory exists
	if b.path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", b.path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	// One connection: the store already serializes writes, and :memory:
	// databases are per-connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return fmt.Errorf("enabling WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS document (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			body       TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("creating schema: %w", err)
	}

	b.db = db
	return nil
}

// Load returns the stored document body, or nil if none has been saved.
func (b *SQLiteBackend) Load() ([]byte, error) {
	if b.db == nil {
		return nil, errors.New("database not initialized")
	}

	var body string
	err := b.db.QueryRow(`SELECT body FROM document WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}
	return []byte(body), nil
}

// Save upserts the document body.
func (b *SQLiteBackend) Save(data []byte) error {
	if b.db == nil {
		return errors.New("database not initialized")
	}

	_, err := b.db.Exec(`
		INSERT INTO document (id, body, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// Path returns the database file path.
func (b *SQLiteBackend) Path() string {
	return b.path
}

// ABOUTME: Backend abstraction for persisting the serialized Document
// ABOUTME: FileBackend keeps the document as one JSON file, replaced atomically on save

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Backend persists the serialized Document. Save is only ever called from
// the store's writer goroutine, one call at a time.
type Backend interface {
	// Init prepares the storage location. A failure here is fatal to Open.
	Init() error
	// Load returns the stored bytes, or nil with no error when nothing is stored yet.
	Load() ([]byte, error)
	// Save replaces the stored bytes.
	Save(data []byte) error
	// Close releases any resources held by the backend.
	Close() error
	// Path identifies the storage location for logs and errors.
	Path() string
}

// FileBackend stores the document as a single JSON file.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend for the file at path. Nothing is touched until Init.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Init creates the parent directory if needed.
func (b *FileBackend) Init() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

// Load reads the file. A missing file is not an error.
func (b *FileBackend) Load() ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", b.path, err)
	}
	return data, nil
}

// Save writes to a temporary file and renames it over the target so a crash
// mid-write never leaves a truncated document behind.
func (b *FileBackend) Save(data []byte) error {
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", b.path, err)
	}
	return nil
}

// Close is a no-op; the file is not held open between saves.
func (b *FileBackend) Close() error {
	return nil
}

// Path returns the document file path.
func (b *FileBackend) Path() string {
	return b.path
}

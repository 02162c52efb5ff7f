// ABOUTME: Durable store: lazily loaded in-memory Document backed by a Backend
// ABOUTME: Owns the document mutex, the write queue and load/flush mechanics

package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// timestampLayout matches the ISO-8601 form clients produce (millisecond precision, UTC).
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Store is the process-wide datastore. Construct one with New and share it.
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string

	openMu sync.Mutex
	opened bool
	closed bool

	// mu guards doc. Mutations hold it across the in-memory update, the change
	// append and the write scheduling.
	mu     sync.Mutex
	doc    *Document
	writes *writeQueue
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock sets the time source used for record and change timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator sets the record id generator. Defaults to UUID v4.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		s.newID = newID
	}
}

// New returns a Store over backend. Nothing is read until the first operation
// or an explicit Open.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.Default(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "store")
	return s
}

// Open loads the document on first call and is a no-op afterwards.
//
// A backend Init failure is returned and leaves the store unopened so a later
// call can retry. A load or parse failure is logged and the store starts from
// an empty document instead.
func (s *Store) Open(ctx context.Context) error {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.opened {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.backend.Init(); err != nil {
		return &StorageError{Op: "init", Path: s.backend.Path(), Err: err}
	}

	doc := s.load()

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()

	s.writes = newWriteQueue(s.flush, s.logger)
	s.opened = true

	s.logger.Info("store opened",
		"path", s.backend.Path(),
		"changes", len(doc.Changes),
	)
	return nil
}

// load reads and parses the backend contents, falling back to defaults.
func (s *Store) load() *Document {
	data, err := s.backend.Load()
	if err != nil {
		s.logger.Error("reading document failed, starting empty", "path", s.backend.Path(), "error", err)
		return newDocument()
	}
	if len(data) == 0 {
		return newDocument()
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Error("parsing document failed, starting empty", "path", s.backend.Path(), "error", err)
		return newDocument()
	}
	doc.fillDefaults()
	return &doc
}

// flush writes the whole current document. Only the writer goroutine calls it.
func (s *Store) flush() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.doc, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return &StorageError{Op: "encode", Path: s.backend.Path(), Err: err}
	}

	if err := s.backend.Save(data); err != nil {
		return &StorageError{Op: "save", Path: s.backend.Path(), Err: err}
	}
	s.logger.Debug("document flushed", "bytes", len(data))
	return nil
}

// Close waits for queued writes, stops the writer and closes the backend.
// The store cannot be reopened; construct a new one instead.
func (s *Store) Close(ctx context.Context) error {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.opened {
		if err := s.writes.close(ctx); err != nil {
			return err
		}
	}
	if err := s.backend.Close(); err != nil {
		return &StorageError{Op: "close", Path: s.backend.Path(), Err: err}
	}
	return nil
}

// Flush schedules a write of the current document and waits for it.
func (s *Store) Flush(ctx context.Context) error {
	if err := s.Open(ctx); err != nil {
		return err
	}
	return s.writes.schedule().Wait(ctx)
}

// timestamp renders the current time in change-log form.
func (s *Store) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}

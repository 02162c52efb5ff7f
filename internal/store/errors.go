// ABOUTME: Error taxonomy for the datastore: validation sentinels and storage failures
// ABOUTME: Callers match with errors.Is / errors.As

package store

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is returned for a table name outside the schema, or a mutation on the change log.
	ErrInvalidKey = errors.New("invalid table")

	// ErrInvalidArgument is returned for a missing id or a malformed data/patch payload.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrClosed is returned for writes scheduled after Close.
	ErrClosed = errors.New("store closed")
)

// StorageError reports a failure to create, read or write the backing storage.
type StorageError struct {
	Op   string // "init", "load", "encode", "save", "close"
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

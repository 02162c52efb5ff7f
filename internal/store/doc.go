// Package store is the till's offline-first datastore: one JSON document
// holding every business table plus an append-only change log.
//
// # Architecture
//
// The document lives in memory and is persisted whole through a Backend:
//
//   - FileBackend: a single JSON file, replaced atomically via rename
//   - SQLiteBackend: a single-row table in a SQLite database (modernc.org/sqlite)
//
// The store opens lazily on first use. A missing, unreadable or corrupt
// document is logged and replaced by an empty one; only a failure to create
// the storage location (Backend.Init) is returned to the caller.
//
// Writes go through a single writer goroutine. Every mutation schedules a
// full-document write and waits for it, so at most one write is ever in
// flight and writes land in mutation order. A failed write is reported to the
// caller that scheduled it as a *StorageError; the in-memory state keeps the
// mutation and the next successful write persists it.
//
// # Tables
//
// The table set is fixed:
//
//   - products, inventory, orders, customers, logs: id-keyed collections
//   - shop: a singleton record whose id is pinned once stored
//   - changes: the change log, readable but never directly writable
//
// Store.Get/Create/Update/Delete take a Table and open field maps, which is
// what the HTTP API and CLI use. Products(), Orders() and friends return
// typed Collection views over the same operations.
//
// # Change Log
//
// Every create, update or delete that changes state appends exactly one
// ChangeEntry. No-ops (updating or deleting a missing record) append nothing.
// ChangesSince condenses the log for replicas: one entry per record,
// create+delete inside the window cancels, update chains squash into one.
//
// The log grows until PruneChanges is called; mutations never trim it.
//
// # Errors
//
//   - ErrInvalidKey: table outside the schema, or a write to changes
//   - ErrInvalidArgument: missing id, unknown or mistyped fields, duplicate id
//   - ErrClosed: operation after Close
//   - *StorageError: backing storage could not be created or written
package store

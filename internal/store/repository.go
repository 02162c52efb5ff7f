// ABOUTME: Table repository: schema-validated Get/Create/Update/Delete over the Document
// ABOUTME: Each state change appends one ChangeEntry and waits for its serialized write

package store

import (
	"context"
)

// Get returns a deep copy of a table: a slice for collections and the change
// log, or *Shop (nil when no shop is stored) for the singleton.
func (s *Store) Get(ctx context.Context, name Table) (any, error) {
	if _, err := ParseTable(string(name)); err != nil {
		return nil, err
	}
	if err := s.Open(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshotTable(s.doc, name)
}

// Create stores a new record and returns a copy of it. For the shop table
// data is merged into the existing shop, if any.
func (s *Store) Create(ctx context.Context, name Table, data Fields) (any, error) {
	t, err := writableTable(name)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, invalidArgument("%s: data is required", name)
	}
	if err := s.Open(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	rec, entry, err := t.create(s.doc, data, s.mutation())
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	pending := s.commit(entry)
	s.mu.Unlock()

	s.logger.Debug("record created", "table", name, "id", entry.ItemID)
	return rec, pending.Wait(ctx)
}

// Update merges patch into the record with the given id and returns a copy of
// the result. A missing record yields nil with no error and no change entry.
// The shop table ignores id and creates the shop if none exists.
func (s *Store) Update(ctx context.Context, name Table, id string, patch Fields) (any, error) {
	t, err := writableTable(name)
	if err != nil {
		return nil, err
	}
	if patch == nil {
		return nil, invalidArgument("%s: patch is required", name)
	}
	if err := s.Open(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	rec, entry, err := t.update(s.doc, id, patch, s.mutation())
	if err != nil || entry == nil {
		s.mu.Unlock()
		return nil, err
	}
	pending := s.commit(entry)
	s.mu.Unlock()

	s.logger.Debug("record updated", "table", name, "id", entry.ItemID)
	return rec, pending.Wait(ctx)
}

// Delete removes the record with the given id and reports whether anything
// was removed. The shop table ignores id.
func (s *Store) Delete(ctx context.Context, name Table, id string) (bool, error) {
	t, err := writableTable(name)
	if err != nil {
		return false, err
	}
	if err := s.Open(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	removed, entry, err := t.remove(s.doc, id, s.mutation())
	if err != nil || !removed {
		s.mu.Unlock()
		return false, err
	}
	pending := s.commit(entry)
	s.mu.Unlock()

	s.logger.Debug("record deleted", "table", name, "id", entry.ItemID)
	return true, pending.Wait(ctx)
}

// mutation snapshots the clock for one operation.
func (s *Store) mutation() *mutation {
	return &mutation{stamp: s.timestamp(), newID: s.newID}
}

// commit appends entry to the change log and queues the write. Caller holds s.mu.
func (s *Store) commit(entry *ChangeEntry) *Pending {
	s.doc.Changes = append(s.doc.Changes, *entry)
	return s.writes.schedule()
}

// Collection is typed access to one collection table.
type Collection[T Record] struct {
	store *Store
	table Table
}

func (s *Store) Products() Collection[Product] {
	return Collection[Product]{store: s, table: TableProducts}
}

func (s *Store) Inventory() Collection[InventoryItem] {
	return Collection[InventoryItem]{store: s, table: TableInventory}
}

func (s *Store) Orders() Collection[Order] {
	return Collection[Order]{store: s, table: TableOrders}
}

func (s *Store) Customers() Collection[Customer] {
	return Collection[Customer]{store: s, table: TableCustomers}
}

func (s *Store) Logs() Collection[LogEntry] {
	return Collection[LogEntry]{store: s, table: TableLogs}
}

// List returns a copy of every record in insertion order.
func (c Collection[T]) List(ctx context.Context) ([]T, error) {
	v, err := c.store.Get(ctx, c.table)
	if err != nil {
		return nil, err
	}
	return v.([]T), nil
}

// Find returns the record with the given id, or nil.
func (c Collection[T]) Find(ctx context.Context, id string) (*T, error) {
	rows, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].RecordID() == id {
			return &rows[i], nil
		}
	}
	return nil, nil
}

// Create stores rec. An empty ID is generated.
func (c Collection[T]) Create(ctx context.Context, rec T) (T, error) {
	var zero T
	fields, err := toFields(rec)
	if err != nil {
		return zero, invalidArgument("%s: %v", c.table, err)
	}
	v, err := c.store.Create(ctx, c.table, fields)
	if v == nil {
		return zero, err
	}
	return v.(T), err
}

// Update patches the record with the given id; nil when it does not exist.
func (c Collection[T]) Update(ctx context.Context, id string, patch Fields) (*T, error) {
	v, err := c.store.Update(ctx, c.table, id, patch)
	if v == nil {
		return nil, err
	}
	rec := v.(T)
	return &rec, err
}

// Delete removes the record with the given id.
func (c Collection[T]) Delete(ctx context.Context, id string) (bool, error) {
	return c.store.Delete(ctx, c.table, id)
}

// Shop returns a copy of the stored shop, or nil.
func (s *Store) Shop(ctx context.Context) (*Shop, error) {
	v, err := s.Get(ctx, TableShop)
	if err != nil {
		return nil, err
	}
	return v.(*Shop), nil
}

// SaveShop merges data into the shop, creating it if none is stored.
func (s *Store) SaveShop(ctx context.Context, data Fields) (*Shop, error) {
	v, err := s.Create(ctx, TableShop, data)
	if v == nil {
		return nil, err
	}
	return v.(*Shop), err
}

// ABOUTME: Per-table mutation logic: generic collections and the shop singleton
// ABOUTME: Records are merged as JSON field maps and decoded strictly into their table type

package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// table is a mutable schema table. The change log is deliberately not one.
type table interface {
	snapshot(d *Document) any
	create(d *Document, data Fields, m *mutation) (any, *ChangeEntry, error)
	update(d *Document, id string, patch Fields, m *mutation) (any, *ChangeEntry, error)
	remove(d *Document, id string, m *mutation) (bool, *ChangeEntry, error)
}

var (
	products = collection[Product]{
		name: TableProducts,
		rows: func(d *Document) *[]Product { return &d.Products },
	}
	inventory = collection[InventoryItem]{
		name: TableInventory,
		rows: func(d *Document) *[]InventoryItem { return &d.Inventory },
	}
	orders = collection[Order]{
		name: TableOrders,
		rows: func(d *Document) *[]Order { return &d.Orders },
	}
	customers = collection[Customer]{
		name: TableCustomers,
		rows: func(d *Document) *[]Customer { return &d.Customers },
	}
	logs = collection[LogEntry]{
		name: TableLogs,
		rows: func(d *Document) *[]LogEntry { return &d.Logs },
	}
)

// writableTable resolves a table name for create/update/delete.
func writableTable(name Table) (table, error) {
	switch name {
	case TableProducts:
		return products, nil
	case TableInventory:
		return inventory, nil
	case TableOrders:
		return orders, nil
	case TableCustomers:
		return customers, nil
	case TableLogs:
		return logs, nil
	case TableShop:
		return shopTable{}, nil
	case TableChanges:
		return nil, fmt.Errorf("%w: %s is append-only", ErrInvalidKey, name)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, string(name))
	}
}

// snapshotTable returns a deep copy of any schema table, the change log included.
func snapshotTable(d *Document, name Table) (any, error) {
	if name == TableChanges {
		return cloneChanges(d.Changes), nil
	}
	t, err := writableTable(name)
	if err != nil {
		return nil, err
	}
	return t.snapshot(d), nil
}

// collection is an array-of-records table keyed by id.
type collection[T Record] struct {
	name Table
	rows func(*Document) *[]T
}

func (c collection[T]) index(rows []T, id string) int {
	return slices.IndexFunc(rows, func(r T) bool { return r.RecordID() == id })
}

func (c collection[T]) snapshot(d *Document) any {
	return cloneValue(*c.rows(d))
}

func (c collection[T]) create(d *Document, data Fields, m *mutation) (any, *ChangeEntry, error) {
	fields := maps.Clone(data)
	if fields == nil {
		fields = Fields{}
	}
	if raw, ok := fields["id"]; ok && raw != nil {
		if _, isString := raw.(string); !isString {
			return nil, nil, invalidArgument("%s: id must be a string", c.name)
		}
	}
	if id, _ := fields["id"].(string); id == "" {
		fields["id"] = m.newID()
	}
	if _, ok := fields["createdAt"]; !ok {
		fields["createdAt"] = m.stamp
	}

	rec, err := decodeRecord[T](c.name, fields)
	if err != nil {
		return nil, nil, err
	}

	rows := c.rows(d)
	if c.index(*rows, rec.RecordID()) >= 0 {
		return nil, nil, invalidArgument("%s: id %q already exists", c.name, rec.RecordID())
	}

	entry, err := m.record(c.name, ActionCreate, rec.RecordID(), rec)
	if err != nil {
		return nil, nil, err
	}
	*rows = append(*rows, rec)
	return cloneValue(rec), &entry, nil
}

func (c collection[T]) update(d *Document, id string, patch Fields, m *mutation) (any, *ChangeEntry, error) {
	if id == "" {
		return nil, nil, invalidArgument("%s: id is required", c.name)
	}

	rows := c.rows(d)
	i := c.index(*rows, id)
	if i < 0 {
		return nil, nil, nil
	}
	before := (*rows)[i]

	after, err := mergeRecord[T](c.name, before, id, patch, m)
	if err != nil {
		return nil, nil, err
	}

	entry, err := m.recordUpdate(c.name, id, before, after, patch)
	if err != nil {
		return nil, nil, err
	}
	(*rows)[i] = after
	return cloneValue(after), &entry, nil
}

func (c collection[T]) remove(d *Document, id string, m *mutation) (bool, *ChangeEntry, error) {
	if id == "" {
		return false, nil, invalidArgument("%s: id is required", c.name)
	}

	rows := c.rows(d)
	i := c.index(*rows, id)
	if i < 0 {
		return false, nil, nil
	}

	entry, err := m.record(c.name, ActionDelete, id, (*rows)[i])
	if err != nil {
		return false, nil, err
	}
	*rows = slices.Delete(*rows, i, i+1)
	return true, &entry, nil
}

// shopTable is the singleton table. Its identity is positional: the id of the
// first stored shop sticks for as long as the shop exists.
type shopTable struct{}

func (shopTable) snapshot(d *Document) any {
	if d.Shop == nil {
		return (*Shop)(nil)
	}
	shop := cloneValue(*d.Shop)
	return &shop
}

func (shopTable) create(d *Document, data Fields, m *mutation) (any, *ChangeEntry, error) {
	if raw, ok := data["id"]; ok && raw != nil {
		if _, isString := raw.(string); !isString {
			return nil, nil, invalidArgument("%s: id must be a string", TableShop)
		}
	}

	fields := Fields{}
	if d.Shop != nil {
		existing, err := toFields(*d.Shop)
		if err != nil {
			return nil, nil, err
		}
		fields = existing
	}
	maps.Copy(fields, data)

	switch {
	case d.Shop != nil:
		fields["id"] = d.Shop.RecordID()
	case stringField(fields, "id") != "":
	case stringField(fields, "shopId") != "":
		fields["id"] = fields["shopId"]
	default:
		fields["id"] = m.newID()
	}
	if _, ok := fields["createdAt"]; !ok {
		fields["createdAt"] = m.stamp
	}

	shop, err := decodeRecord[Shop](TableShop, fields)
	if err != nil {
		return nil, nil, err
	}

	entry, err := m.record(TableShop, ActionCreate, shop.RecordID(), shop)
	if err != nil {
		return nil, nil, err
	}
	d.Shop = &shop
	out := cloneValue(shop)
	return &out, &entry, nil
}

// update ignores id. With no shop stored yet the patch creates one.
func (t shopTable) update(d *Document, _ string, patch Fields, m *mutation) (any, *ChangeEntry, error) {
	if d.Shop == nil {
		return t.create(d, patch, m)
	}

	before := *d.Shop
	after, err := mergeRecord[Shop](TableShop, before, before.RecordID(), patch, m)
	if err != nil {
		return nil, nil, err
	}

	entry, err := m.recordUpdate(TableShop, before.RecordID(), before, after, patch)
	if err != nil {
		return nil, nil, err
	}
	d.Shop = &after
	out := cloneValue(after)
	return &out, &entry, nil
}

func (shopTable) remove(d *Document, _ string, m *mutation) (bool, *ChangeEntry, error) {
	if d.Shop == nil {
		return false, nil, nil
	}

	entry, err := m.record(TableShop, ActionDelete, d.Shop.RecordID(), *d.Shop)
	if err != nil {
		return false, nil, err
	}
	d.Shop = nil
	return true, &entry, nil
}

// mergeRecord shallow-merges patch onto rec, keeping its id and stamping updatedAt.
func mergeRecord[T any](name Table, rec T, id string, patch Fields, m *mutation) (T, error) {
	fields, err := toFields(rec)
	if err != nil {
		var zero T
		return zero, err
	}
	maps.Copy(fields, patch)
	fields["id"] = id
	if _, ok := patch["updatedAt"]; !ok {
		fields["updatedAt"] = m.stamp
	}
	return decodeRecord[T](name, fields)
}

// decodeRecord converts a field map into a table record, rejecting unknown
// fields and mistyped values.
func decodeRecord[T any](name Table, fields Fields) (T, error) {
	var rec T
	data, err := json.Marshal(fields)
	if err != nil {
		return rec, invalidArgument("%s: %v", name, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return rec, invalidArgument("%s: %v", name, err)
	}
	return rec, nil
}

// toFields converts a record into its JSON field map.
func toFields(v any) (Fields, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	var fields Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decoding record fields: %w", err)
	}
	if fields == nil {
		fields = Fields{}
	}
	return fields, nil
}

// cloneValue deep-copies a JSON-shaped value. Records only hold JSON types,
// so a round trip cannot fail.
func cloneValue[T any](v T) T {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func stringField(fields Fields, key string) string {
	s, _ := fields[key].(string)
	return s
}

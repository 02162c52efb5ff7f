// ABOUTME: Document schema for the till datastore: table names, record types, change entries
// ABOUTME: The table set is fixed at build time; records are typed per table

package store

import (
	"encoding/json"
	"fmt"
)

// Table names a top-level slot of the Document.
type Table string

const (
	TableProducts  Table = "products"
	TableInventory Table = "inventory"
	TableOrders    Table = "orders"
	TableCustomers Table = "customers"
	TableLogs      Table = "logs"
	TableShop      Table = "shop"
	TableChanges   Table = "changes"
)

// Tables lists every schema table in document order.
var Tables = []Table{
	TableProducts,
	TableInventory,
	TableOrders,
	TableCustomers,
	TableLogs,
	TableShop,
	TableChanges,
}

// ParseTable validates a table name against the schema.
func ParseTable(name string) (Table, error) {
	for _, t := range Tables {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKey, name)
}

// Action is the kind of mutation a ChangeEntry records.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Fields is an open field map as received at the boundary (create data, update patch).
type Fields map[string]any

// Product is a sellable catalogue item.
type Product struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	SKU       string         `json:"sku,omitempty"`
	Barcode   string         `json:"barcode,omitempty"`
	Category  string         `json:"category,omitempty"`
	Price     float64        `json:"price,omitempty"`
	Cost      float64        `json:"cost,omitempty"`
	TaxRate   float64        `json:"taxRate,omitempty"`
	Active    *bool          `json:"active,omitempty"`
	ImageURL  string         `json:"imageUrl,omitempty"`
	CreatedAt string         `json:"createdAt,omitempty"`
	UpdatedAt string         `json:"updatedAt,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// InventoryItem tracks stock of one product at one location.
type InventoryItem struct {
	ID           string         `json:"id"`
	ProductID    string         `json:"productId,omitempty"`
	Quantity     int            `json:"quantity"`
	Location     string         `json:"location,omitempty"`
	ReorderLevel int            `json:"reorderLevel,omitempty"`
	CreatedAt    string         `json:"createdAt,omitempty"`
	UpdatedAt    string         `json:"updatedAt,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// OrderLine is one line of an order.
type OrderLine struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// Order is a completed or pending sale.
type Order struct {
	ID            string         `json:"id"`
	Number        string         `json:"number,omitempty"`
	CustomerID    string         `json:"customerId,omitempty"`
	Items         []OrderLine    `json:"items,omitempty"`
	Subtotal      float64        `json:"subtotal,omitempty"`
	Tax           float64        `json:"tax,omitempty"`
	Total         float64        `json:"total,omitempty"`
	Status        string         `json:"status,omitempty"`
	PaymentMethod string         `json:"paymentMethod,omitempty"`
	Note          string         `json:"note,omitempty"`
	CreatedAt     string         `json:"createdAt,omitempty"`
	UpdatedAt     string         `json:"updatedAt,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Customer is a known buyer.
type Customer struct {
	ID            string         `json:"id"`
	Name          string         `json:"name,omitempty"`
	Email         string         `json:"email,omitempty"`
	Phone         string         `json:"phone,omitempty"`
	Address       string         `json:"address,omitempty"`
	LoyaltyPoints int            `json:"loyaltyPoints,omitempty"`
	CreatedAt     string         `json:"createdAt,omitempty"`
	UpdatedAt     string         `json:"updatedAt,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// LogEntry is an application activity log row kept alongside the business tables.
type LogEntry struct {
	ID        string         `json:"id"`
	Level     string         `json:"level,omitempty"`
	Message   string         `json:"message,omitempty"`
	Context   string         `json:"context,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt string         `json:"createdAt,omitempty"`
	UpdatedAt string         `json:"updatedAt,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Shop is the singleton record describing this till's shop.
type Shop struct {
	ID            string         `json:"id"`
	ShopID        string         `json:"shopId,omitempty"`
	Name          string         `json:"name,omitempty"`
	Address       string         `json:"address,omitempty"`
	Phone         string         `json:"phone,omitempty"`
	Currency      string         `json:"currency,omitempty"`
	TaxRate       float64        `json:"taxRate,omitempty"`
	ReceiptFooter string         `json:"receiptFooter,omitempty"`
	CreatedAt     string         `json:"createdAt,omitempty"`
	UpdatedAt     string         `json:"updatedAt,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (p Product) RecordID() string       { return p.ID }
func (i InventoryItem) RecordID() string { return i.ID }
func (o Order) RecordID() string         { return o.ID }
func (c Customer) RecordID() string      { return c.ID }
func (l LogEntry) RecordID() string      { return l.ID }

// RecordID returns the shop's identity, falling back to the external shopId.
func (s Shop) RecordID() string {
	if s.ID != "" {
		return s.ID
	}
	return s.ShopID
}

// Record is the closed set of collection record types.
type Record interface {
	Product | InventoryItem | Order | Customer | LogEntry
	RecordID() string
}

// ChangeEntry is one append-only change-log row.
type ChangeEntry struct {
	ID        string          `json:"id"`
	Table     Table           `json:"table"`
	Action    Action          `json:"action"`
	ItemID    string          `json:"itemId"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// UpdatePayload is the data of an update ChangeEntry.
type UpdatePayload struct {
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
	Patch  Fields          `json:"patch"`
}

// Document is the whole persisted state.
type Document struct {
	Products  []Product       `json:"products"`
	Inventory []InventoryItem `json:"inventory"`
	Orders    []Order         `json:"orders"`
	Customers []Customer      `json:"customers"`
	Logs      []LogEntry      `json:"logs"`
	Shop      *Shop           `json:"shop"`
	Changes   []ChangeEntry   `json:"changes"`
}

// newDocument returns a Document with every table empty.
func newDocument() *Document {
	d := &Document{}
	d.fillDefaults()
	return d
}

// fillDefaults replaces missing tables with empty ones so partial files load cleanly.
func (d *Document) fillDefaults() {
	if d.Products == nil {
		d.Products = []Product{}
	}
	if d.Inventory == nil {
		d.Inventory = []InventoryItem{}
	}
	if d.Orders == nil {
		d.Orders = []Order{}
	}
	if d.Customers == nil {
		d.Customers = []Customer{}
	}
	if d.Logs == nil {
		d.Logs = []LogEntry{}
	}
	if d.Changes == nil {
		d.Changes = []ChangeEntry{}
	}
}

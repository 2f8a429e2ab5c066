package domain

import "time"

// Record is a business entity read from the inventory application. The set
// of implementations is closed: one per EntityType.
type Record interface {
	RecordID() string
	RecordType() EntityType
	UpdatedTime() time.Time
	isRecord()
}

type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	Active    bool       `json:"active"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Client struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Company     string    `json:"company"`
	City        string    `json:"city"`
	Category    string    `json:"category"`
	Balance     float64   `json:"balance"`
	CreditLimit float64   `json:"credit_limit"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SKU         string    `json:"sku"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	MinStock    int       `json:"min_stock"`
	UnitPrice   float64   `json:"unit_price"`
	SupplierID  string    `json:"supplier_id"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	City      string    `json:"city"`
	Category  string    `json:"category"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Purchase struct {
	ID          string     `json:"id"`
	Reference   string     `json:"reference"`
	SupplierID  string     `json:"supplier_id"`
	Status      string     `json:"status"`
	TotalAmount float64    `json:"total_amount"`
	ItemCount   int        `json:"item_count"`
	OrderedAt   time.Time  `json:"ordered_at"`
	ExpectedAt  *time.Time `json:"expected_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Invoice struct {
	ID          string    `json:"id"`
	Number      string    `json:"number"`
	ClientID    string    `json:"client_id"`
	Status      string    `json:"status"`
	TotalAmount float64   `json:"total_amount"`
	PaidAmount  float64   `json:"paid_amount"`
	IssuedAt    time.Time `json:"issued_at"`
	DueDate     time.Time `json:"due_date"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Invoice and purchase statuses recognised by the enrichment rules
const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusSent      = "sent"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"

	PurchaseStatusPending   = "pending"
	PurchaseStatusReceived  = "received"
	PurchaseStatusCancelled = "cancelled"
)

func (u User) RecordID() string { return u.ID }
func (u User) RecordType() EntityType { return EntityUsers }
func (u User) UpdatedTime() time.Time { return u.UpdatedAt }
func (User) isRecord() {}

func (c Client) RecordID() string { return c.ID }
func (c Client) RecordType() EntityType { return EntityClients }
func (c Client) UpdatedTime() time.Time { return c.UpdatedAt }
func (Client) isRecord() {}

func (p Product) RecordID() string { return p.ID }
func (p Product) RecordType() EntityType { return EntityProducts }
func (p Product) UpdatedTime() time.Time { return p.UpdatedAt }
func (Product) isRecord() {}

func (s Supplier) RecordID() string { return s.ID }
func (s Supplier) RecordType() EntityType { return EntitySuppliers }
func (s Supplier) UpdatedTime() time.Time { return s.UpdatedAt }
func (Supplier) isRecord() {}

func (p Purchase) RecordID() string { return p.ID }
func (p Purchase) RecordType() EntityType { return EntityPurchases }
func (p Purchase) UpdatedTime() time.Time { return p.UpdatedAt }
func (Purchase) isRecord() {}

func (i Invoice) RecordID() string { return i.ID }
func (i Invoice) RecordType() EntityType { return EntityInvoices }
func (i Invoice) UpdatedTime() time.Time { return i.UpdatedAt }
func (Invoice) isRecord() {}

// Outstanding is the unpaid remainder of the invoice
func (i Invoice) Outstanding() float64 {
	if i.PaidAmount >= i.TotalAmount {
		return 0
	}
	return i.TotalAmount - i.PaidAmount
}

// IsOverdue reports whether the invoice is unpaid past its due date at now
func (i Invoice) IsOverdue(now time.Time) bool {
	if i.Status == InvoiceStatusPaid || i.Status == InvoiceStatusCancelled {
		return false
	}
	if i.Status == InvoiceStatusOverdue {
		return true
	}
	return !i.DueDate.IsZero() && now.After(i.DueDate) && i.Outstanding() > 0
}

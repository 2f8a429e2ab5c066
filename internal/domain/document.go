package domain

import (
	"strconv"
	"time"
)

// Priority ranks a document for retrieval
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// IsValid reports whether p is a known priority
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Weight maps the priority tier to the [0,1] factor used in relevance scoring
func (p Priority) Weight() float64 {
	switch p {
	case PriorityHigh:
		return 1.0
	case PriorityMedium:
		return 0.5
	case PriorityLow:
		return 0.2
	}
	return 0
}

// RelationshipType classifies a link between two enriched documents
type RelationshipType string

const (
	RelationParent     RelationshipType = "parent"
	RelationChild      RelationshipType = "child"
	RelationRelated    RelationshipType = "related"
	RelationDependsOn  RelationshipType = "depends_on"
	RelationReferences RelationshipType = "references"
)

// Relationship is a link computed between documents of the same sync batch
type Relationship struct {
	Type        RelationshipType `json:"type"`
	TargetType  EntityType       `json:"target_type"`
	TargetID    string           `json:"target_id"`
	Strength    float64          `json:"strength"`
	Description string           `json:"description"`
}

// EntityAttributes holds the per-type fields of a document. Each EntityType
// has exactly one implementation.
type EntityAttributes interface {
	AttributeType() EntityType
	// Fields flattens the attributes for storage and filtering
	Fields() map[string]string
}

type UserAttributes struct {
	Email  string
	Role   string
	Active bool
}

type ClientAttributes struct {
	Email       string
	City        string
	Company     string
	Balance     float64
	CreditLimit float64
	Active      bool
}

type ProductAttributes struct {
	SKU        string
	Quantity   int
	MinStock   int
	UnitPrice  float64
	StockValue float64
	SupplierID string
}

type SupplierAttributes struct {
	Email  string
	City   string
	Active bool
}

type PurchaseAttributes struct {
	Reference   string
	SupplierID  string
	TotalAmount float64
	ItemCount   int
}

type InvoiceAttributes struct {
	Number      string
	ClientID    string
	TotalAmount float64
	PaidAmount  float64
	Outstanding float64
	DueDate     time.Time
}

func (UserAttributes) AttributeType() EntityType { return EntityUsers }
func (ClientAttributes) AttributeType() EntityType { return EntityClients }
func (ProductAttributes) AttributeType() EntityType { return EntityProducts }
func (SupplierAttributes) AttributeType() EntityType { return EntitySuppliers }
func (PurchaseAttributes) AttributeType() EntityType { return EntityPurchases }
func (InvoiceAttributes) AttributeType() EntityType { return EntityInvoices }

func (a UserAttributes) Fields() map[string]string {
	return map[string]string{
		"email":  a.Email,
		"role":   a.Role,
		"active": strconv.FormatBool(a.Active),
	}
}

func (a ClientAttributes) Fields() map[string]string {
	return map[string]string{
		"email":        a.Email,
		"city":         a.City,
		"company":      a.Company,
		"balance":      formatAmount(a.Balance),
		"credit_limit": formatAmount(a.CreditLimit),
		"active":       strconv.FormatBool(a.Active),
	}
}

func (a ProductAttributes) Fields() map[string]string {
	return map[string]string{
		"sku":         a.SKU,
		"quantity":    strconv.Itoa(a.Quantity),
		"min_stock":   strconv.Itoa(a.MinStock),
		"unit_price":  formatAmount(a.UnitPrice),
		"stock_value": formatAmount(a.StockValue),
		"supplier_id": a.SupplierID,
	}
}

func (a SupplierAttributes) Fields() map[string]string {
	return map[string]string{
		"email":  a.Email,
		"city":   a.City,
		"active": strconv.FormatBool(a.Active),
	}
}

func (a PurchaseAttributes) Fields() map[string]string {
	return map[string]string{
		"reference":    a.Reference,
		"supplier_id":  a.SupplierID,
		"total_amount": formatAmount(a.TotalAmount),
		"item_count":   strconv.Itoa(a.ItemCount),
	}
}

func (a InvoiceAttributes) Fields() map[string]string {
	fields := map[string]string{
		"number":       a.Number,
		"client_id":    a.ClientID,
		"total_amount": formatAmount(a.TotalAmount),
		"paid_amount":  formatAmount(a.PaidAmount),
		"outstanding":  formatAmount(a.Outstanding),
	}
	if !a.DueDate.IsZero() {
		fields["due_date"] = a.DueDate.UTC().Format(time.DateOnly)
	}
	return fields
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// DocumentMetadata is the structured metadata of an enriched document
type DocumentMetadata struct {
	EntityType EntityType
	EntityID   string
	Title      string
	Status     string
	Priority   Priority
	Category   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Confidence float64
	Attributes EntityAttributes
	// Extra carries fields outside the typed attribute set
	Extra map[string]string
}

// EnrichedDocument is the searchable rendition of one business record
type EnrichedDocument struct {
	ID            string
	Content       string
	Metadata      DocumentMetadata
	Keywords      []string
	Tags          []string
	Relationships []Relationship
	Summary       string
}

// DocumentID builds the stable document identifier of a record
func DocumentID(t EntityType, entityID string) string {
	return string(t) + ":" + entityID
}

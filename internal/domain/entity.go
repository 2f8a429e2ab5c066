package domain

import "fmt"

// EntityType names a business entity kind tracked by the sync pipeline
type EntityType string

const (
	EntityUsers     EntityType = "users"
	EntityClients   EntityType = "clients"
	EntityProducts  EntityType = "products"
	EntitySuppliers EntityType = "suppliers"
	EntityPurchases EntityType = "purchases"
	EntityInvoices  EntityType = "invoices"
)

// AllEntityTypes returns every synced entity type in a stable order
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityUsers,
		EntityClients,
		EntityProducts,
		EntitySuppliers,
		EntityPurchases,
		EntityInvoices,
	}
}

// IsValid reports whether t is a known entity type
func (t EntityType) IsValid() bool {
	switch t {
	case EntityUsers, EntityClients, EntityProducts,
		EntitySuppliers, EntityPurchases, EntityInvoices:
		return true
	}
	return false
}

// Singular returns the human readable singular noun used in document text
func (t EntityType) Singular() string {
	switch t {
	case EntityUsers:
		return "user"
	case EntityClients:
		return "client"
	case EntityProducts:
		return "product"
	case EntitySuppliers:
		return "supplier"
	case EntityPurchases:
		return "purchase"
	case EntityInvoices:
		return "invoice"
	}
	return string(t)
}

// ParseEntityType validates a raw entity type name
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.IsValid() {
		return "", ErrUnknownEntityType.WithCause(fmt.Errorf("%q", s))
	}
	return t, nil
}

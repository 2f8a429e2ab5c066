package enrichment

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloo-solutions/stockrag/internal/domain"
)

const (
	statusActive   = "active"
	statusInactive = "inactive"

	categoryReceivable = "receivable"
	categoryPayable    = "payable"
)

type narrative struct {
	b strings.Builder
}

func (n *narrative) line(label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(&n.b, "%s: %s\n", label, value)
}

func (n *narrative) String() string {
	return strings.TrimRight(n.b.String(), "\n")
}

func buildUser(u domain.User) domain.EnrichedDocument {
	status := activeStatus(u.Active)

	var n narrative
	n.line("User", u.Name)
	n.line("Email", u.Email)
	n.line("Role", u.Role)
	n.line("Status", status)
	extra := map[string]string{}
	if u.LastLogin != nil {
		n.line("Last login", formatDate(*u.LastLogin))
		extra["last_login"] = u.LastLogin.UTC().Format(time.RFC3339)
	}

	tags := []string{u.Role, status}
	if !u.Active {
		tags = append(tags, TagInactive)
	}
	tags = normalizeTags(tags...)

	return domain.EnrichedDocument{
		ID:      domain.DocumentID(domain.EntityUsers, u.ID),
		Content: n.String(),
		Metadata: domain.DocumentMetadata{
			EntityType: domain.EntityUsers,
			EntityID:   u.ID,
			Title:      u.Name,
			Status:     status,
			Priority:   userPriority(u),
			Category:   strings.ToLower(u.Role),
			CreatedAt:  u.CreatedAt,
			UpdatedAt:  u.UpdatedAt,
			Confidence: completeness(u.Name, u.Email, u.Role, timeValue(u.LastLogin)),
			Attributes: domain.UserAttributes{Email: u.Email, Role: u.Role, Active: u.Active},
			Extra:      extra,
		},
		Keywords: keywords(domain.EntityUsers, tags, u.Name, u.Role, status),
		Tags:     tags,
		Summary:  fmt.Sprintf("%s is an %s user with the %s role.", orUnknown(u.Name), status, orUnknown(u.Role)),
	}
}

func buildClient(c domain.Client) domain.EnrichedDocument {
	status := activeStatus(c.Active)

	var n narrative
	n.line("Client", c.Name)
	n.line("Company", c.Company)
	n.line("Email", c.Email)
	n.line("Phone", c.Phone)
	n.line("City", c.City)
	n.line("Category", c.Category)
	n.line("Balance", formatMoney(c.Balance))
	if c.CreditLimit > 0 {
		n.line("Credit limit", formatMoney(c.CreditLimit))
	}
	n.line("Status", status)

	tags := []string{c.Category, status}
	if c.Balance >= HighValueAmount {
		tags = append(tags, TagHighValue)
	}
	if overCreditLimit(c) {
		tags = append(tags, TagOverLimit)
	}
	if !c.Active {
		tags = append(tags, TagInactive)
	}
	tags = normalizeTags(tags...)

	summary := fmt.Sprintf("%s is an %s client from %s with a balance of %s.",
		orUnknown(c.Name), status, orUnknown(c.City), formatMoney(c.Balance))
	if overCreditLimit(c) {
		summary = fmt.Sprintf("%s is a client from %s whose balance of %s exceeds the credit limit of %s.",
			orUnknown(c.Name), orUnknown(c.City), formatMoney(c.Balance), formatMoney(c.CreditLimit))
	}

	return domain.EnrichedDocument{
		ID:      domain.DocumentID(domain.EntityClients, c.ID),
		Content: n.String(),
		Metadata: domain.DocumentMetadata{
			EntityType: domain.EntityClients,
			EntityID:   c.ID,
			Title:      c.Name,
			Status:     status,
			Priority:   clientPriority(c),
			Category:   strings.ToLower(c.Category),
			CreatedAt:  c.CreatedAt,
			UpdatedAt:  c.UpdatedAt,
			Confidence: completeness(c.Name, c.Email, c.Phone, c.Company, c.City, c.Category),
			Attributes: domain.ClientAttributes{
				Email:       c.Email,
				City:        c.City,
				Company:     c.Company,
				Balance:     c.Balance,
				CreditLimit: c.CreditLimit,
				Active:      c.Active,
			},
			Extra: map[string]string{"phone": c.Phone},
		},
		Keywords: keywords(domain.EntityClients, tags, c.Name, c.Company, c.City, c.Category),
		Tags:     tags,
		Summary:  summary,
	}
}

func buildProduct(p domain.Product) domain.EnrichedDocument {
	status := activeStatus(p.Active)
	stockValue := float64(p.Quantity) * p.UnitPrice

	var n narrative
	n.line("Product", p.Name)
	n.line("SKU", p.SKU)
	n.line("Category", p.Category)
	n.line("Description", p.Description)
	n.line("Stock", fmt.Sprintf("%d units (minimum %d)", p.Quantity, p.MinStock))
	n.line("Unit price", formatMoney(p.UnitPrice))
	n.line("Stock value", formatMoney(stockValue))
	n.line("Supplier", p.SupplierID)
	n.line("Status", status)
	switch {
	case p.Quantity <= 0:
		n.line("Stock alert", "out of stock")
	case p.Quantity <= p.MinStock:
		n.line("Stock alert", "low stock")
	}

	tags := []string{p.Category, status}
	switch {
	case p.Quantity <= 0:
		tags = append(tags, TagOutOfStock, TagLowStock)
	case p.Quantity <= p.MinStock:
		tags = append(tags, TagLowStock)
	}
	if stockValue >= HighValueAmount {
		tags = append(tags, TagHighValue)
	}
	if !p.Active {
		tags = append(tags, TagInactive)
	}
	tags = normalizeTags(tags...)

	var summary string
	switch {
	case p.Quantity <= 0:
		summary = fmt.Sprintf("Product %s (SKU %s) is out of stock.", orUnknown(p.Name), orUnknown(p.SKU))
	case p.Quantity <= p.MinStock:
		summary = fmt.Sprintf("Product %s (SKU %s) has %d units in stock, at or below its minimum of %d.",
			orUnknown(p.Name), orUnknown(p.SKU), p.Quantity, p.MinStock)
	default:
		summary = fmt.Sprintf("Product %s (SKU %s) has %d units in stock worth %s.",
			orUnknown(p.Name), orUnknown(p.SKU), p.Quantity, formatMoney(stockValue))
	}

	return domain.EnrichedDocument{
		ID:      domain.DocumentID(domain.EntityProducts, p.ID),
		Content: n.String(),
		Metadata: domain.DocumentMetadata{
			EntityType: domain.EntityProducts,
			EntityID:   p.ID,
			Title:      p.Name,
			Status:     status,
			Priority:   productPriority(p),
			Category:   strings.ToLower(p.Category),
			CreatedAt:  p.CreatedAt,
			UpdatedAt:  p.UpdatedAt,
			Confidence: completeness(p.Name, p.SKU, p.Category, p.Description, p.SupplierID),
			Attributes: domain.ProductAttributes{
				SKU:        p.SKU,
				Quantity:   p.Quantity,
				MinStock:   p.MinStock,
				UnitPrice:  p.UnitPrice,
				StockValue: stockValue,
				SupplierID: p.SupplierID,
			},
			Extra: map[string]string{},
		},
		Keywords: keywords(domain.EntityProducts, tags, p.Name, p.SKU, p.Category),
		Tags:     tags,
		Summary:  summary,
	}
}

func buildSupplier(s domain.Supplier) domain.EnrichedDocument {
	status := activeStatus(s.Active)

	var n narrative
	n.line("Supplier", s.Name)
	n.line("Email", s.Email)
	n.line("Phone", s.Phone)
	n.line("City", s.City)
	n.line("Category", s.Category)
	n.line("Status", status)

	tags := []string{s.Category, status}
	if !s.Active {
		tags = append(tags, TagInactive)
	}
	tags = normalizeTags(tags...)

	return domain.EnrichedDocument{
		ID:      domain.DocumentID(domain.EntitySuppliers, s.ID),
		Content: n.String(),
		Metadata: domain.DocumentMetadata{
			EntityType: domain.EntitySuppliers,
			EntityID:   s.ID,
			Title:      s.Name,
			Status:     status,
			Priority:   supplierPriority(s),
			Category:   strings.ToLower(s.Category),
			CreatedAt:  s.CreatedAt,
			UpdatedAt:  s.UpdatedAt,
			Confidence: completeness(s.Name, s.Email, s.Phone, s.City, s.Category),
			Attributes: domain.SupplierAttributes{Email: s.Email, City: s.City, Active: s.Active},
			Extra:      map[string]string{"phone": s.Phone},
		},
		Keywords: keywords(domain.EntitySuppliers, tags, s.Name, s.City, s.Category),
		Tags:     tags,
		Summary:  fmt.Sprintf("%s is an %s supplier of %s based in %s.", orUnknown(s.Name), status, orUnknown(s.Category), orUnknown(s.City)),
	}
}

func buildPurchase(p domain.Purchase, now time.Time) domain.EnrichedDocument {
	status := strings.ToLower(p.Status)
	late := p.Status == domain.PurchaseStatusPending && p.ExpectedAt != nil && now.After(*p.ExpectedAt)

	var n narrative
	n.line("Purchase order", p.Reference)
	n.line("Supplier", p.SupplierID)
	n.line("Status", status)
	n.line("Total amount", formatMoney(p.TotalAmount))
	n.line("Items", strconv.Itoa(p.ItemCount))
	n.line("Ordered", formatDate(p.OrderedAt))
	extra := map[string]string{"ordered_at": p.OrderedAt.UTC().Format(time.RFC3339)}
	if p.ExpectedAt != nil {
		n.line("Expected", formatDate(*p.ExpectedAt))
		extra["expected_at"] = p.ExpectedAt.UTC().Format(time.RFC3339)
	}
	if late {
		n.line("Delivery alert", "delivery is late")
	}

	tags := []string{status}
	if p.TotalAmount >= HighValueAmount {
		tags = append(tags, TagHighValue)
	}
	if p.ItemCount >= LargeOrderItems {
		tags = append(tags, TagLargeOrder)
	}
	if late {
		tags = append(tags, TagLateDelivery)
	}
	tags = normalizeTags(tags...)

	return domain.EnrichedDocument{
		ID:      domain.DocumentID(domain.EntityPurchases, p.ID),
		Content: n.String(),
		Metadata: domain.DocumentMetadata{
			EntityType: domain.EntityPurchases,
			EntityID:   p.ID,
			Title:      p.Reference,
			Status:     status,
			Priority:   purchasePriority(p, late),
			Category:   categoryPayable,
			CreatedAt:  p.CreatedAt,
			UpdatedAt:  p.UpdatedAt,
			Confidence: completeness(p.Reference, p.SupplierID, p.Status, timeValue(p.ExpectedAt)),
			Attributes: domain.PurchaseAttributes{
				Reference:   p.Reference,
				SupplierID:  p.SupplierID,
				TotalAmount: p.TotalAmount,
				ItemCount:   p.ItemCount,
			},
			Extra: extra,
		},
		Keywords: keywords(domain.EntityPurchases, tags, p.Reference, status),
		Tags:     tags,
		Summary: fmt.Sprintf("Purchase %s from supplier %s is %s for %s across %d items.",
			orUnknown(p.Reference), orUnknown(p.SupplierID), orUnknown(status), formatMoney(p.TotalAmount), p.ItemCount),
	}
}

func buildInvoice(i domain.Invoice, now time.Time) domain.EnrichedDocument {
	overdue := i.IsOverdue(now)
	status := strings.ToLower(i.Status)
	if overdue {
		status = domain.InvoiceStatusOverdue
	}
	outstanding := i.Outstanding()

	var n narrative
	n.line("Invoice", i.Number)
	n.line("Client", i.ClientID)
	n.line("Status", status)
	n.line("Total amount", formatMoney(i.TotalAmount))
	n.line("Paid amount", formatMoney(i.PaidAmount))
	n.line("Outstanding", formatMoney(outstanding))
	n.line("Issued", formatDate(i.IssuedAt))
	n.line("Due", formatDate(i.DueDate))
	if overdue {
		n.line("Payment alert", fmt.Sprintf("overdue by %d days", daysBetween(i.DueDate, now)))
	}

	tags := []string{status}
	if overdue {
		tags = append(tags, TagOverdue)
	}
	if outstanding > 0 && i.Status != domain.InvoiceStatusCancelled {
		tags = append(tags, TagUnpaid)
	}
	if i.TotalAmount >= HighValueAmount {
		tags = append(tags, TagHighValue)
	}
	tags = normalizeTags(tags...)

	summary := fmt.Sprintf("Invoice %s for client %s is %s with %s outstanding.",
		orUnknown(i.Number), orUnknown(i.ClientID), orUnknown(status), formatMoney(outstanding))
	if overdue {
		summary = fmt.Sprintf("Invoice %s for client %s is overdue since %s with %s outstanding.",
			orUnknown(i.Number), orUnknown(i.ClientID), formatDate(i.DueDate), formatMoney(outstanding))
	}

	extra := map[string]string{}
	if !i.IssuedAt.IsZero() {
		extra["issued_at"] = i.IssuedAt.UTC().Format(time.RFC3339)
	}

	return domain.EnrichedDocument{
		ID:      domain.DocumentID(domain.EntityInvoices, i.ID),
		Content: n.String(),
		Metadata: domain.DocumentMetadata{
			EntityType: domain.EntityInvoices,
			EntityID:   i.ID,
			Title:      i.Number,
			Status:     status,
			Priority:   invoicePriority(i, overdue),
			Category:   categoryReceivable,
			CreatedAt:  i.CreatedAt,
			UpdatedAt:  i.UpdatedAt,
			Confidence: completeness(i.Number, i.ClientID, i.Status, timeValue(&i.DueDate), timeValue(&i.IssuedAt)),
			Attributes: domain.InvoiceAttributes{
				Number:      i.Number,
				ClientID:    i.ClientID,
				TotalAmount: i.TotalAmount,
				PaidAmount:  i.PaidAmount,
				Outstanding: outstanding,
				DueDate:     i.DueDate,
			},
			Extra: extra,
		},
		Keywords: keywords(domain.EntityInvoices, tags, i.Number, status),
		Tags:     tags,
		Summary:  summary,
	}
}

func activeStatus(active bool) string {
	if active {
		return statusActive
	}
	return statusInactive
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

func timeValue(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

package enrichment

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/cloo-solutions/stockrag/internal/domain"
)

// Threshold tags
const (
	TagLowStock     = "low-stock"
	TagOutOfStock   = "out-of-stock"
	TagOverdue      = "overdue"
	TagUnpaid       = "unpaid"
	TagHighValue    = "high-value"
	TagInactive     = "inactive"
	TagLargeOrder   = "large-order"
	TagOverLimit    = "over-limit"
	TagLateDelivery = "late-delivery"
)

const (
	HighValueAmount   = 10000.0
	MediumValueAmount = 1000.0
	LargeOrderItems   = 100
)

func userPriority(u domain.User) domain.Priority {
	if !u.Active {
		return domain.PriorityLow
	}
	switch strings.ToLower(u.Role) {
	case "admin", "owner":
		return domain.PriorityHigh
	case "manager", "accountant":
		return domain.PriorityMedium
	}
	return domain.PriorityLow
}

func clientPriority(c domain.Client) domain.Priority {
	switch {
	case overCreditLimit(c), c.Balance >= HighValueAmount:
		return domain.PriorityHigh
	case c.Balance >= MediumValueAmount:
		return domain.PriorityMedium
	}
	return domain.PriorityLow
}

func overCreditLimit(c domain.Client) bool {
	return c.CreditLimit > 0 && c.Balance > c.CreditLimit
}

func productPriority(p domain.Product) domain.Priority {
	switch {
	case !p.Active:
		return domain.PriorityLow
	case p.Quantity <= p.MinStock:
		return domain.PriorityHigh
	case p.Quantity <= 2*p.MinStock:
		return domain.PriorityMedium
	}
	return domain.PriorityLow
}

func supplierPriority(s domain.Supplier) domain.Priority {
	if s.Active {
		return domain.PriorityMedium
	}
	return domain.PriorityLow
}

func purchasePriority(p domain.Purchase, late bool) domain.Priority {
	switch {
	case p.Status == domain.PurchaseStatusCancelled:
		return domain.PriorityLow
	case late, p.TotalAmount >= HighValueAmount:
		return domain.PriorityHigh
	case p.TotalAmount >= MediumValueAmount, p.Status == domain.PurchaseStatusPending:
		return domain.PriorityMedium
	}
	return domain.PriorityLow
}

func invoicePriority(i domain.Invoice, overdue bool) domain.Priority {
	switch {
	case overdue:
		return domain.PriorityHigh
	case i.Status == domain.InvoiceStatusPaid, i.Status == domain.InvoiceStatusCancelled:
		return domain.PriorityLow
	}
	return domain.PriorityMedium
}

// completeness is the share of non-empty values, rounded to two decimals
func completeness(values ...string) float64 {
	if len(values) == 0 {
		return 0
	}
	filled := 0
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			filled++
		}
	}
	return math.Round(float64(filled)/float64(len(values))*100) / 100
}

func slug(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), "-"))
}

func normalizeTags(tags ...string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if s := slug(t); s != "" {
			out = append(out, s)
		}
	}
	return dedupeSorted(out)
}

var typeSynonyms = map[domain.EntityType][]string{
	domain.EntityUsers:     {"user", "staff", "employee", "account"},
	domain.EntityClients:   {"client", "customer", "buyer"},
	domain.EntityProducts:  {"product", "item", "article", "stock", "inventory"},
	domain.EntitySuppliers: {"supplier", "vendor", "provider"},
	domain.EntityPurchases: {"purchase", "order", "procurement", "purchase order"},
	domain.EntityInvoices:  {"invoice", "bill", "billing", "payment"},
}

var tagSynonyms = map[string][]string{
	TagLowStock:     {"reorder", "shortage", "low stock"},
	TagOutOfStock:   {"out of stock", "shortage", "unavailable"},
	TagOverdue:      {"late", "past due", "overdue"},
	TagUnpaid:       {"unpaid", "outstanding", "receivable"},
	TagHighValue:    {"high value", "large"},
	TagLargeOrder:   {"bulk", "large order"},
	TagOverLimit:    {"credit limit", "over limit"},
	TagLateDelivery: {"late", "delayed", "delivery"},
}

// keywords collects field values, their tokens and static synonyms for the
// entity type and tags. The result is lower-cased, deduplicated and sorted.
func keywords(t domain.EntityType, tags []string, values ...string) []string {
	var out []string
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		out = append(out, v)
		tokens := strings.FieldsFunc(v, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
		})
		if len(tokens) < 2 {
			continue
		}
		for _, tok := range tokens {
			if len([]rune(tok)) >= 3 {
				out = append(out, tok)
			}
		}
	}
	out = append(out, typeSynonyms[t]...)
	for _, tag := range tags {
		out = append(out, tagSynonyms[tag]...)
	}
	return dedupeSorted(out)
}

func dedupeSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

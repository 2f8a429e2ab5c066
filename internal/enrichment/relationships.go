package enrichment

import (
	"fmt"
	"sort"

	"github.com/cloo-solutions/stockrag/internal/domain"
)

// Fixed strength per relationship kind
const (
	StrengthRelated          = 0.5
	StrengthParentChild      = 0.7
	StrengthDependsOn        = 0.8
	StrengthPurchaseSupplier = 0.8
	StrengthInvoiceClient    = 0.9
)

type docKey struct {
	t  domain.EntityType
	id string
}

type groupKey struct {
	t     domain.EntityType
	field string
	value string
}

// linkBatch computes relationships between the documents of one batch.
// records[i] is the source of docs[i].
func linkBatch(records []domain.Record, docs []domain.EnrichedDocument, maxRelated int) {
	index := make(map[docKey]int, len(records))
	for i, rec := range records {
		index[docKey{rec.RecordType(), rec.RecordID()}] = i
	}

	rels := make([][]domain.Relationship, len(docs))
	addChild := func(parent docKey, child domain.Record, desc string) {
		if pi, ok := index[parent]; ok {
			rels[pi] = append(rels[pi], domain.Relationship{
				Type:        domain.RelationChild,
				TargetType:  child.RecordType(),
				TargetID:    child.RecordID(),
				Strength:    StrengthParentChild,
				Description: desc,
			})
		}
	}
	addParent := func(i int, parent docKey, desc string) {
		if _, ok := index[parent]; ok {
			rels[i] = append(rels[i], domain.Relationship{
				Type:        domain.RelationParent,
				TargetType:  parent.t,
				TargetID:    parent.id,
				Strength:    StrengthParentChild,
				Description: desc,
			})
		}
	}

	groups := make(map[groupKey][]int)
	var groupOrder []groupKey
	group := func(i int, t domain.EntityType, field, value string) {
		if value == "" {
			return
		}
		k := groupKey{t, field, slug(value)}
		if _, ok := groups[k]; !ok {
			groupOrder = append(groupOrder, k)
		}
		groups[k] = append(groups[k], i)
	}

	for i, rec := range records {
		switch r := rec.(type) {
		case domain.Product:
			group(i, r.RecordType(), "category", r.Category)
			group(i, r.RecordType(), "supplier", r.SupplierID)
			if r.SupplierID != "" {
				supplier := docKey{domain.EntitySuppliers, r.SupplierID}
				rels[i] = append(rels[i], domain.Relationship{
					Type:        domain.RelationDependsOn,
					TargetType:  domain.EntitySuppliers,
					TargetID:    r.SupplierID,
					Strength:    StrengthDependsOn,
					Description: "supplied by " + r.SupplierID,
				})
				addChild(supplier, r, "supplies product "+r.Name)
			}
		case domain.Purchase:
			group(i, r.RecordType(), "supplier", r.SupplierID)
			if r.SupplierID != "" {
				supplier := docKey{domain.EntitySuppliers, r.SupplierID}
				rels[i] = append(rels[i], domain.Relationship{
					Type:        domain.RelationReferences,
					TargetType:  domain.EntitySuppliers,
					TargetID:    r.SupplierID,
					Strength:    StrengthPurchaseSupplier,
					Description: "ordered from " + r.SupplierID,
				})
				addParent(i, supplier, "placed with supplier "+r.SupplierID)
				addChild(supplier, r, "purchase order "+r.Reference)
			}
		case domain.Invoice:
			group(i, r.RecordType(), "client", r.ClientID)
			if r.ClientID != "" {
				client := docKey{domain.EntityClients, r.ClientID}
				rels[i] = append(rels[i], domain.Relationship{
					Type:        domain.RelationReferences,
					TargetType:  domain.EntityClients,
					TargetID:    r.ClientID,
					Strength:    StrengthInvoiceClient,
					Description: "billed to " + r.ClientID,
				})
				addParent(i, client, "issued to client "+r.ClientID)
				addChild(client, r, "invoice "+r.Number)
			}
		case domain.Client:
			group(i, r.RecordType(), "category", r.Category)
		case domain.Supplier:
			group(i, r.RecordType(), "category", r.Category)
		case domain.User:
			group(i, r.RecordType(), "role", r.Role)
		}
	}

	for _, k := range groupOrder {
		members := groups[k]
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(a, b int) bool {
			return records[members[a]].RecordID() < records[members[b]].RecordID()
		})
		for _, i := range members {
			added := 0
			for _, j := range members {
				if i == j || added >= maxRelated {
					continue
				}
				rels[i] = append(rels[i], domain.Relationship{
					Type:        domain.RelationRelated,
					TargetType:  records[j].RecordType(),
					TargetID:    records[j].RecordID(),
					Strength:    StrengthRelated,
					Description: fmt.Sprintf("same %s %s", k.field, k.value),
				})
				added++
			}
		}
	}

	for i := range docs {
		docs[i].Relationships = normalizeRelationships(rels[i])
	}
}

// normalizeRelationships keeps the strongest link per target and orders the
// result deterministically.
func normalizeRelationships(in []domain.Relationship) []domain.Relationship {
	if len(in) == 0 {
		return []domain.Relationship{}
	}

	type target struct {
		t  domain.EntityType
		id string
		k  domain.RelationshipType
	}
	best := make(map[target]domain.Relationship, len(in))
	for _, r := range in {
		key := target{r.TargetType, r.TargetID, r.Type}
		if cur, ok := best[key]; !ok || r.Strength > cur.Strength {
			best[key] = r
		}
	}

	out := make([]domain.Relationship, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Strength != out[b].Strength {
			return out[a].Strength > out[b].Strength
		}
		if out[a].TargetType != out[b].TargetType {
			return out[a].TargetType < out[b].TargetType
		}
		if out[a].TargetID != out[b].TargetID {
			return out[a].TargetID < out[b].TargetID
		}
		return out[a].Type < out[b].Type
	})
	return out
}

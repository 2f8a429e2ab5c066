// Package enrichment turns business records into searchable documents:
// narrative content, typed metadata, keywords, tags, relationships and a
// one-line summary. Enrichment is deterministic for a given clock.
package enrichment

import (
	"time"

	"github.com/cloo-solutions/stockrag/internal/domain"
)

// DefaultMaxRelated bounds the same-attribute links kept per document
const DefaultMaxRelated = 10

type Enricher struct {
	now        func() time.Time
	maxRelated int
}

type Option func(*Enricher)

// WithClock sets the clock used for time-dependent rules such as overdue
// invoices.
func WithClock(now func() time.Time) Option {
	return func(e *Enricher) {
		e.now = now
	}
}

func WithMaxRelated(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.maxRelated = n
		}
	}
}

func New(opts ...Option) *Enricher {
	e := &Enricher{
		now:        time.Now,
		maxRelated: DefaultMaxRelated,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich maps each record to a document and links documents of the same
// batch. Output order follows input order; nil records are skipped.
func (e *Enricher) Enrich(records []domain.Record) []domain.EnrichedDocument {
	now := e.now().UTC()

	kept := make([]domain.Record, 0, len(records))
	docs := make([]domain.EnrichedDocument, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		kept = append(kept, rec)
		docs = append(docs, enrichRecord(rec, now))
	}

	linkBatch(kept, docs, e.maxRelated)
	return docs
}

func enrichRecord(rec domain.Record, now time.Time) domain.EnrichedDocument {
	switch r := rec.(type) {
	case domain.User:
		return buildUser(r)
	case domain.Client:
		return buildClient(r)
	case domain.Product:
		return buildProduct(r)
	case domain.Supplier:
		return buildSupplier(r)
	case domain.Purchase:
		return buildPurchase(r, now)
	case domain.Invoice:
		return buildInvoice(r, now)
	}

	// Unreachable for the sealed Record set
	return domain.EnrichedDocument{
		ID: domain.DocumentID(rec.RecordType(), rec.RecordID()),
		Metadata: domain.DocumentMetadata{
			EntityType: rec.RecordType(),
			EntityID:   rec.RecordID(),
			Priority:   domain.PriorityLow,
			UpdatedAt:  rec.UpdatedTime(),
		},
	}
}

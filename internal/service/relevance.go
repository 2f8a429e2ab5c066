package service

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/cloo-solutions/stockrag/internal/domain"
)

// Relevance weights. They sum to 1.
const (
	weightContent    = 0.30
	weightMetadata   = 0.15
	weightEntityType = 0.10
	weightPriority   = 0.10
	weightKeywords   = 0.15
	weightConfidence = 0.10
	weightRecency    = 0.10

	recencyWindow = 7 * 24 * time.Hour
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "to": {}, "for": {}, "with": {}, "by": {},
	"in": {}, "on": {}, "at": {}, "from": {}, "as": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {},
	"been": {}, "it": {}, "this": {}, "that": {}, "these": {}, "those": {}, "we": {}, "our": {}, "you": {},
	"your": {}, "i": {}, "me": {}, "my": {}, "us": {}, "them": {}, "they": {}, "their": {}, "do": {},
	"does": {}, "did": {}, "what": {}, "how": {}, "why": {}, "when": {}, "where": {}, "which": {}, "can": {},
	"could": {}, "should": {}, "would": {}, "may": {}, "might": {}, "will": {}, "shall": {}, "any": {},
	"all": {}, "have": {}, "has": {}, "show": {}, "list": {}, "give": {}, "many": {}, "much": {},
}

// queryTerms lower-cases and tokenizes text, dropping stop words and
// duplicates.
func queryTerms(text string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, tok := range tokenize(text) {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, tok)
	}
	return terms
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func termSet(texts ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range texts {
		for _, tok := range tokenize(t) {
			set[tok] = struct{}{}
		}
	}
	return set
}

// termOverlap is the fraction of terms present in set, with a light plural
// match so "invoices" finds "invoice".
func termOverlap(terms []string, set map[string]struct{}) float64 {
	if len(terms) == 0 {
		return 0
	}
	hits := 0
	for _, t := range terms {
		if _, ok := set[t]; ok {
			hits++
			continue
		}
		if _, ok := set[strings.TrimSuffix(t, "s")]; ok {
			hits++
			continue
		}
		if _, ok := set[t+"s"]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// relevanceInput is what the scorer needs to know about the request.
type relevanceInput struct {
	terms   []string
	filters SearchFilters
	now     time.Time
}

// scoreRelevance blends content overlap, filter matches, enrichment signals
// and recency into a score in [0,1].
func scoreRelevance(in relevanceInput, c domain.IndexedChunk) float64 {
	m := c.Metadata

	content := termOverlap(in.terms, termSet(c.Content, m.Title, m.Summary))

	enrichment := append(append([]string{}, m.Keywords...), m.Tags...)
	keywords := termOverlap(in.terms, termSet(enrichment...))
	if wanted := append(append([]string{}, in.filters.Tags...), in.filters.Keywords...); len(wanted) > 0 {
		keywords = math.Max(keywords, listOverlap(wanted, enrichment))
	}

	score := weightContent*content +
		weightMetadata*metadataMatch(in.filters, m) +
		weightEntityType*entityTypeMatch(in.filters, m) +
		weightPriority*m.Priority.Weight() +
		weightKeywords*keywords +
		weightConfidence*clamp01(m.Confidence) +
		weightRecency*recency(m.UpdatedAt, in.now)

	return math.Round(clamp01(score)*10000) / 10000
}

// metadataMatch is the share of scalar filters the chunk satisfies. With no
// scalar filters every chunk matches.
func metadataMatch(f SearchFilters, m domain.ChunkMetadata) float64 {
	total, hits := 0, 0
	check := func(ok bool) {
		total++
		if ok {
			hits++
		}
	}

	if f.EntityID != "" {
		check(m.EntityID == f.EntityID)
	}
	if len(f.Status) > 0 {
		check(containsFold(f.Status, m.Status))
	}
	if len(f.Category) > 0 {
		check(containsFold(f.Category, m.Category))
	}
	if len(f.Priority) > 0 {
		check(containsPriority(f.Priority, m.Priority))
	}
	for k, v := range f.Attributes {
		check(strings.EqualFold(m.Attributes[k], v))
	}

	if total == 0 {
		return 1
	}
	return float64(hits) / float64(total)
}

func entityTypeMatch(f SearchFilters, m domain.ChunkMetadata) float64 {
	if len(f.EntityTypes) == 0 {
		return 1
	}
	for _, t := range f.EntityTypes {
		if t == m.EntityType {
			return 1
		}
	}
	return 0
}

// recency decays linearly from 1 to 0 over the recency window.
func recency(updatedAt, now time.Time) float64 {
	if updatedAt.IsZero() {
		return 0
	}
	age := now.Sub(updatedAt)
	if age <= 0 {
		return 1
	}
	if age >= recencyWindow {
		return 0
	}
	return 1 - float64(age)/float64(recencyWindow)
}

func listOverlap(wanted, have []string) float64 {
	if len(wanted) == 0 {
		return 0
	}
	hits := 0
	for _, w := range wanted {
		if containsFold(have, w) {
			hits++
		}
	}
	return float64(hits) / float64(len(wanted))
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.Priority, p domain.Priority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/stockrag/internal/domain"
	"github.com/cloo-solutions/stockrag/internal/telemetry"
)

const (
	defaultSearchLimit  = 10
	maxSearchLimit      = 50
	candidateMultiplier = 3
	minCandidates       = 20
	maxCandidates       = 200
	relatedSeedCount    = 3
	relatedPerSeed      = 3
	dedupeContentPrefix = 64
)

// SearchFilters are the semantic filters accepted by the retrieval service.
type SearchFilters struct {
	EntityTypes []domain.EntityType `json:"entity_types,omitempty"`
	EntityID    string              `json:"entity_id,omitempty"`
	Status      []string            `json:"status,omitempty"`
	Category    []string            `json:"category,omitempty"`
	Priority    []domain.Priority   `json:"priority,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	Keywords    []string            `json:"keywords,omitempty"`
	UpdatedFrom *time.Time          `json:"updated_from,omitempty"`
	UpdatedTo   *time.Time          `json:"updated_to,omitempty"`
	Attributes  map[string]string   `json:"attributes,omitempty"`
}

type SearchRequest struct {
	Query          string        `json:"query"`
	Filters        SearchFilters `json:"filters"`
	Limit          int           `json:"limit,omitempty"`
	MinScore       float64       `json:"min_score,omitempty"`
	IncludeRelated bool          `json:"include_related,omitempty"`
}

// SearchHit is one ranked chunk.
type SearchHit struct {
	ChunkID    string            `json:"chunk_id"`
	DocumentID string            `json:"document_id"`
	EntityType domain.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Summary    string            `json:"summary,omitempty"`
	Priority   domain.Priority   `json:"priority,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Similarity float64           `json:"similarity"`
	Relevance  float64           `json:"relevance"`
	Related    bool              `json:"related,omitempty"`
}

type SearchResponse struct {
	Query   string      `json:"query"`
	Hits    []SearchHit `json:"hits"`
	Related []SearchHit `json:"related,omitempty"`
	Total   int         `json:"total"`
	TookMS  int64       `json:"took_ms"`
}

// Facets count candidate hits by entity type and by month of last update.
type Facets struct {
	ByType  map[string]int `json:"by_type"`
	ByMonth map[string]int `json:"by_month"`
}

type AdvancedSearchResponse struct {
	SearchResponse
	Groups map[domain.EntityType][]SearchHit `json:"groups"`
	Facets Facets                            `json:"facets"`
}

// VectorSearcher is the part of the indexing pipeline used for retrieval.
type VectorSearcher interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	SearchByVector(ctx context.Context, vec []float32, filter domain.ChunkFilter, limit int) ([]domain.ChunkMatch, error)
	Ready() error
}

// RetrievalService ranks indexed chunks for a natural-language query.
type RetrievalService struct {
	searcher VectorSearcher
	logger   *zap.Logger
	now      func() time.Time
}

func NewRetrievalService(searcher VectorSearcher, logger *zap.Logger) *RetrievalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrievalService{
		searcher: searcher,
		logger:   logger.Named("retrieval"),
		now:      time.Now,
	}
}

// NormalizeFilters translates semantic filters into a store filter.
func NormalizeFilters(f SearchFilters) (domain.ChunkFilter, error) {
	out := domain.ChunkFilter{
		Equals:      map[string]string{},
		OneOf:       map[string][]string{},
		ContainsAny: map[string][]string{},
	}

	types := make([]string, 0, len(f.EntityTypes))
	for _, t := range f.EntityTypes {
		if !t.IsValid() {
			return domain.ChunkFilter{}, domain.ErrUnknownEntityType.WithCause(fmt.Errorf("%q", t))
		}
		types = append(types, string(t))
	}
	setList(out, "entity_type", types)

	if id := strings.TrimSpace(f.EntityID); id != "" {
		out.Equals["entity_id"] = id
	}
	setList(out, "status", lowerAll(f.Status))
	setList(out, "category", lowerAll(f.Category))

	priorities := make([]string, 0, len(f.Priority))
	for _, p := range f.Priority {
		if !p.IsValid() {
			return domain.ChunkFilter{}, domain.ErrInvalidFilter.WithCause(fmt.Errorf("priority %q", p))
		}
		priorities = append(priorities, string(p))
	}
	setList(out, "priority", priorities)

	if tags := lowerAll(f.Tags); len(tags) > 0 {
		out.ContainsAny["tags"] = tags
	}
	if kws := lowerAll(f.Keywords); len(kws) > 0 {
		out.ContainsAny["keywords"] = kws
	}

	if f.UpdatedFrom != nil || f.UpdatedTo != nil {
		out.Ranges = append(out.Ranges, domain.TimeRange{Field: "updated_at", From: f.UpdatedFrom, To: f.UpdatedTo})
	}

	for k, v := range f.Attributes {
		out.Equals["attributes."+strings.ToLower(k)] = v
	}

	if err := out.Validate(); err != nil {
		return domain.ChunkFilter{}, err
	}
	return out, nil
}

func setList(f domain.ChunkFilter, field string, values []string) {
	switch len(values) {
	case 0:
	case 1:
		f.Equals[field] = values[0]
	default:
		f.OneOf[field] = values
	}
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Search returns chunks ranked by relevance, deduplicated by document and
// content, optionally followed by related documents.
func (s *RetrievalService) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Search", telemetry.SpanAttributes{Operation: "search"})
	defer span.End()

	started := s.now()
	candidates, vec, filter, err := s.rankCandidates(ctx, req)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	limit := clampLimit(req.Limit)
	hits := candidates
	if len(hits) > limit {
		hits = hits[:limit]
	}

	resp := &SearchResponse{
		Query: req.Query,
		Hits:  hits,
		Total: len(candidates),
	}
	if req.IncludeRelated && len(hits) > 0 {
		related, err := s.expandRelated(ctx, req, vec, filter, hits)
		if err != nil {
			s.logger.Warn("related expansion failed", zap.Error(err))
		}
		resp.Related = related
	}
	resp.TookMS = s.now().Sub(started).Milliseconds()
	return resp, nil
}

// AdvancedSearch adds grouping by entity type and facet counts to Search.
func (s *RetrievalService) AdvancedSearch(ctx context.Context, req SearchRequest) (*AdvancedSearchResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.AdvancedSearch", telemetry.SpanAttributes{Operation: "search"})
	defer span.End()

	started := s.now()
	candidates, vec, filter, err := s.rankCandidates(ctx, req)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	limit := clampLimit(req.Limit)
	hits := candidates
	if len(hits) > limit {
		hits = hits[:limit]
	}

	resp := &AdvancedSearchResponse{
		SearchResponse: SearchResponse{Query: req.Query, Hits: hits, Total: len(candidates)},
		Groups:         groupByType(hits),
		Facets:         computeFacets(candidates),
	}
	if req.IncludeRelated && len(hits) > 0 {
		related, err := s.expandRelated(ctx, req, vec, filter, hits)
		if err != nil {
			s.logger.Warn("related expansion failed", zap.Error(err))
		}
		resp.Related = related
	}
	resp.TookMS = s.now().Sub(started).Milliseconds()
	return resp, nil
}

// RawSearch returns store similarity results without relevance ranking.
func (s *RetrievalService) RawSearch(ctx context.Context, query string, filters SearchFilters, limit int) ([]SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if err := s.searcher.Ready(); err != nil {
		return nil, domain.ErrIndexNotReady.WithCause(err)
	}
	filter, err := NormalizeFilters(filters)
	if err != nil {
		return nil, err
	}

	vec, err := s.searcher.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	matches, err := s.searcher.SearchByVector(ctx, vec, filter, clampLimit(limit))
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, newSearchHit(m, 0))
	}
	return hits, nil
}

func (s *RetrievalService) rankCandidates(ctx context.Context, req SearchRequest) ([]SearchHit, []float32, domain.ChunkFilter, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, nil, domain.ChunkFilter{}, domain.ErrEmptyQuery
	}
	if err := s.searcher.Ready(); err != nil {
		return nil, nil, domain.ChunkFilter{}, domain.ErrIndexNotReady.WithCause(err)
	}
	filter, err := NormalizeFilters(req.Filters)
	if err != nil {
		return nil, nil, domain.ChunkFilter{}, err
	}

	vec, err := s.searcher.EmbedQuery(ctx, query)
	if err != nil {
		return nil, nil, domain.ChunkFilter{}, err
	}
	matches, err := s.searcher.SearchByVector(ctx, vec, filter, candidateLimit(clampLimit(req.Limit)))
	if err != nil {
		return nil, nil, domain.ChunkFilter{}, err
	}

	in := relevanceInput{terms: queryTerms(query), filters: req.Filters, now: s.now()}
	return s.rank(in, matches, req.MinScore, nil), vec, filter, nil
}

// rank scores matches, drops those below minScore or already in seen, and
// keeps the best hit per dedupe key.
func (s *RetrievalService) rank(in relevanceInput, matches []domain.ChunkMatch, minScore float64, seen map[string]struct{}) []SearchHit {
	best := make(map[string]SearchHit, len(matches))
	order := make([]string, 0, len(matches))
	for _, m := range matches {
		key := dedupeKey(m.Chunk)
		if _, skip := seen[key]; skip {
			continue
		}
		hit := newSearchHit(m, scoreRelevance(in, m.Chunk))
		if hit.Relevance < minScore {
			continue
		}
		cur, ok := best[key]
		if !ok {
			order = append(order, key)
		}
		if !ok || hit.Relevance > cur.Relevance {
			best[key] = hit
		}
	}

	hits := make([]SearchHit, 0, len(order))
	for _, k := range order {
		hits = append(hits, best[k])
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Relevance != hits[j].Relevance {
			return hits[i].Relevance > hits[j].Relevance
		}
		return hits[i].Similarity > hits[j].Similarity
	})
	return hits
}

// expandRelated runs secondary searches scoped to the entity type and the
// entity id of the top hits.
func (s *RetrievalService) expandRelated(ctx context.Context, req SearchRequest, vec []float32, base domain.ChunkFilter, hits []SearchHit) ([]SearchHit, error) {
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		seen[hitKey(h)] = struct{}{}
	}

	in := relevanceInput{terms: queryTerms(req.Query), filters: req.Filters, now: s.now()}
	var related []SearchHit
	for i, h := range hits {
		if i >= relatedSeedCount {
			break
		}
		scopes := []domain.ChunkFilter{
			scopedFilter(base, map[string]string{"entity_type": string(h.EntityType)}),
			scopedFilter(base, map[string]string{"entity_type": string(h.EntityType), "entity_id": h.EntityID}),
		}
		for _, scope := range scopes {
			matches, err := s.searcher.SearchByVector(ctx, vec, scope, relatedPerSeed+1)
			if err != nil {
				return related, err
			}
			for _, r := range s.rank(in, matches, 0, seen) {
				seen[hitKey(r)] = struct{}{}
				r.Related = true
				related = append(related, r)
			}
		}
	}
	return related, nil
}

func scopedFilter(base domain.ChunkFilter, eq map[string]string) domain.ChunkFilter {
	out := domain.ChunkFilter{
		Equals:      make(map[string]string, len(base.Equals)+len(eq)),
		OneOf:       make(map[string][]string, len(base.OneOf)),
		ContainsAny: base.ContainsAny,
		Ranges:      base.Ranges,
	}
	for k, v := range base.Equals {
		out.Equals[k] = v
	}
	for k, v := range base.OneOf {
		if _, overridden := eq[k]; !overridden {
			out.OneOf[k] = v
		}
	}
	for k, v := range eq {
		out.Equals[k] = v
	}
	return out
}

func dedupeKey(c domain.IndexedChunk) string {
	return compositeKey(c.Metadata.EntityType, c.Metadata.EntityID, c.Content)
}

func hitKey(h SearchHit) string {
	return compositeKey(h.EntityType, h.EntityID, h.Content)
}

// compositeKey identifies a hit by entity type, entity id and content
// prefix.
func compositeKey(t domain.EntityType, id, content string) string {
	prefix := []rune(content)
	if len(prefix) > dedupeContentPrefix {
		prefix = prefix[:dedupeContentPrefix]
	}
	return string(t) + "|" + id + "|" + string(prefix)
}

func newSearchHit(m domain.ChunkMatch, relevance float64) SearchHit {
	c := m.Chunk
	return SearchHit{
		ChunkID:    c.ID,
		DocumentID: c.DocumentID,
		EntityType: c.Metadata.EntityType,
		EntityID:   c.Metadata.EntityID,
		Title:      c.Metadata.Title,
		Content:    c.Content,
		Summary:    c.Metadata.Summary,
		Priority:   c.Metadata.Priority,
		Tags:       c.Metadata.Tags,
		UpdatedAt:  c.Metadata.UpdatedAt,
		Similarity: m.Similarity,
		Relevance:  relevance,
	}
}

func groupByType(hits []SearchHit) map[domain.EntityType][]SearchHit {
	groups := make(map[domain.EntityType][]SearchHit)
	for _, h := range hits {
		groups[h.EntityType] = append(groups[h.EntityType], h)
	}
	return groups
}

func computeFacets(hits []SearchHit) Facets {
	f := Facets{ByType: map[string]int{}, ByMonth: map[string]int{}}
	for _, h := range hits {
		f.ByType[string(h.EntityType)]++
		if !h.UpdatedAt.IsZero() {
			f.ByMonth[h.UpdatedAt.UTC().Format("2006-01")]++
		}
	}
	return f
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	return min(limit, maxSearchLimit)
}

func candidateLimit(limit int) int {
	return max(minCandidates, min(limit*candidateMultiplier, maxCandidates))
}

// snippet shortens content for prompts and listings.
func snippet(content string, maxRunes int) string {
	r := []rune(strings.TrimSpace(content))
	if len(r) <= maxRunes {
		return string(r)
	}
	return strings.TrimSpace(string(r[:maxRunes])) + "..."
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/stockrag/internal/domain"
	"github.com/philippgille/chromem-go"
)

const (
	memoryCollectionName = "document_chunks"
	memoryPayloadKey     = "_payload"
)

var errEmbeddingRequired = errors.New("chunks must carry precomputed embeddings")

// MemoryChunkRepository keeps chunks in an in-process chromem-go collection.
// It serves development setups and tests that run without Postgres.
type MemoryChunkRepository struct {
	collection *chromem.Collection

	// mu serializes writers against the count-then-query of a search.
	mu         sync.RWMutex
	docsByType map[domain.EntityType]map[string]int
	dimsSum    int64
	chunkCount int64
	sizeBytes  int64
	chunkMeta  map[string]memoryChunkInfo
}

type memoryChunkInfo struct {
	sourceType domain.EntityType
	documentID string
	dims       int
	size       int64
}

func NewMemoryChunkRepository() (*MemoryChunkRepository, error) {
	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection(memoryCollectionName, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &MemoryChunkRepository{
		collection: collection,
		docsByType: make(map[domain.EntityType]map[string]int),
		chunkMeta:  make(map[string]memoryChunkInfo),
	}, nil
}

func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errEmbeddingRequired
}

func (r *MemoryChunkRepository) InsertChunks(ctx context.Context, chunks []domain.IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s: %w", c.ID, errEmbeddingRequired)
		}
		meta, err := flattenChunkMetadata(c)
		if err != nil {
			return err
		}
		// chromem normalizes in place; keep the caller's slice intact.
		emb := make([]float32, len(c.Embedding))
		copy(emb, c.Embedding)
		docs = append(docs, chromem.Document{
			ID:        c.ID,
			Content:   c.Content,
			Metadata:  meta,
			Embedding: emb,
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range chunks {
		r.forgetLocked(c.ID)
	}

	if err := r.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}

	for _, c := range chunks {
		info := memoryChunkInfo{
			sourceType: c.SourceType,
			documentID: c.DocumentID,
			dims:       len(c.Embedding),
			size:       int64(len(c.Content) + 4*len(c.Embedding)),
		}
		r.chunkMeta[c.ID] = info
		if r.docsByType[c.SourceType] == nil {
			r.docsByType[c.SourceType] = make(map[string]int)
		}
		r.docsByType[c.SourceType][c.DocumentID]++
		r.dimsSum += int64(info.dims)
		r.sizeBytes += info.size
		r.chunkCount++
	}
	return nil
}

// forgetLocked drops bookkeeping for a chunk about to be overwritten.
func (r *MemoryChunkRepository) forgetLocked(id string) {
	info, ok := r.chunkMeta[id]
	if !ok {
		return
	}
	delete(r.chunkMeta, id)
	docs := r.docsByType[info.sourceType]
	docs[info.documentID]--
	if docs[info.documentID] <= 0 {
		delete(docs, info.documentID)
	}
	r.dimsSum -= int64(info.dims)
	r.sizeBytes -= info.size
	r.chunkCount--
}

func (r *MemoryChunkRepository) DeleteBySourceType(ctx context.Context, t domain.EntityType) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, info := range r.chunkMeta {
		if info.sourceType == t {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := r.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, fmt.Errorf("delete %s chunks: %w", t, err)
	}
	for _, id := range ids {
		r.forgetLocked(id)
	}
	return int64(len(ids)), nil
}

func (r *MemoryChunkRepository) DeleteAll(ctx context.Context) (int64, error) {
	var total int64
	for _, t := range domain.AllEntityTypes() {
		n, err := r.DeleteBySourceType(ctx, t)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// SearchChunks runs the exact-match part of the filter inside chromem and
// applies list and range clauses to the candidates afterwards.
func (r *MemoryChunkRepository) SearchChunks(ctx context.Context, embedding []float32, filter domain.ChunkFilter, limit int) ([]domain.ChunkMatch, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	query := make([]float32, len(embedding))
	copy(query, embedding)

	r.mu.RLock()
	count := r.collection.Count()
	var (
		results []chromem.Result
		err     error
	)
	if count > 0 {
		results, err = r.collection.QueryEmbedding(ctx, query, count, filter.Equals, nil)
	}
	r.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	matches := make([]domain.ChunkMatch, 0, limit)
	for _, res := range results {
		chunk, err := unflattenChunk(res)
		if err != nil {
			return nil, err
		}
		if !matchesPostFilter(chunk.Metadata, filter) {
			continue
		}
		// Align with pgvector's 1/(1+cosine distance) scale.
		similarity := 1.0 / (2.0 - float64(res.Similarity))
		matches = append(matches, domain.ChunkMatch{Chunk: chunk, Similarity: similarity})
		if len(matches) == limit {
			break
		}
	}
	return matches, nil
}

func (r *MemoryChunkRepository) Stats(ctx context.Context) (*domain.IndexStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &domain.IndexStats{
		ChunksByType:    make(map[domain.EntityType]int64),
		DocumentsByType: make(map[domain.EntityType]int64),
		TotalChunks:     r.chunkCount,
		StorageBytes:    r.sizeBytes,
	}
	for _, info := range r.chunkMeta {
		stats.ChunksByType[info.sourceType]++
	}
	for t, docs := range r.docsByType {
		if len(docs) == 0 {
			continue
		}
		stats.DocumentsByType[t] = int64(len(docs))
		stats.TotalDocuments += int64(len(docs))
	}
	if r.chunkCount > 0 {
		stats.AverageDimensions = float64(r.dimsSum) / float64(r.chunkCount)
	}
	return stats, nil
}

func (r *MemoryChunkRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// flattenChunkMetadata lays scalar fields out as chromem string metadata so
// equality filters run natively. The full metadata rides along as JSON.
func flattenChunkMetadata(c domain.IndexedChunk) (map[string]string, error) {
	payload, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata for %s: %w", c.ID, err)
	}

	m := c.Metadata
	flat := map[string]string{
		memoryPayloadKey: string(payload),
		"source_type":    string(c.SourceType),
		"entity_type":    string(m.EntityType),
		"entity_id":      m.EntityID,
		"document_id":    c.DocumentID,
		"title":          m.Title,
		"status":         m.Status,
		"priority":       string(m.Priority),
		"category":       m.Category,
		"chunk_index":    strconv.Itoa(c.ChunkIndex),
	}
	for k, v := range m.Attributes {
		flat["attributes."+k] = v
	}
	return flat, nil
}

func unflattenChunk(res chromem.Result) (domain.IndexedChunk, error) {
	chunk := domain.IndexedChunk{
		ID:      res.ID,
		Content: res.Content,
	}
	if err := json.Unmarshal([]byte(res.Metadata[memoryPayloadKey]), &chunk.Metadata); err != nil {
		return chunk, fmt.Errorf("decode metadata for %s: %w", res.ID, err)
	}
	chunk.DocumentID = res.Metadata["document_id"]
	chunk.SourceType = domain.EntityType(res.Metadata["source_type"])
	chunk.ChunkIndex = chunk.Metadata.ChunkIndex
	return chunk, nil
}

func matchesPostFilter(m domain.ChunkMetadata, f domain.ChunkFilter) bool {
	for field, values := range f.OneOf {
		if !containsString(values, scalarField(m, field)) {
			return false
		}
	}

	for field, values := range f.ContainsAny {
		list := m.Tags
		if field == "keywords" {
			list = m.Keywords
		}
		found := false
		for _, v := range values {
			if containsString(list, v) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, rng := range f.Ranges {
		ts := timeField(m, rng.Field)
		if rng.From != nil && ts.Before(*rng.From) {
			return false
		}
		if rng.To != nil && ts.After(*rng.To) {
			return false
		}
	}
	return true
}

func scalarField(m domain.ChunkMetadata, field string) string {
	if attr, ok := strings.CutPrefix(field, "attributes."); ok {
		return m.Attributes[attr]
	}
	switch field {
	case "entity_type":
		return string(m.EntityType)
	case "entity_id":
		return m.EntityID
	case "document_id":
		return m.DocumentID
	case "title":
		return m.Title
	case "status":
		return m.Status
	case "priority":
		return string(m.Priority)
	case "category":
		return m.Category
	}
	return ""
}

func timeField(m domain.ChunkMetadata, field string) time.Time {
	switch field {
	case "created_at":
		return m.CreatedAt
	case "processed_at":
		return m.ProcessedAt
	}
	return m.UpdatedAt
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cloo-solutions/stockrag/internal/domain"
)

// DefaultIndexBatchSize bounds the number of chunks per embed/insert call.
const DefaultIndexBatchSize = 50

// Embedder converts text into vectors.
type Embedder interface {
	Name() string
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Ping(ctx context.Context) error
}

// ChunkStore persists indexed chunks and answers similarity queries.
type ChunkStore interface {
	InsertChunks(ctx context.Context, chunks []domain.IndexedChunk) error
	DeleteBySourceType(ctx context.Context, t domain.EntityType) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
	SearchChunks(ctx context.Context, embedding []float32, filter domain.ChunkFilter, limit int) ([]domain.ChunkMatch, error)
	Stats(ctx context.Context) (*domain.IndexStats, error)
	Ping(ctx context.Context) error
}

type IndexConfig struct {
	Chunk     ChunkConfig
	BatchSize int
	// EmbeddingRPS limits embedding calls per second. Zero disables the limit.
	EmbeddingRPS float64
}

// IndexResult describes one replace-by-type pass.
type IndexResult struct {
	SourceType domain.EntityType `json:"source_type"`
	Deleted    int64             `json:"deleted"`
	Documents  int               `json:"documents"`
	Chunks     int               `json:"chunks"`
}

// IndexingService chunks enriched documents, embeds the chunks and stores
// them, and runs similarity search over the store.
type IndexingService struct {
	store     ChunkStore
	embedder  Embedder
	chunker   *Chunker
	batchSize int
	limiter   *rate.Limiter
	ready     *Readiness
	logger    *zap.Logger
	now       func() time.Time
}

// NewIndexingService creates an IndexingService. ready gates every operation
// that needs the embedder.
func NewIndexingService(store ChunkStore, embedder Embedder, cfg IndexConfig, ready *Readiness, logger *zap.Logger) *IndexingService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultIndexBatchSize
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.EmbeddingRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EmbeddingRPS), 1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexingService{
		store:     store,
		embedder:  embedder,
		chunker:   NewChunker(cfg.Chunk),
		batchSize: cfg.BatchSize,
		limiter:   limiter,
		ready:     ready,
		logger:    logger.Named("indexing"),
		now:       time.Now,
	}
}

// Ready returns nil once the embedder is usable.
func (s *IndexingService) Ready() error {
	return s.ready.Err()
}

// Ping checks the chunk store.
func (s *IndexingService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ReplaceSourceType deletes every chunk of sourceType and indexes docs in
// its place. The two steps are not atomic.
func (s *IndexingService) ReplaceSourceType(ctx context.Context, sourceType domain.EntityType, docs []domain.EnrichedDocument) (*IndexResult, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}

	deleted, err := s.store.DeleteBySourceType(ctx, sourceType)
	if err != nil {
		return nil, fmt.Errorf("delete %s chunks: %w", sourceType, err)
	}

	chunks, err := s.IndexDocuments(ctx, sourceType, docs)
	if err != nil {
		return nil, err
	}

	return &IndexResult{
		SourceType: sourceType,
		Deleted:    deleted,
		Documents:  len(docs),
		Chunks:     chunks,
	}, nil
}

// IndexDocuments chunks, embeds and stores docs. Batches run sequentially.
// It returns the number of chunks stored.
func (s *IndexingService) IndexDocuments(ctx context.Context, sourceType domain.EntityType, docs []domain.EnrichedDocument) (int, error) {
	if err := s.Ready(); err != nil {
		return 0, err
	}

	chunks, err := s.buildChunks(sourceType, docs)
	if err != nil {
		return 0, err
	}

	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))
		if err := s.indexBatch(ctx, chunks[start:end]); err != nil {
			return start, fmt.Errorf("index %s batch %d-%d: %w", sourceType, start, end, err)
		}
	}

	s.logger.Debug("indexed documents",
		zap.String("source_type", string(sourceType)),
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
	)
	return len(chunks), nil
}

func (s *IndexingService) indexBatch(ctx context.Context, batch []domain.IndexedChunk) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = embeddingText(c)
	}

	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embed: got %d vectors for %d chunks", len(vectors), len(batch))
	}
	for i := range batch {
		batch[i].Embedding = vectors[i]
	}

	return s.store.InsertChunks(ctx, batch)
}

func (s *IndexingService) buildChunks(sourceType domain.EntityType, docs []domain.EnrichedDocument) ([]domain.IndexedChunk, error) {
	processedAt := s.now().UTC()

	var chunks []domain.IndexedChunk
	for _, doc := range docs {
		parts, err := s.chunker.Split(doc.Content)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", doc.ID, err)
		}
		for i, part := range parts {
			chunks = append(chunks, domain.IndexedChunk{
				ID:         domain.ChunkID(doc.ID, i),
				DocumentID: doc.ID,
				SourceType: sourceType,
				ChunkIndex: i,
				Content:    part,
				Metadata:   chunkMetadata(doc, i, part, processedAt),
			})
		}
	}
	return chunks, nil
}

func chunkMetadata(doc domain.EnrichedDocument, index int, content string, processedAt time.Time) domain.ChunkMetadata {
	attrs := make(map[string]string)
	for k, v := range doc.Metadata.Extra {
		if v != "" {
			attrs[k] = v
		}
	}
	if doc.Metadata.Attributes != nil {
		for k, v := range doc.Metadata.Attributes.Fields() {
			if v != "" {
				attrs[k] = v
			}
		}
	}

	return domain.ChunkMetadata{
		EntityType:    doc.Metadata.EntityType,
		EntityID:      doc.Metadata.EntityID,
		DocumentID:    doc.ID,
		Title:         doc.Metadata.Title,
		Status:        doc.Metadata.Status,
		Priority:      doc.Metadata.Priority,
		Category:      doc.Metadata.Category,
		Summary:       doc.Summary,
		Confidence:    doc.Metadata.Confidence,
		Keywords:      doc.Keywords,
		Tags:          doc.Tags,
		ChunkIndex:    index,
		ContentLength: len([]rune(content)),
		CreatedAt:     doc.Metadata.CreatedAt,
		UpdatedAt:     doc.Metadata.UpdatedAt,
		ProcessedAt:   processedAt,
		Attributes:    attrs,
	}
}

// embeddingText prefixes the chunk with its document title so short chunks
// keep their subject.
func embeddingText(c domain.IndexedChunk) string {
	if c.Metadata.Title == "" || strings.Contains(c.Content, c.Metadata.Title) {
		return c.Content
	}
	return c.Metadata.Title + "\n\n" + c.Content
}

// EmbedQuery embeds a search query.
func (s *IndexingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	vec, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}

// Search embeds query and returns the closest chunks matching filter.
func (s *IndexingService) Search(ctx context.Context, query string, filter domain.ChunkFilter, limit int) ([]domain.ChunkMatch, error) {
	vec, err := s.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.SearchByVector(ctx, vec, filter, limit)
}

// SearchByVector runs similarity search with a precomputed query vector.
func (s *IndexingService) SearchByVector(ctx context.Context, vec []float32, filter domain.ChunkFilter, limit int) ([]domain.ChunkMatch, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return s.store.SearchChunks(ctx, vec, filter, limit)
}

// DeleteSourceType removes every chunk of t.
func (s *IndexingService) DeleteSourceType(ctx context.Context, t domain.EntityType) (int64, error) {
	return s.store.DeleteBySourceType(ctx, t)
}

// Clear removes every chunk from the store.
func (s *IndexingService) Clear(ctx context.Context) (int64, error) {
	return s.store.DeleteAll(ctx)
}

func (s *IndexingService) Stats(ctx context.Context) (*domain.IndexStats, error) {
	return s.store.Stats(ctx)
}

package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cloo-solutions/stockrag/internal/domain"
)

func testDocument(t domain.EntityType, id, content string) domain.EnrichedDocument {
	return domain.EnrichedDocument{
		ID:      domain.DocumentID(t, id),
		Content: content,
		Metadata: domain.DocumentMetadata{
			EntityType: t,
			EntityID:   id,
			Title:      "Doc " + id,
			Priority:   domain.PriorityMedium,
			Confidence: 0.8,
			UpdatedAt:  fixedNow,
			Attributes: domain.ProductAttributes{SKU: "SKU-" + id},
			Extra:      map[string]string{"warehouse": "north", "empty": ""},
		},
		Keywords: []string{"product"},
		Tags:     []string{"low-stock"},
		Summary:  "summary " + id,
	}
}

func newTestIndexer(t *testing.T, store ChunkStore, embedder Embedder, cfg IndexConfig) *IndexingService {
	s := NewIndexingService(store, embedder, cfg, readyReadiness(), zaptest.NewLogger(t))
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestReplaceSourceType_ReplacesPreviousChunks(t *testing.T) {
	store := newRecordingStore()
	s := newTestIndexer(t, store, &hashEmbedder{}, IndexConfig{})

	_, err := s.ReplaceSourceType(context.Background(), domain.EntityProducts, []domain.EnrichedDocument{
		testDocument(domain.EntityProducts, "p1", "Bolts"),
		testDocument(domain.EntityProducts, "p2", "Wire"),
	})
	require.NoError(t, err)

	res, err := s.ReplaceSourceType(context.Background(), domain.EntityProducts, []domain.EnrichedDocument{
		testDocument(domain.EntityProducts, "p3", "Gloves"),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Deleted)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, 1, store.count(domain.EntityProducts))
}

func TestIndexDocuments_BatchesSequentially(t *testing.T) {
	store := newRecordingStore()
	embedder := &hashEmbedder{}
	s := newTestIndexer(t, store, embedder, IndexConfig{BatchSize: 2})

	var docs []domain.EnrichedDocument
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		docs = append(docs, testDocument(domain.EntityProducts, id, "Product "+id))
	}

	n, err := s.IndexDocuments(context.Background(), domain.EntityProducts, docs)
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, 3, store.inserts)
	assert.Equal(t, 3, embedder.calls)
}

func TestIndexDocuments_ChunkMetadata(t *testing.T) {
	store := newRecordingStore()
	s := newTestIndexer(t, store, &hashEmbedder{}, IndexConfig{})

	_, err := s.IndexDocuments(context.Background(), domain.EntityProducts, []domain.EnrichedDocument{
		testDocument(domain.EntityProducts, "p1", "Steel bolts\r\n\r\n\r\n\r\nin stock\x00"),
	})
	require.NoError(t, err)

	c := store.chunks["products:p1#0"]
	assert.Equal(t, "Steel bolts\n\nin stock", c.Content)
	assert.Len(t, c.Embedding, testDims)
	assert.Equal(t, "products:p1", c.Metadata.DocumentID)
	assert.Equal(t, "summary p1", c.Metadata.Summary)
	assert.Equal(t, fixedNow, c.Metadata.ProcessedAt)
	assert.Equal(t, "north", c.Metadata.Attributes["warehouse"])
	assert.Equal(t, "SKU-p1", c.Metadata.Attributes["sku"])
	assert.NotContains(t, c.Metadata.Attributes, "empty")
}

func TestIndexDocuments_EmbedFailure(t *testing.T) {
	store := newRecordingStore()
	s := newTestIndexer(t, store, &hashEmbedder{err: errors.New("quota exceeded")}, IndexConfig{})

	_, err := s.IndexDocuments(context.Background(), domain.EntityProducts, []domain.EnrichedDocument{
		testDocument(domain.EntityProducts, "p1", "Bolts"),
	})
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Zero(t, store.inserts)
}

func TestIndexingService_RequiresReadyEmbedder(t *testing.T) {
	s := NewIndexingService(newRecordingStore(), &hashEmbedder{}, IndexConfig{}, NewReadiness(), zaptest.NewLogger(t))

	_, err := s.ReplaceSourceType(context.Background(), domain.EntityProducts, nil)
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	_, err = s.EmbedQuery(context.Background(), "bolts")
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestEmbeddingText(t *testing.T) {
	c := domain.IndexedChunk{Content: "500 in stock", Metadata: domain.ChunkMetadata{Title: "Steel bolts"}}
	assert.Equal(t, "Steel bolts\n\n500 in stock", embeddingText(c))

	c.Content = "Steel bolts: 500 in stock"
	assert.Equal(t, c.Content, embeddingText(c))
}

func TestChunkConfig_EffectiveOverlap(t *testing.T) {
	tests := []struct {
		size, overlap, expected int
	}{
		{1000, 200, 200},
		{1000, 500, 200},
		{100, 50, 20},
		{100, 0, 0},
		{100, -5, 0},
		{4, 3, 0},
		{1, 1, 0},
	}

	for _, tt := range tests {
		cfg := ChunkConfig{Size: tt.size, Overlap: tt.overlap}
		got := cfg.EffectiveOverlap()
		assert.Equal(t, tt.expected, got, "size=%d overlap=%d", tt.size, tt.overlap)
		assert.Less(t, got, tt.size)
		assert.GreaterOrEqual(t, got, 0)
	}
}

func TestChunker_Split(t *testing.T) {
	c := NewChunker(ChunkConfig{Size: 120, Overlap: 100})
	assert.Equal(t, 24, c.Config().Overlap)

	short, err := c.Split("  Steel bolts.  ")
	require.NoError(t, err)
	assert.Equal(t, []string{"Steel bolts."}, short)

	empty, err := c.Split("\x00\r\n ")
	require.NoError(t, err)
	assert.Empty(t, empty)

	sentence := "Product Steel bolts has 500 units in the north warehouse. "
	long, err := c.Split(strings.Repeat(sentence, 10))
	require.NoError(t, err)
	require.Greater(t, len(long), 1)
	for _, part := range long {
		assert.LessOrEqual(t, len([]rune(part)), 120)
		assert.NotEmpty(t, part)
	}
}

func TestCleanContent(t *testing.T) {
	assert.Equal(t, "a\n\nb\tc", cleanContent("a\r\n\r\n\r\n\r\nb\tc\x07"))
	assert.Equal(t, "", cleanContent(" \n \x01"))
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloo-solutions/stockrag/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepository stores embedded document chunks in pgvector.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// InsertChunks writes chunks in a single round trip. A chunk whose id already
// exists is overwritten.
func (r *ChunkRepository) InsertChunks(ctx context.Context, chunks []domain.IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for %s: %w", c.ID, err)
		}
		batch.Queue(
			`INSERT INTO document_chunks (id, document_id, source_type, chunk_index, content, metadata, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO UPDATE SET
				document_id = EXCLUDED.document_id,
				source_type = EXCLUDED.source_type,
				chunk_index = EXCLUDED.chunk_index,
				content = EXCLUDED.content,
				metadata = EXCLUDED.metadata,
				embedding = EXCLUDED.embedding`,
			c.ID, c.DocumentID, string(c.SourceType), c.ChunkIndex, c.Content, meta, pgvector.NewVector(c.Embedding),
		)
	}

	br := r.db.SendBatch(ctx, batch)
	for _, c := range chunks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	return br.Close()
}

func (r *ChunkRepository) DeleteBySourceType(ctx context.Context, t domain.EntityType) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM document_chunks WHERE source_type = $1`, string(t))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *ChunkRepository) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM document_chunks`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SearchChunks returns the chunks nearest to embedding by cosine distance.
// Similarity is 1/(1+distance), so 1 means identical direction.
func (r *ChunkRepository) SearchChunks(ctx context.Context, embedding []float32, filter domain.ChunkFilter, limit int) ([]domain.ChunkMatch, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	where, filterArgs := buildChunkFilter(filter, 2)
	args := append([]any{pgvector.NewVector(embedding)}, filterArgs...)
	args = append(args, limit)

	query := `
		SELECT id, document_id, source_type, chunk_index, content, metadata,
		       1.0 / (1.0 + (embedding <=> $1)) AS similarity
		FROM document_chunks` + where + fmt.Sprintf(`
		ORDER BY embedding <=> $1
		LIMIT $%d`, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]domain.ChunkMatch, 0)
	for rows.Next() {
		var m domain.ChunkMatch
		var sourceType string
		var meta []byte
		if err := rows.Scan(&m.Chunk.ID, &m.Chunk.DocumentID, &sourceType, &m.Chunk.ChunkIndex, &m.Chunk.Content, &meta, &m.Similarity); err != nil {
			return nil, err
		}
		m.Chunk.SourceType = domain.EntityType(sourceType)
		if err := json.Unmarshal(meta, &m.Chunk.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", m.Chunk.ID, err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *ChunkRepository) Stats(ctx context.Context) (*domain.IndexStats, error) {
	stats := &domain.IndexStats{
		ChunksByType:    make(map[domain.EntityType]int64),
		DocumentsByType: make(map[domain.EntityType]int64),
	}

	rows, err := r.db.Query(ctx,
		`SELECT source_type, COUNT(*), COUNT(DISTINCT document_id)
		 FROM document_chunks
		 GROUP BY source_type`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var sourceType string
		var chunks, docs int64
		if err := rows.Scan(&sourceType, &chunks, &docs); err != nil {
			return nil, err
		}
		t := domain.EntityType(sourceType)
		stats.ChunksByType[t] = chunks
		stats.DocumentsByType[t] = docs
		stats.TotalChunks += chunks
		stats.TotalDocuments += docs
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.db.QueryRow(ctx,
		`SELECT COALESCE(AVG(vector_dims(embedding)), 0)::float8,
		        pg_total_relation_size('document_chunks')
		 FROM document_chunks`,
	).Scan(&stats.AverageDimensions, &stats.StorageBytes)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *ChunkRepository) Ping(ctx context.Context) error {
	return ping(ctx, r.db)
}

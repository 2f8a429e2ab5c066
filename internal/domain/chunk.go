package domain

import (
	"fmt"
	"regexp"
	"time"
)

// ChunkMetadata is stored alongside every indexed chunk. Fields carry JSON
// tags because the pgvector store keeps them in a JSONB column and filters
// address them by these names.
type ChunkMetadata struct {
	EntityType    EntityType        `json:"entity_type"`
	EntityID      string            `json:"entity_id"`
	DocumentID    string            `json:"document_id"`
	Title         string            `json:"title"`
	Status        string            `json:"status,omitempty"`
	Priority      Priority          `json:"priority"`
	Category      string            `json:"category,omitempty"`
	Summary       string            `json:"summary,omitempty"`
	Confidence    float64           `json:"confidence"`
	Keywords      []string          `json:"keywords"`
	Tags          []string          `json:"tags"`
	ChunkIndex    int               `json:"chunk_index"`
	ContentLength int               `json:"content_length"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	ProcessedAt   time.Time         `json:"processed_at"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// IndexedChunk is one embedded fragment of an enriched document
type IndexedChunk struct {
	ID         string
	DocumentID string
	SourceType EntityType
	ChunkIndex int
	Content    string
	Embedding  []float32
	Metadata   ChunkMetadata
}

// ChunkID builds the chunk identifier from its parent document id
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s#%d", documentID, index)
}

// ChunkMatch is a chunk returned by similarity search
type ChunkMatch struct {
	Chunk      IndexedChunk
	Similarity float64
}

// TimeRange bounds a timestamp field. Nil ends are open.
type TimeRange struct {
	Field string
	From  *time.Time
	To    *time.Time
}

// ChunkFilter narrows a similarity search. Field names refer to the JSON
// names of ChunkMetadata; "attributes.<name>" addresses a flattened
// attribute.
type ChunkFilter struct {
	Equals      map[string]string
	OneOf       map[string][]string
	ContainsAny map[string][]string
	Ranges      []TimeRange
}

var (
	filterFieldPattern = regexp.MustCompile(`^[a-z_]+(\.[a-z_]+)?$`)

	listFields = map[string]bool{"tags": true, "keywords": true}
	timeFields = map[string]bool{"created_at": true, "updated_at": true, "processed_at": true}
)

// IsEmpty reports whether the filter has no constraints
func (f ChunkFilter) IsEmpty() bool {
	return len(f.Equals) == 0 && len(f.OneOf) == 0 && len(f.ContainsAny) == 0 && len(f.Ranges) == 0
}

// Validate rejects field names that cannot be addressed safely
func (f ChunkFilter) Validate() error {
	for field := range f.Equals {
		if err := validateScalarField(field); err != nil {
			return err
		}
	}
	for field := range f.OneOf {
		if err := validateScalarField(field); err != nil {
			return err
		}
	}
	for field := range f.ContainsAny {
		if !listFields[field] {
			return ErrInvalidFilter.WithCause(fmt.Errorf("field %q is not a list field", field))
		}
	}
	for _, r := range f.Ranges {
		if !timeFields[r.Field] {
			return ErrInvalidFilter.WithCause(fmt.Errorf("field %q is not a timestamp field", r.Field))
		}
		if r.From != nil && r.To != nil && r.From.After(*r.To) {
			return ErrInvalidFilter.WithCause(fmt.Errorf("range on %q ends before it starts", r.Field))
		}
	}
	return nil
}

func validateScalarField(field string) error {
	if !filterFieldPattern.MatchString(field) || listFields[field] {
		return ErrInvalidFilter.WithCause(fmt.Errorf("field %q", field))
	}
	return nil
}

// IndexStats summarizes the contents of a chunk store
type IndexStats struct {
	TotalChunks       int64
	TotalDocuments    int64
	ChunksByType      map[EntityType]int64
	DocumentsByType   map[EntityType]int64
	AverageDimensions float64
	StorageBytes      int64
}

package service

import (
	"strings"
	"unicode"

	"github.com/tmc/langchaingo/textsplitter"
)

// ChunkConfig controls how document content is split before embedding.
// Sizes are counted in runes.
type ChunkConfig struct {
	Size    int
	Overlap int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:    1000,
		Overlap: 200,
	}
}

// maxOverlapRatio caps the overlap at a fifth of the chunk size.
const maxOverlapRatio = 0.2

var chunkSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// EffectiveOverlap returns the overlap actually used: the configured value
// capped at 20% of the size, never negative and always below the size.
func (c ChunkConfig) EffectiveOverlap() int {
	if c.Size <= 0 {
		return 0
	}
	overlap := c.Overlap
	if limit := int(float64(c.Size) * maxOverlapRatio); overlap > limit {
		overlap = limit
	}
	if overlap >= c.Size {
		overlap = c.Size - 1
	}
	if overlap < 0 {
		overlap = 0
	}
	return overlap
}

// Chunker splits cleaned content with a recursive separator strategy:
// paragraphs, then lines, then sentences, then words.
type Chunker struct {
	cfg      ChunkConfig
	splitter textsplitter.RecursiveCharacter
}

func NewChunker(cfg ChunkConfig) *Chunker {
	if cfg.Size <= 0 {
		cfg = DefaultChunkConfig()
	}
	cfg.Overlap = cfg.EffectiveOverlap()

	return &Chunker{
		cfg: cfg,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.Size),
			textsplitter.WithChunkOverlap(cfg.Overlap),
			textsplitter.WithSeparators(chunkSeparators),
		),
	}
}

func (c *Chunker) Config() ChunkConfig {
	return c.cfg
}

// Split cleans text and returns its non-empty chunks.
func (c *Chunker) Split(text string) ([]string, error) {
	clean := cleanContent(text)
	if clean == "" {
		return nil, nil
	}
	if len([]rune(clean)) <= c.cfg.Size {
		return []string{clean}, nil
	}

	parts, err := c.splitter.SplitText(clean)
	if err != nil {
		return nil, err
	}

	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks, nil
}

// cleanContent normalizes line endings, strips control characters other
// than newline and tab, and collapses runs of blank lines.
func cleanContent(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	b.Grow(len(text))
	newlines := 0
	for _, r := range text {
		if r == '\n' {
			newlines++
			if newlines > 2 {
				continue
			}
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) && r != '\t' {
			continue
		}
		newlines = 0
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const (
	ProviderLocal = "ollama"

	DefaultOllamaURL = "http://localhost:11434"
)

var ErrEmptyPrompt = errors.New("prompt cannot be empty")

// OllamaConfig selects the local server and model.
type OllamaConfig struct {
	ServerURL string
	Model     string
	// EmbeddingModel is only used by NewOllamaEmbedder.
	EmbeddingModel string
	Dimensions     int
}

// OllamaGenerator runs prompts against a local Ollama server.
type OllamaGenerator struct {
	llm    llms.Model
	model  string
	preset Preset
}

func NewOllamaGenerator(cfg OllamaConfig) (*OllamaGenerator, error) {
	if cfg.Model == "" {
		return nil, errors.New("ollama model is required")
	}
	serverURL := cfg.ServerURL
	if serverURL == "" {
		serverURL = DefaultOllamaURL
	}

	preset := PresetFor(cfg.Model)
	opts := []ollama.Option{
		ollama.WithServerURL(serverURL),
		ollama.WithModel(cfg.Model),
		ollama.WithRunnerNumCtx(preset.ContextWindow),
	}
	if preset.Threads > 0 {
		opts = append(opts, ollama.WithRunnerNumThread(preset.Threads))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}

	return newOllamaGenerator(llm, cfg.Model), nil
}

func newOllamaGenerator(llm llms.Model, model string) *OllamaGenerator {
	return &OllamaGenerator{
		llm:    llm,
		model:  model,
		preset: PresetFor(model),
	}
}

func (g *OllamaGenerator) Name() string  { return ProviderLocal }
func (g *OllamaGenerator) Model() string { return g.model }

// Generate returns the completion of prompt. Cancelling ctx aborts the
// underlying HTTP request.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string, params SamplingParams) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	sp := g.preset.Sampling(params)
	text, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt,
		llms.WithTemperature(sp.Temperature),
		llms.WithTopP(sp.TopP),
		llms.WithMaxTokens(sp.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Ping issues a one-token generation, which also loads the model into memory.
func (g *OllamaGenerator) Ping(ctx context.Context) error {
	_, err := llms.GenerateFromSinglePrompt(ctx, g.llm, "ping", llms.WithMaxTokens(1))
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	return nil
}

// OllamaEmbedder produces embeddings through a local Ollama server.
type OllamaEmbedder struct {
	embedder   embeddings.Embedder
	model      string
	dimensions int
}

func NewOllamaEmbedder(cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.EmbeddingModel == "" {
		return nil, errors.New("ollama embedding model is required")
	}
	serverURL := cfg.ServerURL
	if serverURL == "" {
		serverURL = DefaultOllamaURL
	}

	llm, err := ollama.New(ollama.WithServerURL(serverURL), ollama.WithModel(cfg.EmbeddingModel))
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return newOllamaEmbedder(llm, cfg.EmbeddingModel, cfg.Dimensions)
}

func newOllamaEmbedder(client embeddings.EmbedderClient, model string, dimensions int) (*OllamaEmbedder, error) {
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &OllamaEmbedder{embedder: embedder, model: model, dimensions: dimensions}, nil
}

func (e *OllamaEmbedder) Name() string {
	return ProviderLocal + ":" + e.model
}

func (e *OllamaEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OllamaEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyPrompt
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d texts", len(vectors), len(texts))
	}
	if e.dimensions > 0 {
		for _, v := range vectors {
			if len(v) != e.dimensions {
				return nil, fmt.Errorf("ollama embed: got %d dimensions, want %d", len(v), e.dimensions)
			}
		}
	}
	return vectors, nil
}

func (e *OllamaEmbedder) Ping(ctx context.Context) error {
	if _, err := e.embedder.EmbedQuery(ctx, "ping"); err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	return nil
}

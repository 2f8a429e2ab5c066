package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the vector size requested from the model
	DefaultEmbeddingDimensions = 1536
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoAPIKey is returned when OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
	// ErrCountMismatch is returned when the API returns fewer vectors than inputs
	ErrCountMismatch = errors.New("embedding count does not match input count")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	ListModels(ctx context.Context) error
}

// Client wraps the OpenAI API client
type Client struct {
	api        EmbeddingAPI
	model      string
	dimensions int
}

type OpenAIAdapter struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

func newAPIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func NewOpenAIAdapter(apiKey, baseURL string, model openai.EmbeddingModel, dimensions int) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{
		client:     newAPIClient(apiKey, baseURL),
		model:      model,
		dimensions: dimensions,
	}
}

// CreateEmbeddings calls the OpenAI API to create one embedding per input,
// returned in input order.
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: a.model,
	}
	// Only the text-embedding-3 family accepts a reduced dimension count.
	if strings.HasPrefix(string(a.model), "text-embedding-3") {
		req.Dimensions = a.dimensions
	}

	resp, err := a.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (a *OpenAIAdapter) ListModels(ctx context.Context) error {
	_, err := a.client.ListModels(ctx)
	return err
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      string
	EmbeddingDimensions int
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = string(DefaultEmbeddingModel)
	}
	return &Client{
		api:        NewOpenAIAdapter(cfg.APIKey, cfg.BaseURL, openai.EmbeddingModel(model), dimensions),
		model:      model,
		dimensions: dimensions,
	}
}

// NewClientFromEnv creates a new OpenAI client using OPENAI_API_KEY environment variable
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// Name identifies the provider in logs and health reports.
func (c *Client) Name() string {
	return "openai:" + c.model
}

// Ping verifies the API is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("openai unreachable: %w", err)
	}
	return nil
}

// EmbedText generates an embedding for the given text
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates embeddings for a batch of texts in one request
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyText
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, ErrEmptyText
		}
	}

	vectors, err := c.api.CreateEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, len(vectors), len(texts))
	}

	for _, v := range vectors {
		if len(v) != c.dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrWrongDimensions, len(v), c.dimensions)
		}
	}

	return vectors, nil
}

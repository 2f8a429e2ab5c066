package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOpenAIAPI is a mock for the OpenAI API
type MockOpenAIAPI struct {
	mock.Mock
}

func (m *MockOpenAIAPI) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockOpenAIAPI) ListModels(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func vector(dims int, seed float32) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func TestClient_EmbedText_Success(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI, dimensions: 1536}

	ctx := context.Background()
	text := "Invoice F-2026-001 for client Atlas is overdue."
	expected := vector(1536, 0)

	mockAPI.On("CreateEmbeddings", ctx, []string{text}).Return([][]float32{expected}, nil)

	embedding, err := client.EmbedText(ctx, text)

	assert.NoError(t, err)
	assert.Len(t, embedding, 1536)
	assert.Equal(t, expected, embedding)
	mockAPI.AssertExpectations(t)
}

func TestClient_EmbedTexts_Batch(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI, dimensions: 4}

	ctx := context.Background()
	texts := []string{"a", "b", "c"}
	vectors := [][]float32{vector(4, 1), vector(4, 2), vector(4, 3)}
	mockAPI.On("CreateEmbeddings", ctx, texts).Return(vectors, nil)

	got, err := client.EmbedTexts(ctx, texts)

	require.NoError(t, err)
	assert.Equal(t, vectors, got)
}

func TestClient_EmbedTexts_CountMismatch(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI, dimensions: 4}

	ctx := context.Background()
	mockAPI.On("CreateEmbeddings", ctx, []string{"a", "b"}).Return([][]float32{vector(4, 1)}, nil)

	_, err := client.EmbedTexts(ctx, []string{"a", "b"})

	assert.ErrorIs(t, err, ErrCountMismatch)
}

func TestClient_EmbedText_EmptyText(t *testing.T) {
	client := NewClient("")

	ctx := context.Background()
	embedding, err := client.EmbedText(ctx, "")

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.Equal(t, ErrEmptyText, err)

	_, err = client.EmbedTexts(ctx, []string{"ok", "   "})
	assert.Equal(t, ErrEmptyText, err)
}

func TestClient_EmbedText_APIError(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI, dimensions: 1536}

	ctx := context.Background()
	text := "Test text"
	apiErr := errors.New("API rate limit exceeded")

	mockAPI.On("CreateEmbeddings", ctx, []string{text}).Return(nil, apiErr)

	embedding, err := client.EmbedText(ctx, text)

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.Contains(t, err.Error(), "failed to create embedding")
	mockAPI.AssertExpectations(t)
}

func TestClient_EmbedText_WrongDimensions(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI, dimensions: 1536}

	ctx := context.Background()
	text := "Test text"

	mockAPI.On("CreateEmbeddings", ctx, []string{text}).Return([][]float32{make([]float32, 512)}, nil)

	embedding, err := client.EmbedText(ctx, text)

	assert.Nil(t, embedding)
	assert.ErrorIs(t, err, ErrWrongDimensions)
	mockAPI.AssertExpectations(t)
}

func TestClient_Ping(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI, dimensions: 1536}

	ctx := context.Background()
	mockAPI.On("ListModels", ctx).Return(errors.New("401 unauthorized")).Once()
	assert.Error(t, client.Ping(ctx))

	mockAPI.On("ListModels", ctx).Return(nil).Once()
	assert.NoError(t, client.Ping(ctx))
}

func TestNewClient(t *testing.T) {
	client := NewClient("test-api-key")

	assert.NotNil(t, client)
	assert.NotNil(t, client.api)
	assert.Equal(t, DefaultEmbeddingDimensions, client.dimensions)
	assert.Equal(t, "openai:text-embedding-3-small", client.Name())
}

func TestNewClientFromEnv_NoAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	client, err := NewClientFromEnv()

	assert.Nil(t, client)
	assert.Error(t, err)
	assert.Equal(t, ErrNoAPIKey, err)
}

func TestNewClientFromEnv_WithAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-api-key")

	client, err := NewClientFromEnv()

	assert.NotNil(t, client)
	assert.NoError(t, err)
}

package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/stockrag/internal/generation"
)

const (
	ProviderHosted = "openai"

	DefaultChatModel = openai.GPT4oMini
)

var ErrEmptyCompletion = errors.New("completion returned no choices")

// ChatAPI is the subset of the chat completion endpoint used by ChatClient.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// ChatClient generates answers with a hosted chat model.
type ChatClient struct {
	api    ChatAPI
	model  string
	preset generation.Preset
}

func NewChatClient(cfg Config, model string) *ChatClient {
	return newChatClient(newAPIClient(cfg.APIKey, cfg.BaseURL), model)
}

func newChatClient(api ChatAPI, model string) *ChatClient {
	if model == "" {
		model = DefaultChatModel
	}
	return &ChatClient{api: api, model: model, preset: generation.PresetFor(model)}
}

func (c *ChatClient) Name() string  { return ProviderHosted }
func (c *ChatClient) Model() string { return c.model }

func (c *ChatClient) Generate(ctx context.Context, prompt string, params generation.SamplingParams) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyText
	}

	sp := c.preset.Sampling(params)
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(sp.Temperature),
		TopP:        float32(sp.TopP),
		MaxTokens:   sp.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *ChatClient) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("openai unreachable: %w", err)
	}
	return nil
}

package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pavelanni/smartexam/internal/llm/prompts"
	"github.com/pavelanni/smartexam/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

const (
	generateTemperature  = 0.3
	summarizeTemperature = 0.3
	maxResponseTokens    = 4096
)

// Client wraps an OpenAI-compatible API client. It is the question generator and the
// summarizer of the assessment pipeline.
type Client struct {
	api           *openai.Client
	model         string
	questionCount int
	difficulty    model.Difficulty
}

// New creates a new LLM client that asks for questionCount questions per chunk.
func New(baseURL, apiKey, modelName string, questionCount int, difficulty model.Difficulty) (*Client, error) {
	if err := prompts.Load(nil); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	if questionCount <= 0 {
		return nil, fmt.Errorf("questions per chunk must be positive, got %d", questionCount)
	}
	if !prompts.IsValidDifficulty(string(difficulty)) {
		return nil, fmt.Errorf("invalid difficulty %q", difficulty)
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:           openai.NewClientWithConfig(config),
		model:         modelName,
		questionCount: questionCount,
		difficulty:    difficulty,
	}, nil
}

// Ping checks that the endpoint answers. It lists models because every
// OpenAI-compatible server implements that call cheaply.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Generate asks the model for exam questions about one chunk and returns the raw
// response text. It makes exactly one request and does not retry.
func (c *Client) Generate(ctx context.Context, chunk string) (string, error) {
	system, err := prompts.BuildGeneratePrompt(prompts.GenerateData{
		QuestionCount: c.questionCount,
		Difficulty:    c.difficulty,
	})
	if err != nil {
		return "", fmt.Errorf("build generate prompt: %w", err)
	}
	return c.complete(ctx, system, prompts.WrapDocument(chunk), generateTemperature)
}

// Summarize condenses a long document into a shorter text that replaces it before
// chunking.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	system, err := prompts.BuildSummarizePrompt()
	if err != nil {
		return "", fmt.Errorf("build summarize prompt: %w", err)
	}
	return c.complete(ctx, system, prompts.WrapDocument(text), summarizeTemperature)
}

func (c *Client) complete(ctx context.Context, system, user string, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxResponseTokens,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", c.model, "chars", len(raw), "total_tokens", resp.Usage.TotalTokens)
	return raw, nil
}

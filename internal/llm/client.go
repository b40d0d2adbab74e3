// Package llm wraps an OpenAI-compatible chat-completions endpoint
// (OpenRouter, OpenAI, or anything speaking the same protocol) behind a
// small client used by the model endpoint service.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultTemperature keeps generation near-deterministic; plans and chart
// specs must be parseable, not creative.
const DefaultTemperature = 0.1

// Message is one turn of a chat history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config holds configuration for the chat-completions client.
type Config struct {
	// APIKey authenticates against the endpoint.
	APIKey string

	// BaseURL is the endpoint root, e.g. "https://openrouter.ai/api/v1".
	// Empty uses the library default (api.openai.com).
	BaseURL string

	// Model is the model identifier sent with every request.
	Model string

	// Temperature overrides DefaultTemperature when positive.
	Temperature float64

	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Client issues chat-completion requests.
type Client struct {
	client      *openai.Client
	model       string
	temperature float64
	logger      *slog.Logger
}

// NewClient creates a chat-completions client.
func NewClient(cfg Config) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: temperature,
		logger:      logger,
	}
}

// Complete sends one completion request: a system prompt plus the chat
// history, newest last. Returns the assistant's raw text, which is handed
// to the salvage/validation layer untouched.
func (c *Client) Complete(ctx context.Context, system string, history []Message, maxTokens int64) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	for _, msg := range history {
		switch msg.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.F(c.model),
		Messages:    openai.F(messages),
		Temperature: openai.F(c.temperature),
		MaxTokens:   openai.F(maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	choice := resp.Choices[0]
	if string(choice.FinishReason) == "length" {
		// Truncated output is salvageable downstream, so log and continue.
		c.logger.Warn("completion truncated at max tokens",
			slog.String("model", c.model),
			slog.Int64("max_tokens", maxTokens))
	}

	c.logger.Debug("completion received",
		slog.String("model", c.model),
		slog.Int64("prompt_tokens", resp.Usage.PromptTokens),
		slog.Int64("completion_tokens", resp.Usage.CompletionTokens))

	return choice.Message.Content, nil
}

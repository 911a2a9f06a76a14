package generate

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIConfig configures the chat-completions client. BaseURL may point at
// any OpenAI-compatible endpoint; empty means the official API.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAI is the shipped Generator: a thin wrapper over the chat completions
// API of an OpenAI-compatible provider.
type OpenAI struct {
	client  openai.Client
	model   string
	profile string
}

// NewOpenAI creates a generator for the configured model and endpoint.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	profile := cfg.Model
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		profile = cfg.Model + "@" + cfg.BaseURL
	}
	return &OpenAI{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		profile: profile,
	}
}

// Generate sends one system+user exchange and returns the assistant text.
func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// Profile identifies the model configuration for cache keying.
func (o *OpenAI) Profile() string {
	return o.profile
}

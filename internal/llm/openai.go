package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/bull/docqa-server/internal/config"
	"github.com/bull/docqa-server/internal/embedding"
	"github.com/bull/docqa-server/internal/retry"
)

// OpenAIChat uses the OpenAI chat completions API.
type OpenAIChat struct {
	client      *embedding.Client
	model       string
	temperature float64
	maxTokens   int
	policy      retry.Policy
}

// NewOpenAIChat creates a chat backend sharing the embedding client.
func NewOpenAIChat(client *embedding.Client, cfg config.LLMConfig, policy retry.Policy) *OpenAIChat {
	return &OpenAIChat{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		policy:      policy,
	}
}

func (c *OpenAIChat) Name() string { return "openai:" + c.model }

// Chat sends the conversation with system messages in their native role.
func (c *OpenAIChat) Chat(ctx context.Context, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages:    toOpenAIMessages(messages),
		Model:       openai.ChatModel(c.model),
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.maxTokens))
	}

	var content string
	err := c.policy.Do(ctx, func() error {
		resp, err := c.client.Client().Chat.Completions.New(ctx, params)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return ErrEmptyResponse
		}
		content = resp.Choices[0].Message.Content
		return nil
	}, embedding.IsRetryable)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	return content, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

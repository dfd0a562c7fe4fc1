package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/aiplatform/v1"

	"github.com/bull/docqa-server/internal/config"
	"github.com/bull/docqa-server/internal/embedding"
	"github.com/bull/docqa-server/internal/retry"
)

// primingReply follows each folded system instruction as a model turn.
const primingReply = "I understand. I'll follow these instructions."

const (
	geminiTopP = 0.95
	geminiTopK = 40
)

// GeminiChat uses Vertex AI GenerateContent. Gemini has no system role, so
// system messages are folded into user turns.
type GeminiChat struct {
	client      *embedding.VertexClient
	model       string
	temperature float64
	maxTokens   int
	policy      retry.Policy
}

// NewGeminiChat creates a chat backend sharing the Vertex client.
func NewGeminiChat(client *embedding.VertexClient, cfg config.LLMConfig, policy retry.Policy) *GeminiChat {
	return &GeminiChat{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		policy:      policy,
	}
}

func (g *GeminiChat) Name() string { return "gemini:" + g.model }

func (g *GeminiChat) Chat(ctx context.Context, messages []Message) (string, error) {
	req := &aiplatform.GoogleCloudAiplatformV1GenerateContentRequest{
		Contents: toGeminiContents(messages),
		GenerationConfig: &aiplatform.GoogleCloudAiplatformV1GenerationConfig{
			Temperature:     g.temperature,
			MaxOutputTokens: int64(g.maxTokens),
			TopP:            geminiTopP,
			TopK:            geminiTopK,
		},
	}

	var text string
	err := g.policy.Do(ctx, func() error {
		resp, err := g.client.Service().Projects.Locations.Publishers.Models.
			GenerateContent(g.client.ModelPath(g.model), req).Context(ctx).Do()
		if err != nil {
			return err
		}
		text = candidateText(resp)
		if text == "" {
			return ErrEmptyResponse
		}
		return nil
	}, embedding.IsRetryable)
	if err != nil {
		return "", fmt.Errorf("gemini chat: %w", err)
	}
	return text, nil
}

// toGeminiContents maps roles onto Gemini's user/model pair. Each system
// message becomes a user turn followed by a priming model turn.
func toGeminiContents(messages []Message) []*aiplatform.GoogleCloudAiplatformV1Content {
	out := make([]*aiplatform.GoogleCloudAiplatformV1Content, 0, len(messages)+1)
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, geminiContent("user", m.Content), geminiContent("model", primingReply))
		case RoleAssistant:
			out = append(out, geminiContent("model", m.Content))
		default:
			out = append(out, geminiContent("user", m.Content))
		}
	}
	return out
}

func geminiContent(role, text string) *aiplatform.GoogleCloudAiplatformV1Content {
	return &aiplatform.GoogleCloudAiplatformV1Content{
		Role:  role,
		Parts: []*aiplatform.GoogleCloudAiplatformV1Part{{Text: text}},
	}
}

// candidateText joins the text parts of the first candidate.
func candidateText(resp *aiplatform.GoogleCloudAiplatformV1GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

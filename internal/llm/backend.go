// Package llm sends chat conversations to a language model.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/bull/docqa-server/internal/config"
	"github.com/bull/docqa-server/internal/embedding"
	"github.com/bull/docqa-server/internal/retry"
)

var (
	ErrEmptyResponse   = errors.New("model returned no content")
	ErrUnknownProvider = errors.New("unknown llm provider")
)

// Roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string
	Content string
}

// Backend generates a reply to a conversation.
type Backend interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Name() string
}

// Clients carries the provider clients a backend may be built on. Only the
// one matching the configured provider needs to be set.
type Clients struct {
	OpenAI *embedding.Client
	Vertex *embedding.VertexClient
}

// New builds the backend selected by cfg.Provider.
func New(cfg config.LLMConfig, clients Clients, policy retry.Policy) (Backend, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		if clients.OpenAI == nil {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY", config.ErrMissingSetting)
		}
		return NewOpenAIChat(clients.OpenAI, cfg, policy), nil
	case config.ProviderGemini:
		if clients.Vertex == nil {
			return nil, fmt.Errorf("%w: GCP_PROJECT_ID", config.ErrMissingSetting)
		}
		return NewGeminiChat(clients.Vertex, cfg, policy), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

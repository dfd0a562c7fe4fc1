package embedding

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/bull/docqa-server/internal/config"
)

// Client wraps the OpenAI client shared by embedding and chat.
type Client struct {
	client *openai.Client
}

// NewClient creates an OpenAI client from configuration.
// A missing API key is a configuration error.
func NewClient(cfg config.OpenAIConfig) (*Client, error) {
	if err := config.Require("OPENAI_API_KEY", cfg.APIKey); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &Client{client: &client}, nil
}

// Client returns the underlying OpenAI client for use in other packages (e.g., chat completion).
func (c *Client) Client() *openai.Client {
	return c.client
}

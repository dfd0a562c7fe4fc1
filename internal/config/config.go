// Package config loads the service configuration from defaults, an optional
// YAML or TOML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrMissingSetting reports a required identifier or credential that is not configured.
var ErrMissingSetting = errors.New("missing required setting")

// Vector store backends.
const (
	BackendMemory = "memory"
	BackendQdrant = "qdrant"
)

// Model providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderVertex = "vertex"
)

// MaxTopK bounds the number of chunks retrieved per question.
const MaxTopK = 100

// History backends.
const (
	HistoryMemory = "memory"
	HistorySQLite = "sqlite"
)

// ChunkingConfig controls how extracted text is split.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" toml:"chunk_overlap"`
}

// CrawlerConfig controls same-domain web crawling.
type CrawlerConfig struct {
	MaxDepth          int     `yaml:"max_depth" toml:"max_depth"`
	MaxPages          int     `yaml:"max_pages" toml:"max_pages"`
	TimeoutSecs       int     `yaml:"request_timeout_secs" toml:"request_timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	UserAgent         string  `yaml:"user_agent" toml:"user_agent"`
	MaxBodyBytes      int64   `yaml:"max_body_bytes" toml:"max_body_bytes"`
}

// QdrantConfig contains connection details for the Qdrant backend.
type QdrantConfig struct {
	Host       string `yaml:"host" toml:"host"`
	Port       int    `yaml:"port" toml:"port"`
	APIKey     string `yaml:"api_key" toml:"api_key"`
	UseTLS     bool   `yaml:"use_tls" toml:"use_tls"`
	Collection string `yaml:"collection" toml:"collection"`
}

// VectorStoreConfig selects and configures the vector backend.
type VectorStoreConfig struct {
	Backend   string       `yaml:"backend" toml:"backend"`
	Dimension int          `yaml:"dimension" toml:"dimension"`
	Qdrant    QdrantConfig `yaml:"qdrant" toml:"qdrant"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" toml:"provider"`
	Model     string `yaml:"model" toml:"model"`
	BatchSize int    `yaml:"batch_size" toml:"batch_size"`
}

// LLMConfig selects the language model provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider" toml:"provider"`
	Model       string  `yaml:"model" toml:"model"`
	Temperature float64 `yaml:"temperature" toml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens"`
}

// OpenAIConfig holds OpenAI credentials.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// GCPConfig holds Vertex AI project settings.
type GCPConfig struct {
	ProjectID          string `yaml:"project_id" toml:"project_id"`
	Location           string `yaml:"location" toml:"location"`
	ServiceAccountFile string `yaml:"service_account_file" toml:"service_account_file"`
}

// AnswerConfig controls retrieval and prompt assembly.
type AnswerConfig struct {
	TopK            int `yaml:"top_k" toml:"top_k"`
	HistoryWindow   int `yaml:"history_window" toml:"history_window"`
	MaxContextChars int `yaml:"max_context_chars" toml:"max_context_chars"`
}

// HistoryConfig selects the conversation history store.
type HistoryConfig struct {
	Backend            string `yaml:"backend" toml:"backend"`
	MaxTurnsPerSession int    `yaml:"max_turns_per_session" toml:"max_turns_per_session"`
	SQLitePath         string `yaml:"sqlite_path" toml:"sqlite_path"`
}

// SessionConfig controls session clearing.
type SessionConfig struct {
	DeleteVectorsOnClear bool `yaml:"delete_vectors_on_clear" toml:"delete_vectors_on_clear"`
}

// RetryConfig controls retries of backend calls. MaxAttempts of 1 disables retry.
type RetryConfig struct {
	MaxAttempts         int `yaml:"max_attempts" toml:"max_attempts"`
	InitialIntervalMsec int `yaml:"initial_interval_ms" toml:"initial_interval_ms"`
	MaxIntervalMsec     int `yaml:"max_interval_ms" toml:"max_interval_ms"`
}

// ServerConfig controls the MCP server process.
type ServerConfig struct {
	Port       string `yaml:"port" toml:"port"`
	ServerMode bool   `yaml:"server_mode" toml:"server_mode"`
	UploadDir  string `yaml:"upload_dir" toml:"upload_dir"`
	UploadRoot string `yaml:"upload_root" toml:"upload_root"`
	LogLevel   string `yaml:"log_level" toml:"log_level"`
	LogFormat  string `yaml:"log_format" toml:"log_format"`
}

// Config is the root configuration, built once at process start.
type Config struct {
	Chunking    ChunkingConfig    `yaml:"chunking" toml:"chunking"`
	Crawler     CrawlerConfig     `yaml:"crawler" toml:"crawler"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding" toml:"embedding"`
	LLM         LLMConfig         `yaml:"llm" toml:"llm"`
	OpenAI      OpenAIConfig      `yaml:"openai" toml:"openai"`
	GCP         GCPConfig         `yaml:"gcp" toml:"gcp"`
	Answer      AnswerConfig      `yaml:"answer" toml:"answer"`
	History     HistoryConfig     `yaml:"history" toml:"history"`
	Session     SessionConfig     `yaml:"session" toml:"session"`
	Retry       RetryConfig       `yaml:"retry" toml:"retry"`
	Server      ServerConfig      `yaml:"server" toml:"server"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Chunking: ChunkingConfig{ChunkSize: 1000, ChunkOverlap: 200},
		Crawler: CrawlerConfig{
			MaxDepth:          3,
			MaxPages:          50,
			TimeoutSecs:       10,
			RequestsPerSecond: 2,
			UserAgent:         "Mozilla/5.0 (compatible; docqa-crawler/1.0)",
			MaxBodyBytes:      5 << 20,
		},
		VectorStore: VectorStoreConfig{
			Backend: BackendMemory,
			Qdrant:  QdrantConfig{Host: "localhost", Port: 6334, Collection: "docqa_chunks"},
		},
		Embedding: EmbeddingConfig{Model: "text-embedding-3-small", BatchSize: 500},
		LLM:       LLMConfig{Model: "gpt-3.5-turbo", Temperature: 0.3, MaxTokens: 1000},
		GCP:       GCPConfig{Location: "us-central1"},
		Answer:    AnswerConfig{TopK: 5, HistoryWindow: 10, MaxContextChars: 48000},
		History:   HistoryConfig{Backend: HistoryMemory, MaxTurnsPerSession: 100, SQLitePath: "docqa.db"},
		Retry:     RetryConfig{MaxAttempts: 1, InitialIntervalMsec: 500, MaxIntervalMsec: 10000},
		Server:    ServerConfig{Port: "8080", UploadDir: "uploads", LogLevel: "info", LogFormat: "text"},
	}
}

// Load builds the configuration. A .env file is loaded if present, then the
// file named by DOCQA_CONFIG (if any), then environment overrides.
func Load() (*Config, error) {
	// Missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("DOCQA_CONFIG"); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	cfg.resolveProviders()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile decodes a YAML or TOML file over cfg. The format is chosen by extension.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks invariants that would otherwise produce degenerate behavior.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d with chunk_size %d",
			c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}

	if c.Answer.TopK < 0 || c.Answer.TopK > MaxTopK {
		return fmt.Errorf("top_k must be in [0, %d], got %d", MaxTopK, c.Answer.TopK)
	}

	switch c.VectorStore.Backend {
	case BackendMemory, BackendQdrant:
	default:
		return fmt.Errorf("unknown vector store backend %q", c.VectorStore.Backend)
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderVertex:
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	switch c.History.Backend {
	case HistoryMemory, HistorySQLite:
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}

	if c.Retry.MaxAttempts < 1 {
		c.Retry.MaxAttempts = 1
	}
	return nil
}

// resolveProviders fills empty provider selections from the model names.
// This runs once at startup; nothing downstream inspects model prefixes.
func (c *Config) resolveProviders() {
	if c.LLM.Provider == "" {
		switch {
		case strings.HasPrefix(c.LLM.Model, "gemini"):
			c.LLM.Provider = ProviderGemini
		default:
			c.LLM.Provider = ProviderOpenAI
		}
	}
	if c.Embedding.Provider == "" {
		switch {
		case strings.HasPrefix(c.Embedding.Model, "textembedding"),
			strings.HasPrefix(c.Embedding.Model, "text-multilingual-embedding"),
			strings.HasPrefix(c.Embedding.Model, "models/embedding"):
			c.Embedding.Provider = ProviderVertex
		default:
			c.Embedding.Provider = ProviderOpenAI
		}
	}
	if c.VectorStore.Dimension == 0 {
		if c.Embedding.Provider == ProviderVertex {
			c.VectorStore.Dimension = 768
		} else {
			c.VectorStore.Dimension = 1536
		}
	}
}

// Timeout returns the crawler request timeout.
func (c CrawlerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// InitialInterval returns the first backoff interval.
func (r RetryConfig) InitialInterval() time.Duration {
	return time.Duration(r.InitialIntervalMsec) * time.Millisecond
}

// MaxInterval returns the largest backoff interval.
func (r RetryConfig) MaxInterval() time.Duration {
	return time.Duration(r.MaxIntervalMsec) * time.Millisecond
}

// Require returns ErrMissingSetting naming the setting when value is empty.
func Require(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s", ErrMissingSetting, name)
	}
	return nil
}

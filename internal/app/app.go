// Package app assembles the service components from configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bull/docqa-server/internal/answer"
	"github.com/bull/docqa-server/internal/chunker"
	"github.com/bull/docqa-server/internal/config"
	"github.com/bull/docqa-server/internal/crawler"
	"github.com/bull/docqa-server/internal/embedding"
	"github.com/bull/docqa-server/internal/extract"
	"github.com/bull/docqa-server/internal/history"
	"github.com/bull/docqa-server/internal/indexer"
	"github.com/bull/docqa-server/internal/llm"
	"github.com/bull/docqa-server/internal/retry"
	"github.com/bull/docqa-server/internal/sqlitedb"
	"github.com/bull/docqa-server/internal/storage"
	"github.com/bull/docqa-server/internal/uploads"
)

// App holds the wired components. Close releases them.
type App struct {
	Config   *config.Config
	Store    *storage.Store
	History  history.Store
	Uploads  *uploads.Store // nil unless history is kept in SQLite
	Pipeline *indexer.Pipeline
	Jobs     *indexer.Jobs
	Service  *answer.Service
	Logger   *slog.Logger

	db *sql.DB
}

// New builds every component described by cfg. Remote backends are contacted
// during construction so misconfiguration fails at startup.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	policy := retry.FromConfig(cfg.Retry)

	clients, err := newClients(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(cfg, clients, policy)
	if err != nil {
		return nil, err
	}

	index, err := newIndex(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Store, err = storage.NewStore(embedder, index, policy, logger)
	if err != nil {
		index.Close()
		return nil, err
	}

	backend, err := llm.New(cfg.LLM, clients, policy)
	if err != nil {
		return nil, err
	}

	if err := a.openHistory(cfg.History); err != nil {
		return nil, err
	}

	ch, err := chunker.New(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	cr := crawler.New(crawler.NewHTTPFetcher(cfg.Crawler), ch, crawler.Options{
		MaxDepth: cfg.Crawler.MaxDepth,
		MaxPages: cfg.Crawler.MaxPages,
	}, logger)

	var recorder indexer.UploadRecorder
	if a.Uploads != nil {
		recorder = a.Uploads
	}
	a.Pipeline = indexer.NewPipeline(extract.New(logger), ch, cr, a.Store, recorder, logger)
	a.Jobs = indexer.NewJobs(logger)

	orch := answer.New(backend, answer.Options{
		HistoryWindow:   cfg.Answer.HistoryWindow,
		MaxContextChars: cfg.Answer.MaxContextChars,
	}, logger)
	a.Service = answer.NewService(a.Store, a.History, orch, answer.ServiceOptions{
		TopK:                 cfg.Answer.TopK,
		DeleteVectorsOnClear: cfg.Session.DeleteVectorsOnClear,
	}, logger)

	logger.Info("Service ready",
		"vector_store", a.Store.Backend(),
		"dimension", cfg.VectorStore.Dimension,
		"embedding", cfg.Embedding.Provider+"/"+cfg.Embedding.Model,
		"llm", backend.Name(),
		"history", cfg.History.Backend,
	)
	return a, nil
}

// newClients creates the provider clients the configured providers need.
func newClients(ctx context.Context, cfg *config.Config) (llm.Clients, error) {
	var clients llm.Clients

	if cfg.Embedding.Provider == config.ProviderOpenAI || cfg.LLM.Provider == config.ProviderOpenAI {
		c, err := embedding.NewClient(cfg.OpenAI)
		if err != nil {
			return clients, err
		}
		clients.OpenAI = c
	}
	if cfg.Embedding.Provider == config.ProviderVertex || cfg.LLM.Provider == config.ProviderGemini {
		c, err := embedding.NewVertexClient(ctx, cfg.GCP)
		if err != nil {
			return clients, err
		}
		clients.Vertex = c
	}
	return clients, nil
}

func newEmbedder(cfg *config.Config, clients llm.Clients, policy retry.Policy) (embedding.Embedder, error) {
	dim := cfg.VectorStore.Dimension
	switch cfg.Embedding.Provider {
	case config.ProviderOpenAI:
		return embedding.NewOpenAIEmbedder(clients.OpenAI, cfg.Embedding.Model, dim, cfg.Embedding.BatchSize, policy), nil
	case config.ProviderVertex:
		return embedding.NewVertexEmbedder(clients.Vertex, cfg.Embedding.Model, dim, policy), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func newIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Index, error) {
	dim := cfg.VectorStore.Dimension
	if cfg.VectorStore.Backend != config.BackendQdrant {
		return storage.NewMemoryIndex(dim), nil
	}

	idx, err := storage.NewQdrantIndex(ctx, cfg.VectorStore.Qdrant, dim, logger)
	if err != nil {
		return nil, err
	}
	if err := idx.EnsureCollection(ctx); err != nil {
		idx.Close()
		return nil, err
	}
	return idx, nil
}

// openHistory opens the history store and, for SQLite, the upload records
// on one shared connection to the same database file.
func (a *App) openHistory(cfg config.HistoryConfig) error {
	if cfg.Backend != config.HistorySQLite {
		a.History = history.NewMemoryStore(cfg.MaxTurnsPerSession)
		return nil
	}

	db, err := sqlitedb.Open(cfg.SQLitePath)
	if err != nil {
		return err
	}
	a.db = db

	hist, err := history.NewSQLiteStore(db, cfg.MaxTurnsPerSession)
	if err != nil {
		return err
	}
	a.History = hist

	up, err := uploads.New(db)
	if err != nil {
		return err
	}
	a.Uploads = up
	return nil
}

// Close releases the stores. Running jobs are not waited for; use
// Jobs.Shutdown first.
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.History != nil {
		errs = append(errs, a.History.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docqa-server/internal/answer"
	"github.com/bull/docqa-server/internal/indexer"
	"github.com/bull/docqa-server/internal/uploads"
)

// Version is reported by the MCP implementation info and /health.
const Version = "1.0.0"

// Ingestor runs ingestion. *indexer.Pipeline implements it.
type Ingestor interface {
	IngestUpload(ctx context.Context, path, filename, sessionID string) (*indexer.IngestResult, error)
	IngestURL(ctx context.Context, rawURL string, maxDepth int, sessionID string) (*indexer.IngestResult, error)
}

// JobRunner runs work in the background. *indexer.Jobs implements it.
type JobRunner interface {
	Submit(sessionID string, kind indexer.JobKind, source string, fn indexer.JobFunc) string
	Status(sessionID string) indexer.Status
	Forget(sessionID string)
}

// UploadLister lists the recorded uploads of a session. *uploads.Store implements it.
type UploadLister interface {
	ListSession(ctx context.Context, sessionID string) ([]uploads.Record, error)
}

// Answerer answers questions and clears sessions. *answer.Service implements it.
type Answerer interface {
	Ask(ctx context.Context, sessionID, question string) (*answer.Response, error)
	Clear(ctx context.Context, sessionID string) error
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Ingestor Ingestor
	Jobs     JobRunner
	Answerer Answerer
	// UploadDir receives staged copies of uploaded files.
	UploadDir string
	// UploadRoot bounds the paths upload_document may read. Empty disables path uploads.
	UploadRoot string
	// Uploads, when set, adds upload records to get_status.
	Uploads UploadLister
	Logger  *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	impl := &mcp.Implementation{
		Name:    "docqa-server",
		Version: Version,
	}
	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "upload_document",
		Description: "Ingest a pdf, docx, txt or html file from under the server upload root into a session. Processing runs in the background; poll get_status for progress.",
	}, makeUploadHandler(cfg.Ingestor, cfg.Jobs, cfg.UploadDir, cfg.UploadRoot, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "crawl_url",
		Description: "Crawl a website (same host only) and ingest its pages into a session. Processing runs in the background.",
	}, makeCrawlHandler(cfg.Ingestor, cfg.Jobs, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question using only the documents ingested into the session. Returns the answer and its sources.",
	}, makeAskHandler(cfg.Answerer))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_status",
		Description: "Get ingestion progress for a session: overall status, documents and URLs processed, chunks stored, failures and recorded uploads.",
	}, makeStatusHandler(cfg.Jobs, cfg.Uploads, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_session",
		Description: "Clear a session's conversation history (and its documents when the server is configured to).",
	}, makeClearHandler(cfg.Answerer, cfg.Jobs))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

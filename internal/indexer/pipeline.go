package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bull/docqa-server/internal/chunker"
	"github.com/bull/docqa-server/internal/crawler"
	"github.com/bull/docqa-server/internal/extract"
	"github.com/bull/docqa-server/internal/uploads"
)

// maxTitleLength bounds the title kept in an upload record.
const maxTitleLength = 200

// VectorStore receives chunks for a session. *storage.Store implements it.
type VectorStore interface {
	Add(ctx context.Context, chunks []chunker.Chunk, sessionID, source string) (int, error)
}

// Crawler walks a website. *crawler.Crawler implements it.
type Crawler interface {
	Crawl(ctx context.Context, startURL string, maxDepth, maxPages int) ([]chunker.Chunk, crawler.Stats, error)
}

// UploadRecorder persists upload metadata. *uploads.Store implements it.
type UploadRecorder interface {
	Save(ctx context.Context, rec uploads.Record) error
}

// IngestResult contains statistics about one ingestion.
type IngestResult struct {
	Source   string
	FileID   string
	Units    int
	Chunks   int
	Pages    int // crawled pages; zero for files
	Duration time.Duration
}

// Pipeline turns files and websites into stored chunks.
type Pipeline struct {
	extractor *extract.Extractor
	chunker   *chunker.Chunker
	crawler   Crawler
	store     VectorStore
	uploads   UploadRecorder
	logger    *slog.Logger
}

// NewPipeline creates an ingestion pipeline with the given components.
// uploads may be nil, in which case no upload records are kept.
func NewPipeline(
	extractor *extract.Extractor,
	ch *chunker.Chunker,
	cr Crawler,
	store VectorStore,
	uploads UploadRecorder,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor: extractor,
		chunker:   ch,
		crawler:   cr,
		store:     store,
		uploads:   uploads,
		logger:    logger,
	}
}

// IngestFile extracts, chunks and stores the file at path under sessionID.
// filename is the original name and selects the extractor. Unsupported types
// store nothing and are not an error.
func (p *Pipeline) IngestFile(ctx context.Context, path, filename, sessionID string) (*IngestResult, error) {
	start := time.Now()
	result := &IngestResult{Source: filename}

	doc, err := p.extractor.Extract(path, filename)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	result.Units = len(doc.Units)
	if doc.Empty() {
		p.logger.Warn("No text extracted", "filename", filename, "session", sessionID)
		result.Duration = time.Since(start)
		return result, nil
	}

	chunks := p.ChunkDocument(doc, filename)
	p.logger.Debug("Chunked document", "filename", filename, "kind", doc.Kind, "chunks", len(chunks))

	stored, err := p.store.Add(ctx, chunks, sessionID, filename)
	if err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}
	result.Chunks = stored

	if p.uploads != nil {
		result.FileID = uuid.New().String()
		rec := uploads.Record{
			FileID:     result.FileID,
			Filename:   filename,
			SessionID:  sessionID,
			UploadTime: time.Now().UTC(),
			Metadata: map[string]string{
				"title":  extract.TruncateText(doc.Title, maxTitleLength),
				"kind":   string(doc.Kind),
				"units":  strconv.Itoa(len(doc.Units)),
				"chunks": strconv.Itoa(stored),
			},
		}
		if err := p.uploads.Save(ctx, rec); err != nil {
			// The chunks are already searchable; a missing record only loses bookkeeping
			p.logger.Error("Failed to save upload record", "filename", filename, "error", err)
		}
	}

	result.Duration = time.Since(start)
	p.logger.Info("Indexed document", "filename", filename, "session", sessionID, "chunks", stored, "duration", result.Duration)
	return result, nil
}

// IngestUpload ingests a temporary upload and removes it once stored.
func (p *Pipeline) IngestUpload(ctx context.Context, path, filename, sessionID string) (*IngestResult, error) {
	result, err := p.IngestFile(ctx, path, filename, sessionID)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("Failed to remove upload", "path", path, "error", err)
	}
	return result, nil
}

// ChunkDocument chunks paginated and paragraph documents by accumulation and
// plain text by sliding windows.
func (p *Pipeline) ChunkDocument(doc *extract.Document, source string) []chunker.Chunk {
	var extra map[string]string
	if doc.Title != "" {
		extra = map[string]string{chunker.TitleKey: doc.Title}
	}

	switch doc.Kind {
	case extract.KindPages:
		return p.chunker.Accumulate(doc.Units, source, chunker.UnitPage, extra)
	case extract.KindParagraphs:
		return p.chunker.Accumulate(doc.Units, source, chunker.UnitParagraph, extra)
	default:
		return p.chunker.Chunk(strings.Join(doc.Units, "\n"), source, extra)
	}
}

// IngestURL crawls rawURL to maxDepth and stores the page chunks under
// sessionID. An unusable URL stores nothing and is not an error.
func (p *Pipeline) IngestURL(ctx context.Context, rawURL string, maxDepth int, sessionID string) (*IngestResult, error) {
	start := time.Now()
	result := &IngestResult{Source: rawURL}

	chunks, stats, err := p.crawler.Crawl(ctx, rawURL, maxDepth, 0)
	if errors.Is(err, crawler.ErrInvalidURL) {
		p.logger.Warn("Skipping invalid URL", "url", rawURL, "session", sessionID, "error", err)
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("crawl: %w", err)
	}
	result.Pages = stats.Visited

	stored, err := p.store.Add(ctx, chunks, sessionID, rawURL)
	if err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}
	result.Chunks = stored
	result.Duration = time.Since(start)

	p.logger.Info("Indexed website",
		"url", rawURL,
		"session", sessionID,
		"pages", stats.Visited,
		"failed", stats.Failed,
		"chunks", stored,
		"duration", result.Duration,
	)
	return result, nil
}

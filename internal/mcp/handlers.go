package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docqa-server/internal/extract"
	"github.com/bull/docqa-server/internal/indexer"
	"github.com/bull/docqa-server/internal/uploads"
)

var (
	ErrMissingSession  = errors.New("session_id is required")
	ErrMissingQuestion = errors.New("question is required")
	ErrMissingPath     = errors.New("path is required")
	ErrMissingURL      = errors.New("url is required")

	ErrUploadsDisabled = errors.New("path uploads are disabled: no upload root configured")
	ErrOutsideRoot     = errors.New("path is outside the upload root")
)

// defaultDepth asks the crawler for its configured depth.
const defaultDepth = -1

// makeUploadHandler creates the upload_document tool handler.
// Only regular files under uploadRoot are accepted. The file is copied into
// uploadDir so the caller may remove the original; the background job deletes
// the copy once it is stored.
func makeUploadHandler(ing Ingestor, jobs JobRunner, uploadDir, uploadRoot string, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, UploadDocumentInput,
) (*mcp.CallToolResult, ProcessingOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input UploadDocumentInput) (
		*mcp.CallToolResult, ProcessingOutput, error,
	) {
		if input.SessionID == "" {
			return nil, ProcessingOutput{}, ErrMissingSession
		}
		if input.Path == "" {
			return nil, ProcessingOutput{}, ErrMissingPath
		}

		filename := input.Filename
		if filename == "" {
			filename = filepath.Base(input.Path)
		}
		if err := extract.Validate(filename); err != nil {
			return nil, ProcessingOutput{}, err
		}

		src, err := resolveUploadPath(input.Path, uploadRoot)
		if err != nil {
			logger.Warn("Rejected upload path", "path", input.Path, "session", input.SessionID, "error", err)
			return nil, ProcessingOutput{}, err
		}

		staged, err := stageUpload(src, uploadDir, filename)
		if err != nil {
			return nil, ProcessingOutput{}, fmt.Errorf("failed to stage upload: %w", err)
		}
		logger.Debug("Staged upload", "filename", filename, "path", staged, "session", input.SessionID)

		session := input.SessionID
		jobID := jobs.Submit(session, indexer.JobDocument, filename, func(ctx context.Context) (int, error) {
			result, err := ing.IngestUpload(ctx, staged, filename, session)
			if err != nil {
				return 0, err
			}
			return result.Chunks, nil
		})

		return nil, ProcessingOutput{
			Message: fmt.Sprintf("Document %s uploaded and being processed", filename),
			Status:  indexer.StateProcessing,
			JobID:   jobID,
		}, nil
	}
}

// resolveUploadPath cleans path, follows symlinks and checks that the target
// is a regular file inside root.
func resolveUploadPath(path, root string) (string, error) {
	if root == "" {
		return "", ErrUploadsDisabled
	}
	realRoot, err := realPath(root)
	if err != nil {
		return "", fmt.Errorf("resolve upload root: %w", err)
	}
	target, err := realPath(path)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(realRoot, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}

	info, err := os.Stat(target)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", path)
	}
	return target, nil
}

func realPath(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// stageUpload copies src to a uniquely named temp file in dir.
func stageUpload(src, dir, filename string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	name := fmt.Sprintf("temp_%s_%s", uuid.New().String()[:8], extract.SanitizeFilename(filename))
	dst := filepath.Join(dir, name)
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}

// makeCrawlHandler creates the crawl_url tool handler.
// URL problems surface through get_status, not as a tool error.
func makeCrawlHandler(ing Ingestor, jobs JobRunner, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, CrawlURLInput,
) (*mcp.CallToolResult, ProcessingOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CrawlURLInput) (
		*mcp.CallToolResult, ProcessingOutput, error,
	) {
		if input.SessionID == "" {
			return nil, ProcessingOutput{}, ErrMissingSession
		}
		rawURL := strings.TrimSpace(input.URL)
		if rawURL == "" {
			return nil, ProcessingOutput{}, ErrMissingURL
		}

		depth := defaultDepth
		if input.MaxDepth != nil {
			depth = *input.MaxDepth
		}

		session := input.SessionID
		jobID := jobs.Submit(session, indexer.JobURL, rawURL, func(ctx context.Context) (int, error) {
			result, err := ing.IngestURL(ctx, rawURL, depth, session)
			if err != nil {
				return 0, err
			}
			return result.Chunks, nil
		})
		logger.Debug("Queued crawl", "url", rawURL, "depth", depth, "session", session, "job", jobID)

		return nil, ProcessingOutput{
			Message: fmt.Sprintf("URL %s is being crawled and processed", rawURL),
			Status:  indexer.StateProcessing,
			JobID:   jobID,
		}, nil
	}
}

// makeAskHandler creates the ask tool handler.
func makeAskHandler(ans Answerer) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		if input.SessionID == "" {
			return nil, AskOutput{}, ErrMissingSession
		}
		if strings.TrimSpace(input.Question) == "" {
			return nil, AskOutput{}, ErrMissingQuestion
		}

		resp, err := ans.Ask(ctx, input.SessionID, input.Question)
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("failed to answer question: %w", err)
		}
		return nil, *resp, nil
	}
}

// makeStatusHandler creates the get_status tool handler. A nil lister omits
// upload records.
func makeStatusHandler(jobs JobRunner, lister UploadLister, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, SessionInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SessionInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		if input.SessionID == "" {
			return nil, StatusOutput{}, ErrMissingSession
		}

		var records []uploads.Record
		if lister != nil {
			var err error
			records, err = lister.ListSession(ctx, input.SessionID)
			if err != nil {
				logger.Warn("Failed to list uploads", "session", input.SessionID, "error", err)
				records = nil
			}
		}
		return nil, newStatusOutput(jobs.Status(input.SessionID), records), nil
	}
}

// makeClearHandler creates the clear_session tool handler.
func makeClearHandler(ans Answerer, jobs JobRunner) func(
	context.Context, *mcp.CallToolRequest, SessionInput,
) (*mcp.CallToolResult, ClearOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SessionInput) (
		*mcp.CallToolResult, ClearOutput, error,
	) {
		if input.SessionID == "" {
			return nil, ClearOutput{}, ErrMissingSession
		}
		if err := ans.Clear(ctx, input.SessionID); err != nil {
			return nil, ClearOutput{}, fmt.Errorf("failed to clear session: %w", err)
		}
		jobs.Forget(input.SessionID)

		return nil, ClearOutput{
			Message: fmt.Sprintf("Session %s cleared", input.SessionID),
		}, nil
	}
}

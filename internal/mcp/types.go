// Package mcp exposes document ingestion and question answering as MCP tools.
package mcp

import (
	"github.com/bull/docqa-server/internal/answer"
	"github.com/bull/docqa-server/internal/indexer"
	"github.com/bull/docqa-server/internal/uploads"
)

// UploadDocumentInput defines the input parameters for the upload_document tool.
type UploadDocumentInput struct {
	// Path is a file under the server's upload root.
	Path string `json:"path" jsonschema:"path of a pdf, docx, txt or html file under the server upload root"`
	// Filename overrides the name recorded as the chunk source.
	Filename  string `json:"filename,omitempty" jsonschema:"name to cite as the source (defaults to the base name of path)"`
	SessionID string `json:"session_id" jsonschema:"session that will own the document"`
}

// CrawlURLInput defines the input parameters for the crawl_url tool.
type CrawlURLInput struct {
	URL string `json:"url" jsonschema:"http or https URL to start crawling from"`
	// MaxDepth is the link depth; nil uses the configured default.
	MaxDepth  *int   `json:"max_depth,omitempty" jsonschema:"maximum link depth to follow (default 3)"`
	SessionID string `json:"session_id" jsonschema:"session that will own the crawled pages"`
}

// ProcessingOutput acknowledges work handed to a background job.
type ProcessingOutput struct {
	Message string `json:"message"`
	Status  string `json:"status"`
	JobID   string `json:"job_id"`
}

// AskInput defines the input parameters for the ask tool.
type AskInput struct {
	Question  string `json:"question" jsonschema:"the question to answer from the session's documents"`
	SessionID string `json:"session_id" jsonschema:"session whose documents and history to use"`
}

// AskOutput is the answer and the chunks it was grounded on.
type AskOutput = answer.Response

// SessionInput names a session.
type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"the session id"`
}

// StatusOutput reports ingestion progress for a session and, when the server
// keeps upload records, the documents uploaded to it.
type StatusOutput struct {
	SessionID          string           `json:"session_id"`
	Status             string           `json:"status"`
	DocumentsProcessed int              `json:"documents_processed"`
	URLsProcessed      int              `json:"urls_processed"`
	ChunksStored       int              `json:"chunks_stored"`
	Failures           []string         `json:"failures,omitempty"`
	Jobs               []indexer.Job    `json:"jobs"`
	Uploads            []uploads.Record `json:"uploads,omitempty"`
}

func newStatusOutput(st indexer.Status, records []uploads.Record) StatusOutput {
	return StatusOutput{
		SessionID:          st.SessionID,
		Status:             st.Status,
		DocumentsProcessed: st.DocumentsProcessed,
		URLsProcessed:      st.URLsProcessed,
		ChunksStored:       st.ChunksStored,
		Failures:           st.Failures,
		Jobs:               st.Jobs,
		Uploads:            records,
	}
}

// ClearOutput confirms a cleared session.
type ClearOutput struct {
	Message string `json:"message"`
}

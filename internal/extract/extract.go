// Package extract reads uploaded files into raw text units.
//
// Each format yields the units the chunker accumulates over: PDF pages, DOCX
// paragraphs, or a single unit holding the whole text of TXT and HTML files.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bull/docqa-server/internal/htmltext"
)

// ErrUnsupportedType names a file extension no extractor handles.
var ErrUnsupportedType = errors.New("unsupported file type")

// Kind tells the chunker how to treat a document's units.
type Kind string

const (
	KindPages      Kind = "pages"
	KindParagraphs Kind = "paragraphs"
	KindText       Kind = "text"
)

// Document is the raw text of one file.
type Document struct {
	Units []string
	Kind  Kind
	Title string
}

// Empty reports whether no unit holds any text.
func (d *Document) Empty() bool {
	for _, u := range d.Units {
		if strings.TrimSpace(u) != "" {
			return false
		}
	}
	return true
}

// Validate returns ErrUnsupportedType for filenames Extract would skip.
func Validate(filename string) error {
	if !IsValidFileType(filename) {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, FileExtension(filename))
	}
	return nil
}

// Extractor dispatches on file extension.
type Extractor struct {
	html   *htmltext.Extractor
	logger *slog.Logger
}

// New creates an Extractor. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{html: htmltext.NewExtractor(logger), logger: logger}
}

// Extract reads the file at path. filename is the original upload name and
// selects the format. Unsupported formats produce an empty document and no error.
func (e *Extractor) Extract(path, filename string) (*Document, error) {
	ext := FileExtension(filename)
	switch ext {
	case ".pdf":
		return e.extractPDF(path, filename)
	case ".docx":
		return extractDOCX(path, filename)
	case ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filename, err)
		}
		return &Document{Units: []string{string(bytes.ToValidUTF8(data, nil))}, Kind: KindText, Title: baseTitle(filename)}, nil
	case ".html", ".htm":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filename, err)
		}
		page := htmltext.Parse(string(data))
		text, _ := e.html.Text(page, filename)
		return &Document{Units: []string{text}, Kind: KindText, Title: page.Title()}, nil
	default:
		e.logger.Warn("Unsupported file format", "filename", filename, "extension", ext)
		return &Document{Kind: KindText}, nil
	}
}

// baseTitle derives a readable title from a filename.
func baseTitle(filename string) string {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	return strings.ReplaceAll(name, "-", " ")
}

package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF returns one unit per page. Pages that fail to decode are logged
// and left empty. When no page yields text, the whole document is read in one
// pass and returned as a single text unit.
func (e *Extractor) extractPDF(path, filename string) (*Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", filename, err)
	}
	defer f.Close()

	n := r.NumPage()
	pages := make([]string, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			e.logger.Warn("Skipping unreadable PDF page", "filename", filename, "page", i, "error", err)
			continue
		}
		pages[i-1] = text
	}

	doc := &Document{Units: pages, Kind: KindPages, Title: baseTitle(filename)}
	if !doc.Empty() {
		return doc, nil
	}

	e.logger.Info("No text extracted per page, trying whole-document extraction", "filename", filename)
	text, err := wholeText(r)
	if err != nil {
		e.logger.Warn("Whole-document extraction failed", "filename", filename, "error", err)
		return &Document{Kind: KindText, Title: doc.Title}, nil
	}
	if strings.TrimSpace(text) == "" {
		e.logger.Warn("Whole-document extraction yielded nothing", "filename", filename)
	} else {
		e.logger.Info("Whole-document extraction recovered text", "filename", filename, "chars", len(text))
	}
	return &Document{Units: []string{text}, Kind: KindText, Title: doc.Title}, nil
}

func wholeText(r *pdf.Reader) (string, error) {
	reader, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

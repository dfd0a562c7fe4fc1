package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// documentXML represents the structure of word/document.xml.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

type coreXML struct {
	Title string `xml:"title"`
}

// extractDOCX returns one unit per body paragraph.
func extractDOCX(path, filename string) (*Document, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx %s: %w", filename, err)
	}
	defer zr.Close()

	doc := &Document{Kind: KindParagraphs, Title: baseTitle(filename)}
	for _, file := range zr.File {
		switch file.Name {
		case "word/document.xml":
			content, err := readZipFile(file)
			if err != nil {
				return nil, fmt.Errorf("read docx body %s: %w", filename, err)
			}
			paragraphs, err := parseParagraphs(content)
			if err != nil {
				return nil, fmt.Errorf("parse docx body %s: %w", filename, err)
			}
			doc.Units = paragraphs
		case "docProps/core.xml":
			content, err := readZipFile(file)
			if err != nil {
				continue
			}
			var core coreXML
			if xml.Unmarshal(content, &core) == nil && strings.TrimSpace(core.Title) != "" {
				doc.Title = strings.TrimSpace(core.Title)
			}
		}
	}
	return doc, nil
}

func parseParagraphs(content []byte) ([]string, error) {
	var body documentXML
	if err := xml.Unmarshal(content, &body); err != nil {
		return nil, err
	}

	paragraphs := make([]string, 0, len(body.Body.Paragraphs))
	for _, para := range body.Body.Paragraphs {
		var b strings.Builder
		for _, r := range para.Runs {
			for _, t := range r.Text {
				b.WriteString(t.Content)
			}
		}
		paragraphs = append(paragraphs, b.String())
	}
	return paragraphs, nil
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

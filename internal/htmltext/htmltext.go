// Package htmltext extracts readable text, titles and links from HTML.
//
// Extraction is two-stage: the main-content extractor walks the parsed DOM and
// keeps the page's primary region; when that yields nothing, a tag-stripping
// extractor runs over the raw markup. Which stage produced the text is reported
// to the caller and logged.
package htmltext

import (
	"html"
	"log/slog"
	"regexp"
	"strings"

	xhtml "golang.org/x/net/html"
)

// UntitledPage is used when a page has no usable <title>.
const UntitledPage = "Untitled Page"

// Method identifies the extractor that produced the text.
type Method string

const (
	MethodMainContent Method = "main_content"
	MethodFallback    Method = "tag_strip"
	MethodNone        Method = "none"
)

// Page is a parsed HTML document.
type Page struct {
	raw  string
	root *xhtml.Node
}

// Parse parses raw HTML. Malformed markup never fails; the tokenizer recovers
// and a nil tree only disables the DOM-based helpers.
func Parse(raw string) *Page {
	root, err := xhtml.Parse(strings.NewReader(raw))
	if err != nil {
		root = nil
	}
	return &Page{raw: raw, root: root}
}

// Title returns the trimmed <title> text or UntitledPage.
func (p *Page) Title() string {
	if p.root == nil {
		return UntitledPage
	}
	n := findFirst(p.root, func(n *xhtml.Node) bool {
		return n.Type == xhtml.ElementNode && n.Data == "title"
	})
	if n == nil {
		return UntitledPage
	}
	title := strings.Join(strings.Fields(textOf(n)), " ")
	if title == "" {
		return UntitledPage
	}
	return title
}

// Links returns the href values of all anchors in document order.
func (p *Page) Links() []string {
	if p.root == nil {
		return nil
	}
	var links []string
	walk(p.root, func(n *xhtml.Node) bool {
		if n.Type == xhtml.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					links = append(links, strings.TrimSpace(attr.Val))
				}
			}
		}
		return true
	})
	return links
}

// MainText extracts the text of the page's primary content region: <main>,
// <article> or an element with role="main", else <body>. Navigation, scripts
// and other chrome are skipped.
func (p *Page) MainText() string {
	if p.root == nil {
		return ""
	}
	region := findFirst(p.root, isMainRegion)
	if region == nil {
		region = findFirst(p.root, func(n *xhtml.Node) bool {
			return n.Type == xhtml.ElementNode && n.Data == "body"
		})
	}
	if region == nil {
		region = p.root
	}

	var b strings.Builder
	collectText(region, &b)
	return Clean(b.String())
}

// Extractor runs the two-stage extraction and reports fallbacks.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an extractor. A nil logger uses slog.Default().
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Text returns the cleaned text of page and the method that produced it.
func (e *Extractor) Text(page *Page, source string) (string, Method) {
	if text := page.MainText(); text != "" {
		return text, MethodMainContent
	}

	e.logger.Info("Main content extractor yielded nothing, trying tag stripper", "source", source)
	text := Clean(StripTags(page.raw))
	if text == "" {
		e.logger.Warn("Tag stripper yielded nothing", "source", source)
		return "", MethodNone
	}
	e.logger.Info("Tag stripper recovered text", "source", source, "chars", len(text))
	return text, MethodFallback
}

var (
	scriptTag         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag       = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag           = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	htmlComments      = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockElements     = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	openBlockElements = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	breakTags         = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	allTags           = regexp.MustCompile(`<[^>]+>`)
)

// StripTags removes markup with regular expressions. It works on fragments the
// DOM extractor cannot make sense of.
func StripTags(content string) string {
	content = scriptTag.ReplaceAllString(content, "")
	content = styleTag.ReplaceAllString(content, "")
	content = noscriptTag.ReplaceAllString(content, "")
	content = headTag.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")

	content = openBlockElements.ReplaceAllString(content, "\n")
	content = blockElements.ReplaceAllString(content, "\n")
	content = breakTags.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")

	return html.UnescapeString(content)
}

// Clean trims every line, splits lines on runs of two spaces and drops empty
// pieces, joining the rest with newlines.
func Clean(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		for _, phrase := range strings.Split(strings.TrimSpace(line), "  ") {
			if phrase = strings.TrimSpace(phrase); phrase != "" {
				out = append(out, phrase)
			}
		}
	}
	return strings.Join(out, "\n")
}

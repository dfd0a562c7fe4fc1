// Package crawler walks a website breadth-first and chunks the text of every
// HTML page it reaches on the start URL's host.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/bull/docqa-server/internal/chunker"
	"github.com/bull/docqa-server/internal/htmltext"
)

// ErrInvalidURL is returned for a start URL without a usable host.
var ErrInvalidURL = errors.New("invalid url")

// Options holds the defaults applied when Crawl is called without limits.
type Options struct {
	MaxDepth int
	MaxPages int
}

// Stats summarizes a crawl.
type Stats struct {
	Visited int // URLs fetched or attempted
	Skipped int // non-HTML responses and pages without text
	Failed  int // fetch errors
	Chunks  int
}

// Crawler is safe to reuse; each Crawl call owns its own frontier.
type Crawler struct {
	fetcher Fetcher
	chunker *chunker.Chunker
	html    *htmltext.Extractor
	opts    Options
	logger  *slog.Logger
}

// New creates a Crawler.
func New(fetcher Fetcher, ch *chunker.Chunker, opts Options, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		fetcher: fetcher,
		chunker: ch,
		html:    htmltext.NewExtractor(logger),
		opts:    opts,
		logger:  logger,
	}
}

// ValidURL reports whether s is an absolute http or https URL.
func ValidURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// NormalizeStart adds https:// to a scheme-less URL and drops the fragment.
func NormalizeStart(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if !ValidURL(raw) {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}
	u.Fragment = ""
	return u, nil
}

type queued struct {
	url   string
	depth int
}

// Crawl fetches pages breadth-first from startURL, following same-host links
// up to maxDepth levels, until the queue drains or maxPages URLs have been
// visited. maxDepth < 0 and maxPages <= 0 use the configured defaults.
// Per-page failures are logged and skipped.
func (c *Crawler) Crawl(ctx context.Context, startURL string, maxDepth, maxPages int) ([]chunker.Chunk, Stats, error) {
	var stats Stats

	start, err := NormalizeStart(startURL)
	if err != nil {
		return nil, stats, err
	}
	if maxDepth < 0 {
		maxDepth = c.opts.MaxDepth
	}
	if maxPages <= 0 {
		maxPages = c.opts.MaxPages
	}

	origin := start.Scheme + "://" + start.Host
	visited := make(map[string]bool)
	seen := map[string]bool{start.String(): true}
	queue := []queued{{url: start.String(), depth: 0}}
	var chunks []chunker.Chunk

	for len(queue) > 0 && len(visited) < maxPages {
		if err := ctx.Err(); err != nil {
			return chunks, stats, err
		}

		current := queue[0]
		queue = queue[1:]
		if visited[current.url] {
			continue
		}
		visited[current.url] = true
		stats.Visited++

		c.logger.Info("Crawling URL", "url", current.url, "depth", current.depth)

		resp, err := c.fetcher.Fetch(ctx, current.url)
		if err != nil {
			stats.Failed++
			c.logger.Warn("Failed to fetch URL", "url", current.url, "error", err)
			continue
		}
		if !strings.Contains(strings.ToLower(resp.ContentType), "text/html") {
			stats.Skipped++
			c.logger.Debug("Skipping non-HTML response", "url", current.url, "content_type", resp.ContentType)
			continue
		}

		page := htmltext.Parse(resp.Body)
		pageChunks := c.chunkPage(page, current.url)
		if len(pageChunks) == 0 {
			stats.Skipped++
		}
		chunks = append(chunks, pageChunks...)

		if current.depth >= maxDepth {
			continue
		}
		for _, link := range c.sameOriginLinks(page, current.url, origin) {
			if visited[link] || seen[link] {
				continue
			}
			seen[link] = true
			queue = append(queue, queued{url: link, depth: current.depth + 1})
		}
	}

	stats.Chunks = len(chunks)
	c.logger.Info("Crawling completed", "url", start.String(), "visited", stats.Visited, "chunks", stats.Chunks)
	return chunks, stats, nil
}

// chunkPage accumulates the cleaned lines of a page into chunks tagged with
// the page URL and title.
func (c *Crawler) chunkPage(page *htmltext.Page, pageURL string) []chunker.Chunk {
	text, _ := c.html.Text(page, pageURL)
	if text == "" {
		return nil
	}
	extra := map[string]string{chunker.TitleKey: page.Title()}
	return c.chunker.Accumulate(strings.Split(text, "\n"), pageURL, chunker.UnitParagraph, extra)
}

// sameOriginLinks resolves page links and keeps those on origin, without fragments.
func (c *Crawler) sameOriginLinks(page *htmltext.Page, pageURL, origin string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []string
	for _, href := range page.Links() {
		if skipLink(href) {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			c.logger.Debug("Skipping malformed link", "url", pageURL, "href", href)
			continue
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		if abs.Scheme+"://"+abs.Host != origin {
			continue
		}
		links = append(links, abs.String())
	}
	return links
}

func skipLink(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return true
	}
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:")
}

package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/bull/docqa-server/internal/config"
)

// Response is a fetched page.
type Response struct {
	URL         string
	ContentType string
	Body        string
}

// Fetcher retrieves a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// HTTPFetcher fetches pages over HTTP at a bounded request rate.
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxBody   int64
}

// NewHTTPFetcher creates a fetcher from crawler configuration. A non-positive
// request rate disables throttling.
func NewHTTPFetcher(cfg config.CrawlerConfig) *HTTPFetcher {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 5 << 20
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: cfg.Timeout()},
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: cfg.UserAgent,
		maxBody:   maxBody,
	}
}

// Fetch waits for the rate limiter, then GETs url. Non-2xx statuses are errors.
// Bodies beyond the size limit are truncated.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	return &Response{
		URL:         resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        string(body),
	}, nil
}

package spacetraveling

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPPageFetcher loads listing pages from a running site's /api/posts endpoint.
type HTTPPageFetcher struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPPageFetcher creates a fetcher for the site at baseURL.
func NewHTTPPageFetcher(baseURL string) *HTTPPageFetcher {
	return &HTTPPageFetcher{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CursorURL returns the URL that serves the page at cursor. The empty cursor
// addresses the first page.
func (f *HTTPPageFetcher) CursorURL(cursor Cursor) string {
	u := f.baseURL + "/api/posts"
	if cursor != "" {
		u += "?cursor=" + url.QueryEscape(string(cursor))
	}
	return u
}

// FirstPage fetches the first listing page.
func (f *HTTPPageFetcher) FirstPage(ctx context.Context) (PostListPage, error) {
	return f.get(ctx, f.CursorURL(""))
}

// FetchPage fetches the page at cursor.
func (f *HTTPPageFetcher) FetchPage(ctx context.Context, cursor Cursor) (PostListPage, error) {
	return f.get(ctx, f.CursorURL(cursor))
}

func (f *HTTPPageFetcher) get(ctx context.Context, u string) (PostListPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return PostListPage{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return PostListPage{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return PostListPage{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return PostListPage{}, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var page PostListPage
	if err := json.Unmarshal(body, &page); err != nil {
		return PostListPage{}, fmt.Errorf("unmarshal response: %w", err)
	}
	return page, nil
}

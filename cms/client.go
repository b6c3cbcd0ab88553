// Package cms is a ContentSource over a Prismic-style REST content API.
package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eringen/spacetraveling"
)

const masterRefTTL = 30 * time.Second

// StatusError is returned for non-2xx API responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Code, e.Body)
}

// Client queries the content API at endpoint.
type Client struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
	cursors     *spacetraveling.CursorCodec

	mu        sync.Mutex
	masterRef string
	fetched   time.Time
	now       func() time.Time
}

// NewClient creates a client for endpoint, e.g. https://repo.cdn.prismic.io/api/v2.
// accessToken may be empty for public repositories. cursors signs listing
// cursors; nil uses a per-process key.
func NewClient(endpoint, accessToken string, cursors *spacetraveling.CursorCodec) *Client {
	if cursors == nil {
		cursors = spacetraveling.NewCursorCodec("")
	}
	return &Client{
		endpoint:    strings.TrimSuffix(endpoint, "/"),
		accessToken: accessToken,
		cursors:     cursors,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

type apiInfo struct {
	Refs []struct {
		ID          string `json:"id"`
		Ref         string `json:"ref"`
		IsMasterRef bool   `json:"isMasterRef"`
	} `json:"refs"`
}

type searchResponse struct {
	Page             int                          `json:"page"`
	ResultsPerPage   int                          `json:"results_per_page"`
	TotalResultsSize int                          `json:"total_results_size"`
	TotalPages       int                          `json:"total_pages"`
	NextPage         *string                      `json:"next_page"`
	Results          []spacetraveling.RawDocument `json:"results"`
}

// MasterRef returns the ref of the published content, cached briefly.
func (c *Client) MasterRef(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.masterRef != "" && c.now().Sub(c.fetched) < masterRefTTL {
		return c.masterRef, nil
	}

	var info apiInfo
	if err := c.get(ctx, c.withToken(c.endpoint, nil), &info); err != nil {
		return "", fmt.Errorf("get api info: %w", err)
	}
	for _, r := range info.Refs {
		if r.IsMasterRef {
			c.masterRef = r.Ref
			c.fetched = c.now()
			return r.Ref, nil
		}
	}
	return "", errors.New("api info has no master ref")
}

// Query returns one page of documents matching every predicate.
func (c *Client) Query(ctx context.Context, predicates []spacetraveling.Predicate, opts spacetraveling.QueryOptions) (spacetraveling.RawPage, error) {
	opts = opts.Normalize()
	u, err := c.searchURL(ctx, predicates, opts)
	if err != nil {
		return spacetraveling.RawPage{}, err
	}
	page, hasNext, err := c.search(ctx, u)
	if err != nil {
		return spacetraveling.RawPage{}, err
	}
	if hasNext {
		next := opts
		next.Page = opts.Page + 1
		page.NextCursor = c.cursors.EncodeQuery(predicates, next)
	}
	return page, nil
}

// QueryCursor resumes the query sealed in cursor. The API's next_page URL is
// not used: it would pin the ref of the reader who got the cursor.
func (c *Client) QueryCursor(ctx context.Context, cursor spacetraveling.Cursor, ref string) (spacetraveling.RawPage, error) {
	predicates, opts, err := c.cursors.DecodeQuery(cursor)
	if err != nil {
		return spacetraveling.RawPage{}, err
	}
	opts.Ref = ref
	return c.Query(ctx, predicates, opts)
}

// ValidRef reports whether the API still accepts ref.
func (c *Client) ValidRef(ctx context.Context, ref string) bool {
	if ref == "" {
		return false
	}
	q := url.Values{}
	q.Set("ref", ref)
	q.Set("pageSize", "1")
	_, _, err := c.search(ctx, c.withToken(c.endpoint+"/documents/search", q))
	return err == nil
}

// GetByUID returns the document of docType with uid, or ErrNotFound.
func (c *Client) GetByUID(ctx context.Context, docType, uid string, opts spacetraveling.QueryOptions) (spacetraveling.RawDocument, error) {
	opts.PageSize = 1
	opts.Page = 1
	page, err := c.Query(ctx, []spacetraveling.Predicate{
		spacetraveling.DocumentType(docType),
		spacetraveling.DocumentUID(uid),
	}, opts)
	if err != nil {
		return spacetraveling.RawDocument{}, err
	}
	if len(page.Results) == 0 {
		return spacetraveling.RawDocument{}, spacetraveling.ErrNotFound
	}
	return page.Results[0], nil
}

// ResolvePreview reads documentID through the preview ref token. The API
// rejecting the ref yields "". A ref that is valid but does not contain the
// document resolves to defaultPath.
func (c *Client) ResolvePreview(ctx context.Context, token, documentID string, resolve spacetraveling.LinkResolver, defaultPath string) (string, error) {
	page, err := c.Query(ctx,
		[]spacetraveling.Predicate{spacetraveling.DocumentID(documentID)},
		spacetraveling.QueryOptions{PageSize: 1, Ref: token},
	)
	var se *StatusError
	if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(page.Results) == 0 {
		return defaultPath, nil
	}
	if dest := resolve(page.Results[0].Link()); dest != "" {
		return dest, nil
	}
	return defaultPath, nil
}

func (c *Client) search(ctx context.Context, u string) (spacetraveling.RawPage, bool, error) {
	var resp searchResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return spacetraveling.RawPage{}, false, fmt.Errorf("search documents: %w", err)
	}
	page := spacetraveling.RawPage{
		Results:      resp.Results,
		Page:         resp.Page,
		TotalPages:   resp.TotalPages,
		TotalResults: resp.TotalResultsSize,
	}
	if page.Results == nil {
		page.Results = []spacetraveling.RawDocument{}
	}
	return page, resp.NextPage != nil, nil
}

func (c *Client) searchURL(ctx context.Context, predicates []spacetraveling.Predicate, opts spacetraveling.QueryOptions) (string, error) {
	ref := opts.Ref
	if ref == "" {
		var err error
		if ref, err = c.MasterRef(ctx); err != nil {
			return "", err
		}
	}

	q := url.Values{}
	q.Set("ref", ref)
	qs, err := buildPredicates(predicates)
	if err != nil {
		return "", err
	}
	for _, p := range qs {
		q.Add("q", p)
	}
	if len(opts.Orderings) > 0 {
		q.Set("orderings", buildOrderings(opts.Orderings))
	}
	if len(opts.Fetch) > 0 {
		q.Set("fetch", strings.Join(opts.Fetch, ","))
	}
	q.Set("pageSize", strconv.Itoa(opts.PageSize))
	q.Set("page", strconv.Itoa(opts.Page))
	return c.withToken(c.endpoint+"/documents/search", q), nil
}

func (c *Client) withToken(u string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	if c.accessToken != "" {
		q.Set("access_token", c.accessToken)
	}
	if len(q) == 0 {
		return u
	}
	return u + "?" + q.Encode()
}

func (c *Client) get(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

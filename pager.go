package spacetraveling

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrLoadInProgress is returned when LoadMore is called while a load is pending.
	ErrLoadInProgress = errors.New("load more already in progress")
	// ErrFetchFailed wraps transient failures fetching the next page. The
	// pager keeps its cursor, so the call can be retried.
	ErrFetchFailed = errors.New("fetch page failed")
)

// PageFetcher fetches the listing page a cursor points at.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor Cursor) (PostListPage, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, cursor Cursor) (PostListPage, error)

// FetchPage calls f.
func (f PageFetcherFunc) FetchPage(ctx context.Context, cursor Cursor) (PostListPage, error) {
	return f(ctx, cursor)
}

// PagerState is the listing state held by a Pager.
type PagerState struct {
	Results    []PostSummary
	NextCursor Cursor
	Loading    bool
	Err        error
}

// HasMore reports whether another page can be loaded.
func (s PagerState) HasMore() bool {
	return s.NextCursor != ""
}

// PagerAction is an event applied by ReducePager.
type PagerAction interface {
	pagerAction()
}

// Initialize replaces the state with a server-provided first page.
type Initialize struct{ Page PostListPage }

// LoadMoreRequested marks a load as in flight.
type LoadMoreRequested struct{}

// LoadMoreSucceeded appends a fetched page.
type LoadMoreSucceeded struct{ Page PostListPage }

// LoadMoreFailed ends a load without touching results or cursor.
type LoadMoreFailed struct{ Err error }

func (Initialize) pagerAction()        {}
func (LoadMoreRequested) pagerAction() {}
func (LoadMoreSucceeded) pagerAction() {}
func (LoadMoreFailed) pagerAction()    {}

// ReducePager returns the state that follows s after action a.
func ReducePager(s PagerState, a PagerAction) PagerState {
	switch a := a.(type) {
	case Initialize:
		return PagerState{
			Results:    append([]PostSummary(nil), a.Page.Results...),
			NextCursor: a.Page.NextCursor,
		}
	case LoadMoreRequested:
		if s.Loading || !s.HasMore() {
			return s
		}
		s.Loading = true
		s.Err = nil
		return s
	case LoadMoreSucceeded:
		if !s.Loading {
			return s
		}
		results := make([]PostSummary, 0, len(s.Results)+len(a.Page.Results))
		results = append(results, s.Results...)
		results = append(results, a.Page.Results...)
		return PagerState{Results: results, NextCursor: a.Page.NextCursor}
	case LoadMoreFailed:
		if !s.Loading {
			return s
		}
		s.Loading = false
		s.Err = a.Err
		return s
	}
	return s
}

// Pager holds the displayed listing and extends it one page at a time.
// At most one LoadMore runs at a time; overlapping calls are rejected.
type Pager struct {
	mu      sync.Mutex
	state   PagerState
	fetcher PageFetcher
}

// NewPager creates a Pager initialized with first.
func NewPager(fetcher PageFetcher, first PostListPage) *Pager {
	return &Pager{
		fetcher: fetcher,
		state:   ReducePager(PagerState{}, Initialize{Page: first}),
	}
}

func (p *Pager) dispatch(a PagerAction) {
	p.state = ReducePager(p.state, a)
}

// State returns a snapshot of the pager state.
func (p *Pager) State() PagerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.state
	s.Results = append([]PostSummary(nil), s.Results...)
	return s
}

// Results returns a copy of the loaded summaries.
func (p *Pager) Results() []PostSummary {
	return p.State().Results
}

// HasMore reports whether the listing has another page.
func (p *Pager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.HasMore()
}

// LoadMore fetches the page at the current cursor and appends it. It returns
// false without fetching when the listing is exhausted, and ErrLoadInProgress
// when another call is still pending.
func (p *Pager) LoadMore(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.state.Loading {
		p.mu.Unlock()
		return false, ErrLoadInProgress
	}
	if !p.state.HasMore() {
		p.mu.Unlock()
		return false, nil
	}
	cursor := p.state.NextCursor
	p.dispatch(LoadMoreRequested{})
	p.mu.Unlock()

	page, err := p.fetcher.FetchPage(ctx, cursor)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrFetchFailed, err)
		p.dispatch(LoadMoreFailed{Err: err})
		return false, err
	}
	p.dispatch(LoadMoreSucceeded{Page: page})
	return true, nil
}

// LoadAll calls LoadMore until the listing is exhausted.
func (p *Pager) LoadAll(ctx context.Context) ([]PostSummary, error) {
	for {
		loaded, err := p.LoadMore(ctx)
		if err != nil {
			return nil, err
		}
		if !loaded {
			return p.Results(), nil
		}
	}
}

// SourceFetcher fetches listing pages straight from a ContentSource. Ref is
// the reader's preview ref, empty for published content.
type SourceFetcher struct {
	Source ContentSource
	Ref    string
}

// FetchPage resumes the cursor's query on the content source.
func (f SourceFetcher) FetchPage(ctx context.Context, cursor Cursor) (PostListPage, error) {
	raw, err := f.Source.QueryCursor(ctx, cursor, f.Ref)
	if err != nil {
		return PostListPage{}, err
	}
	return FormatPage(raw), nil
}

package spacetraveling

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultRevalidate is how long a generated post page stays fresh.
	DefaultRevalidate = 12 * time.Hour
	// DefaultPrerenderLimit is the number of newest posts built ahead of requests.
	DefaultPrerenderLimit = 2
)

// Generator produces post page data from the content source.
type Generator struct {
	source         ContentSource
	adjacent       *AdjacentResolver
	revalidate     time.Duration
	prerenderLimit int
}

// NewGenerator creates a Generator. Zero values select the defaults.
func NewGenerator(source ContentSource, revalidate time.Duration, prerenderLimit int) *Generator {
	if revalidate <= 0 {
		revalidate = DefaultRevalidate
	}
	if prerenderLimit <= 0 {
		prerenderLimit = DefaultPrerenderLimit
	}
	return &Generator{
		source:         source,
		adjacent:       NewAdjacentResolver(source),
		revalidate:     revalidate,
		prerenderLimit: prerenderLimit,
	}
}

// Revalidate returns the freshness interval of generated pages.
func (g *Generator) Revalidate() time.Duration {
	return g.revalidate
}

// EnumeratePaths returns the uids of the newest published posts to build
// ahead of time. Every other uid is generated on first request.
func (g *Generator) EnumeratePaths(ctx context.Context) ([]string, error) {
	page, err := g.source.Query(ctx,
		[]Predicate{DocumentType(PostType)},
		QueryOptions{PageSize: g.prerenderLimit, Orderings: NewestFirst},
	)
	if err != nil {
		return nil, fmt.Errorf("enumerate paths: %w", err)
	}
	uids := make([]string, 0, len(page.Results))
	for _, doc := range page.Results {
		if doc.UID != "" {
			uids = append(uids, doc.UID)
		}
	}
	return uids, nil
}

// BuildPageData fetches the post with uid and its neighbours. A post that
// does not exist, or is unpublished outside a preview, yields a redirect to
// the home page rather than an error. ref is the preview ref, empty for
// published content; a ref the source no longer accepts reads published
// content only.
func (g *Generator) BuildPageData(ctx context.Context, uid, ref string) (PageResult, error) {
	home := PageResult{Redirect: "/", Revalidate: g.revalidate}
	if !PreviewActive(ctx, g.source, ref) {
		ref = ""
	}

	doc, err := g.source.GetByUID(ctx, PostType, uid, QueryOptions{Ref: ref})
	if errors.Is(err, ErrNotFound) {
		return home, nil
	}
	if err != nil {
		return PageResult{}, fmt.Errorf("get post %q: %w", uid, err)
	}

	post := FormatPost(doc)
	page := &PostPage{
		Post:        post,
		ReadingTime: ReadingTime(post),
		Preview:     ref != "",
	}

	publishedAt, published := post.PublishedTime()
	if !published {
		if ref == "" {
			return home, nil
		}
		// Drafts have no place in the timeline yet.
		return PageResult{Page: page, Revalidate: g.revalidate}, nil
	}

	adj, err := g.adjacent.Resolve(ctx, publishedAt)
	if err != nil {
		return PageResult{}, fmt.Errorf("resolve neighbours of %q: %w", uid, err)
	}
	page.Adjacency = adj
	return PageResult{Page: page, Revalidate: g.revalidate}, nil
}

package spacetraveling

import (
	"context"
	"fmt"
	"time"
)

// AdjacentResolver finds the published posts on either side of a timestamp.
type AdjacentResolver struct {
	source ContentSource
}

// NewAdjacentResolver creates an AdjacentResolver over source.
func NewAdjacentResolver(source ContentSource) *AdjacentResolver {
	return &AdjacentResolver{source: source}
}

// Resolve returns the newest post published strictly before publishedAt and
// the oldest post published strictly after it. Posts published at exactly
// publishedAt are never neighbours. Among candidates sharing a timestamp the
// document id decides.
func (r *AdjacentResolver) Resolve(ctx context.Context, publishedAt time.Time) (Adjacency, error) {
	var adj Adjacency

	prev, err := r.neighbour(ctx, PublishedBefore(publishedAt), NewestFirst)
	if err != nil {
		return Adjacency{}, fmt.Errorf("previous post: %w", err)
	}
	adj.Previous = prev

	next, err := r.neighbour(ctx, PublishedAfter(publishedAt), OldestFirst)
	if err != nil {
		return Adjacency{}, fmt.Errorf("next post: %w", err)
	}
	adj.Next = next

	return adj, nil
}

func (r *AdjacentResolver) neighbour(ctx context.Context, bound Predicate, order []Ordering) (*PostLink, error) {
	page, err := r.source.Query(ctx,
		[]Predicate{DocumentType(PostType), bound},
		QueryOptions{
			PageSize:  1,
			Orderings: order,
			Fetch:     []string{PostType + ".title"},
		},
	)
	if err != nil {
		return nil, err
	}
	if len(page.Results) == 0 {
		return nil, nil
	}
	doc := page.Results[0]
	return &PostLink{UID: doc.UID, Title: doc.Data.Title}, nil
}

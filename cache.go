package spacetraveling

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// PageState describes what a PageCache lookup found.
type PageState int

const (
	// PageFresh is a cached page younger than its revalidation interval.
	PageFresh PageState = iota
	// PageStale is a cached page being regenerated in the background.
	PageStale
	// PagePending means nothing is cached yet and a build has been started.
	PagePending
)

func (s PageState) String() string {
	switch s {
	case PageFresh:
		return "fresh"
	case PageStale:
		return "stale"
	case PagePending:
		return "pending"
	}
	return "unknown"
}

// PageBuilder builds the page data for a uid. *Generator implements it.
type PageBuilder interface {
	BuildPageData(ctx context.Context, uid, ref string) (PageResult, error)
}

// PageBuilderFunc adapts a function to PageBuilder.
type PageBuilderFunc func(ctx context.Context, uid, ref string) (PageResult, error)

// BuildPageData calls f.
func (f PageBuilderFunc) BuildPageData(ctx context.Context, uid, ref string) (PageResult, error) {
	return f(ctx, uid, ref)
}

const (
	defaultBuildTimeout = 30 * time.Second
	warmConcurrency     = 4

	// DefaultPageCacheSize is the number of post pages kept in memory.
	DefaultPageCacheSize = 1000
	// missTTL bounds how long a not-found redirect is served from the cache.
	missTTL = time.Minute
	// maxBackgroundBuilds caps concurrent regenerations started by Lookup.
	maxBackgroundBuilds = 8
)

type pageEntry struct {
	result PageResult
	built  time.Time
}

// PageCache keeps generated post pages in memory and regenerates them in the
// background once they are older than their revalidation interval. A failed
// regeneration keeps serving the previous page. The least recently used
// pages are evicted beyond the configured size.
type PageCache struct {
	entries *lru.Cache[string, pageEntry]
	ttl     time.Duration
	builder PageBuilder

	mu         sync.Mutex
	refreshing map[string]bool
	background *semaphore.Weighted

	group        singleflight.Group
	wg           sync.WaitGroup
	buildTimeout time.Duration
	now          func() time.Time
}

// NewPageCache creates a PageCache holding at most size pages. ttl applies
// to results that do not carry their own revalidation interval.
func NewPageCache(builder PageBuilder, ttl time.Duration, size int) *PageCache {
	if ttl <= 0 {
		ttl = DefaultRevalidate
	}
	if size <= 0 {
		size = DefaultPageCacheSize
	}
	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[string, pageEntry](size)
	return &PageCache{
		entries:      entries,
		ttl:          ttl,
		builder:      builder,
		refreshing:   make(map[string]bool),
		background:   semaphore.NewWeighted(maxBackgroundBuilds),
		buildTimeout: defaultBuildTimeout,
		now:          time.Now,
	}
}

func (c *PageCache) fresh(e pageEntry) bool {
	ttl := e.result.Revalidate
	if ttl <= 0 {
		ttl = c.ttl
	}
	if !e.result.Found() && ttl > missTTL {
		ttl = missTTL
	}
	return c.now().Sub(e.built) < ttl
}

// Len returns the number of cached pages.
func (c *PageCache) Len() int {
	return c.entries.Len()
}

// Lookup returns the cached page for uid without blocking on the content
// source. Stale and missing pages get one background build while a build
// slot is free.
func (c *PageCache) Lookup(uid string) (PageResult, PageState) {
	e, ok := c.entries.Get(uid)
	switch {
	case ok && c.fresh(e):
		return e.result, PageFresh
	case ok:
		c.refresh(uid)
		return e.result, PageStale
	default:
		c.refresh(uid)
		return PageResult{}, PagePending
	}
}

// Get returns the page for uid, building it when missing or stale. When a
// rebuild fails and an older page exists, the older page is returned. The
// build itself outlives ctx so that other callers waiting on it still get
// the page.
func (c *PageCache) Get(ctx context.Context, uid string) (PageResult, error) {
	e, ok := c.entries.Get(uid)
	if ok && c.fresh(e) {
		return e.result, nil
	}

	res, err := c.build(ctx, uid)
	if err != nil {
		if ok && ctx.Err() == nil {
			log.Warn().Err(err).Str("uid", uid).Msg("serving stale page")
			return e.result, nil
		}
		return PageResult{}, err
	}
	return res, nil
}

// Warm builds the pages for uids in parallel.
func (c *PageCache) Warm(ctx context.Context, uids []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)
	for _, uid := range uids {
		uid := uid
		g.Go(func() error {
			_, err := c.Get(ctx, uid)
			return err
		})
	}
	return g.Wait()
}

// Invalidate drops the given pages, or every page when no uid is given.
func (c *PageCache) Invalidate(uids ...string) {
	if len(uids) == 0 {
		c.entries.Purge()
		return
	}
	for _, uid := range uids {
		c.entries.Remove(uid)
	}
}

// Wait blocks until all background builds have finished.
func (c *PageCache) Wait() {
	c.wg.Wait()
}

// build runs at most one BuildPageData per uid at a time, on a context of
// its own, and stores the result. It returns early with ctx's error when ctx
// ends first.
func (c *PageCache) build(ctx context.Context, uid string) (PageResult, error) {
	ch := c.group.DoChan(uid, func() (any, error) {
		bctx, cancel := context.WithTimeout(context.Background(), c.buildTimeout)
		defer cancel()
		res, err := c.builder.BuildPageData(bctx, uid, "")
		if err != nil {
			return PageResult{}, err
		}
		c.entries.Add(uid, pageEntry{result: res, built: c.now()})
		return res, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return PageResult{}, r.Err
		}
		return r.Val.(PageResult), nil
	case <-ctx.Done():
		return PageResult{}, ctx.Err()
	}
}

func (c *PageCache) refresh(uid string) {
	c.mu.Lock()
	if c.refreshing[uid] || !c.background.TryAcquire(1) {
		c.mu.Unlock()
		return
	}
	c.refreshing[uid] = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.refreshing, uid)
			c.mu.Unlock()
			c.background.Release(1)
		}()
		if _, err := c.build(context.Background(), uid); err != nil {
			log.Error().Err(err).Str("uid", uid).Msg("regenerate page")
		}
	}()
}

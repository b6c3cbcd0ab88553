// Package spacetraveling serves a blog whose posts live in an external
// content store. Post pages are generated on demand, cached, and regenerated
// in the background once stale; the listing is paged with opaque cursors; and
// editors can preview drafts through signed preview tokens.
//
// Templates are provided by the caller through ViewFuncs; the package owns
// handlers, middleware, caching and the content-source contract.
package spacetraveling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// ViewFuncs holds the templ components the handlers render.
type ViewFuncs struct {
	Home           func(site SiteConfig, page PostListPage) templ.Component
	PostListItems  func(page PostListPage) templ.Component
	Post           func(site SiteConfig, page PostPage) templ.Component
	Loading        func(site SiteConfig) templ.Component
	AdminLogin     func(showError bool, csrfToken string) templ.Component
	AdminDashboard func(drafts []PostSummary, message string, csrfToken string) templ.Component
	NotFound       func() templ.Component
	ServerError    func() templ.Component
}

// App wires the content source, page generation, handlers and middleware.
type App struct {
	Config    SiteConfig
	Echo      *echo.Echo
	Source    ContentSource
	Generator *Generator
	Pages     *PageCache
	Preview   *PreviewResolver
	Views     ViewFuncs

	tokens         *PreviewTokens
	previewLimiter *Limiter
	loginLimiter   *Limiter
	closers        []io.Closer
	customRoutes   []func(*App)
	staticDir      string
	ready          bool
}

// New creates an App with the given configuration and views.
func New(cfg SiteConfig, views ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	a := &App{
		Config:    cfg,
		Echo:      e,
		Views:     views,
		staticDir: "public",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// PreviewTokens returns the signer used for preview refs of locally hosted stores.
func (a *App) PreviewTokens() *PreviewTokens {
	if a.tokens == nil {
		a.tokens = NewPreviewTokens(a.Config.PreviewSecret, a.Config.PreviewTokenTTL)
	}
	return a.tokens
}

// Setup opens the content source if none was injected and registers
// middleware and routes. It is called by Start and is safe to call once
// before serving requests through a.Echo directly.
func (a *App) Setup() error {
	if a.ready {
		return nil
	}
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("spacetraveling: SessionSecret is required")
	}

	if a.Source == nil {
		if a.Config.ContentBackend != BackendSQLite {
			return fmt.Errorf("spacetraveling: backend %q needs WithContentSource", a.Config.ContentBackend)
		}
		store, err := NewStore(a.Config.DatabasePath, a.PreviewTokens(), NewCursorCodec(a.Config.SessionSecret))
		if err != nil {
			return fmt.Errorf("spacetraveling: init store: %w", err)
		}
		a.Source = store
		a.closers = append(a.closers, store)
	}

	a.Generator = NewGenerator(a.Source, a.Config.Revalidate, a.Config.PrerenderLimit)
	a.Pages = NewPageCache(a.Generator, a.Config.Revalidate, a.Config.PageCacheSize)
	a.Preview = NewPreviewResolver(a.Source)
	a.previewLimiter = NewLimiter(10, time.Minute)
	a.loginLimiter = NewLimiter(5, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	a.ready = true
	return nil
}

// Prerender builds the newest post pages into the page cache.
func (a *App) Prerender(ctx context.Context) error {
	uids, err := a.Generator.EnumeratePaths(ctx)
	if err != nil {
		return err
	}
	if err := a.Pages.Warm(ctx, uids); err != nil {
		return fmt.Errorf("prerender: %w", err)
	}
	log.Info().Strs("uids", uids).Msg("prerendered post pages")
	return nil
}

// Start sets up the app, prerenders the newest posts and serves HTTP until
// the server is shut down.
func (a *App) Start() error {
	if err := a.Setup(); err != nil {
		return err
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := a.Prerender(ctx); err != nil {
			log.Warn().Err(err).Msg("prerender failed; pages will build on demand")
		}
	}()

	log.Info().Str("addr", a.Config.Addr).Str("backend", a.Config.ContentBackend).Msg("starting server")
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/public", a.staticDir)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/health", handleHealth)

	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/", a.handleHome)
	e.GET("/post/:uid", a.handlePost)

	api := e.Group("/api")
	api.GET("/posts", a.handleAPIPosts)
	api.GET("/post/:uid", a.handleAPIPost)
	api.GET("/preview", a.handlePreview)
	api.GET("/exit-preview", handleExitPreview)

	if a.Config.AdminEnabled() {
		e.GET("/admin", a.handleAdmin)
		e.POST("/admin/login", a.handleAdminLogin)
		e.POST("/admin/logout", handleAdminLogout)
		e.POST("/admin/preview", a.handleAdminPreview)
		e.POST("/admin/revalidate", a.handleAdminRevalidate)
	}
}

// Close releases resources opened by Setup and waits for background builds.
func (a *App) Close() error {
	if a.Pages != nil {
		a.Pages.Wait()
	}
	if a.previewLimiter != nil {
		a.previewLimiter.Close()
	}
	if a.loginLimiter != nil {
		a.loginLimiter.Close()
	}
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

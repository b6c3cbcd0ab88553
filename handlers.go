package spacetraveling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// listingFetch is the field projection used for listing pages.
var listingFetch = []string{PostType + ".title", PostType + ".subtitle", PostType + ".author"}

// feedPageSize is the page size used when draining the listing for feeds.
const feedPageSize = 100

type apiMessage struct {
	Message string `json:"message"`
}

// firstPage queries the first listing page.
func (a *App) firstPage(ctx context.Context, pageSize int, ref string) (PostListPage, error) {
	raw, err := a.Source.Query(ctx,
		[]Predicate{DocumentType(PostType)},
		QueryOptions{
			PageSize:  pageSize,
			Orderings: NewestFirst,
			Fetch:     listingFetch,
			Ref:       ref,
		},
	)
	if err != nil {
		return PostListPage{}, fmt.Errorf("list posts: %w", err)
	}
	return FormatPage(raw), nil
}

// activePreviewRef returns the session's preview ref while the content
// source accepts it. A ref that is no longer accepted ends the preview
// session.
func (a *App) activePreviewRef(c echo.Context) string {
	ref := previewRef(c)
	if ref == "" {
		return ""
	}
	if PreviewActive(c.Request().Context(), a.Source, ref) {
		return ref
	}
	if err := clearPreviewSession(c); err != nil {
		log.Warn().Err(err).Msg("clear expired preview session")
	}
	return ""
}

// listingPage returns the first page, or the page at cursor when one is
// given. Cursors are resumed with the current session's preview ref.
func (a *App) listingPage(c echo.Context, cursor Cursor) (PostListPage, error) {
	ctx := c.Request().Context()
	ref := a.activePreviewRef(c)
	if cursor == "" {
		return a.firstPage(ctx, a.Config.PageSize, ref)
	}
	page, err := SourceFetcher{Source: a.Source, Ref: ref}.FetchPage(ctx, cursor)
	if errors.Is(err, ErrInvalidCursor) {
		return PostListPage{}, echo.NewHTTPError(http.StatusBadRequest, "Invalid cursor")
	}
	return page, err
}

// allPosts drains the listing through a Pager.
func (a *App) allPosts(ctx context.Context) ([]PostSummary, error) {
	first, err := a.firstPage(ctx, feedPageSize, "")
	if err != nil {
		return nil, err
	}
	return NewPager(SourceFetcher{Source: a.Source}, first).LoadAll(ctx)
}

func (a *App) handleHome(c echo.Context) error {
	page, err := a.listingPage(c, Cursor(c.QueryParam("cursor")))
	if err != nil {
		return err
	}
	full := a.Views.Home(a.Config, page)
	if c.QueryParam("cursor") == "" {
		return RenderFragment(c, full, full)
	}
	return RenderFragment(c, full, a.Views.PostListItems(page))
}

func (a *App) handleAPIPosts(c echo.Context) error {
	page, err := a.listingPage(c, Cursor(c.QueryParam("cursor")))
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusBadRequest {
			return c.JSON(http.StatusBadRequest, apiMessage{Message: "Invalid cursor"})
		}
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (a *App) handlePost(c echo.Context) error {
	uid := c.Param("uid")
	res, err := a.pageResult(c, uid, false)
	if err != nil {
		return err
	}
	if res == nil {
		c.Response().Header().Set("Cache-Control", "no-store")
		c.Response().Header().Set("Refresh", "1")
		return Render(c, a.Views.Loading(a.Config))
	}
	if !res.Found() {
		return c.Redirect(http.StatusTemporaryRedirect, res.Redirect)
	}
	if !res.Page.Preview {
		c.Response().Header().Set("Cache-Control", revalidateHeader(*res))
	}
	return Render(c, a.Views.Post(a.Config, *res.Page))
}

func (a *App) handleAPIPost(c echo.Context) error {
	res, err := a.pageResult(c, c.Param("uid"), true)
	if err != nil {
		return err
	}
	if res.Found() && !res.Page.Preview {
		c.Response().Header().Set("Cache-Control", revalidateHeader(*res))
	}
	return c.JSON(http.StatusOK, res)
}

// pageResult returns the page for uid. Preview sessions always build fresh.
// Otherwise the page cache answers; a nil result means the page is still
// being generated and block was false.
func (a *App) pageResult(c echo.Context, uid string, block bool) (*PageResult, error) {
	ctx := c.Request().Context()
	if ref := a.activePreviewRef(c); ref != "" {
		c.Response().Header().Set("Cache-Control", "no-store")
		res, err := a.Generator.BuildPageData(ctx, uid, ref)
		if err != nil {
			return nil, err
		}
		return &res, nil
	}
	if block {
		res, err := a.Pages.Get(ctx, uid)
		if err != nil {
			return nil, err
		}
		return &res, nil
	}
	res, state := a.Pages.Lookup(uid)
	if state == PagePending {
		return nil, nil
	}
	return &res, nil
}

func revalidateHeader(res PageResult) string {
	return fmt.Sprintf("public, s-maxage=%d, stale-while-revalidate", int(res.Revalidate.Seconds()))
}

func (a *App) handlePreview(c echo.Context) error {
	ip := c.RealIP()
	if !a.previewLimiter.Check(ip) {
		return c.JSON(http.StatusTooManyRequests, apiMessage{Message: "Too many attempts"})
	}
	token := c.QueryParam("token")
	dest, err := a.Preview.Resolve(c.Request().Context(), PreviewRequest{
		Token:      token,
		DocumentID: c.QueryParam("documentId"),
	})
	if errors.Is(err, ErrInvalidPreviewToken) {
		a.previewLimiter.Record(ip)
		log.Info().Str("ip", ip).Msg("rejected preview token")
		return c.JSON(http.StatusUnauthorized, apiMessage{Message: "Invalid token"})
	}
	if err != nil {
		return err
	}
	if err := setPreviewSession(c, token); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, dest)
}

func handleExitPreview(c echo.Context) error {
	if err := clearPreviewSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

func (a *App) handleSitemap(c echo.Context) error {
	posts, err := a.allPosts(c.Request().Context())
	if err != nil {
		return err
	}
	return writeXML(c, "application/xml; charset=utf-8", buildSitemap(a.Config, posts))
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.allPosts(c.Request().Context())
	if err != nil {
		return err
	}
	return writeXML(c, "application/rss+xml; charset=utf-8", buildFeed(a.Config, posts))
}

func (a *App) handleRobots(c echo.Context) error {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	b.WriteString("Allow: /\n")
	b.WriteString("Disallow: /api/\n")
	b.WriteString("Disallow: /admin\n")
	b.WriteString("Sitemap: " + BuildURL(a.Config.URL, "sitemap.xml") + "\n")
	return c.String(http.StatusOK, b.String())
}

func handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func isHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true"
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he, ok := err.(*echo.HTTPError)
	if ok && he.Code == http.StatusNotFound {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		log.Error().Err(err).
			Str("method", c.Request().Method).
			Str("uri", c.Request().RequestURI).
			Msg("server error")
		_ = RenderStatus(c, code, a.Views.ServerError())
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}

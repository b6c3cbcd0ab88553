package spacetraveling

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

func text(format string, args ...any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, format, args...)
		return err
	})
}

func listing(page PostListPage) string {
	return strings.Join(uids(page.Results), ",") + " next=" + string(page.NextCursor)
}

// plainViews renders just enough text for assertions.
func plainViews() ViewFuncs {
	return ViewFuncs{
		Home:          func(site SiteConfig, page PostListPage) templ.Component { return text("home %s", listing(page)) },
		PostListItems: func(page PostListPage) templ.Component { return text("items %s", listing(page)) },
		Post: func(site SiteConfig, page PostPage) templ.Component {
			return text("post %s prev=%s next=%s preview=%t", page.Post.UID,
				linkUID(page.Adjacency.Previous), linkUID(page.Adjacency.Next), page.Preview)
		},
		Loading:    func(site SiteConfig) templ.Component { return text("loading") },
		AdminLogin: func(showError bool, csrf string) templ.Component { return text("login error=%t", showError) },
		AdminDashboard: func(drafts []PostSummary, msg, csrf string) templ.Component {
			return text("dashboard drafts=%s msg=%s", strings.Join(uids(drafts), ","), msg)
		},
		NotFound:    func() templ.Component { return text("not found") },
		ServerError: func() templ.Component { return text("server error") },
	}
}

func newTestApp(t *testing.T) (*App, *PreviewTokens) {
	t.Helper()
	s, tokens := setupTestStore(t)
	seedStore(t, s, threePosts()...)
	cfg := SiteConfig{
		URL:           "https://blog.example.com",
		SessionSecret: "test-session-secret",
		AdminPassword: "admin-pass",
	}
	app := New(cfg, plainViews(), WithContentSource(s), WithPreviewTokens(tokens))
	if err := app.Setup(); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return app, tokens
}

func serve(app *App, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.Echo.ServeHTTP(rec, req)
	return rec
}

func get(app *App, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return serve(app, req)
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHomeListing(t *testing.T) {
	app, _ := newTestApp(t)

	rec := get(app, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "home terceiro,segundo next=") || strings.HasSuffix(body, "next=") {
		t.Fatalf("body = %q, want the two newest posts and a cursor", body)
	}
	cursor := strings.TrimPrefix(body, "home terceiro,segundo next=")

	req := httptest.NewRequest(http.MethodGet, "/?cursor="+url.QueryEscape(cursor), nil)
	req.Header.Set("HX-Request", "true")
	rec = serve(app, req)
	if got := rec.Body.String(); got != "items primeiro next=" {
		t.Errorf("htmx page = %q, want items primeiro next=", got)
	}
	if got := rec.Header().Get("Vary"); !strings.Contains(got, "HX-Request") {
		t.Errorf("Vary = %q, want HX-Request", got)
	}

	rec = get(app, "/?cursor=not-a-cursor")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad cursor status = %d, want 400", rec.Code)
	}
}

func TestAPIPosts(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.Header.Set("Origin", "https://reader.example.org")
	rec := serve(app, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var wire struct {
		Results  []PostSummary `json:"results"`
		NextPage *string       `json:"next_page"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &wire); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(wire.Results) != 2 || wire.NextPage == nil {
		t.Fatalf("first page = %s", rec.Body.String())
	}
	if wire.Results[0].Title != "Terceiro" || wire.Results[0].PublishedAt == nil {
		t.Errorf("summary = %+v", wire.Results[0])
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}

	rec = get(app, "/api/posts?cursor="+url.QueryEscape(*wire.NextPage))
	if err := json.Unmarshal(rec.Body.Bytes(), &wire); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(wire.Results) != 1 || wire.Results[0].UID != "primeiro" || wire.NextPage != nil {
		t.Errorf("last page = %s", rec.Body.String())
	}

	rec = get(app, "/api/posts?cursor=%25%25")
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"Invalid cursor"`) {
		t.Errorf("bad cursor = %d %s", rec.Code, rec.Body.String())
	}
}

func TestPostPageGeneratedOnDemand(t *testing.T) {
	app, _ := newTestApp(t)

	rec := get(app, "/post/segundo")
	if rec.Code != http.StatusOK || rec.Body.String() != "loading" {
		t.Fatalf("first request = %d %q, want the loading page", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") != "no-store" || rec.Header().Get("Refresh") == "" {
		t.Errorf("loading headers = %v", rec.Header())
	}
	app.Pages.Wait()

	rec = get(app, "/post/segundo")
	if got := rec.Body.String(); got != "post segundo prev=primeiro next=terceiro preview=false" {
		t.Errorf("body = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, s-maxage=43200, stale-while-revalidate" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestPostPageRedirects(t *testing.T) {
	app, _ := newTestApp(t)
	for _, uid := range []string{"nao-existe", "rascunho"} {
		get(app, "/post/"+uid)
		app.Pages.Wait()
		rec := get(app, "/post/"+uid)
		if rec.Code != http.StatusTemporaryRedirect || rec.Header().Get("Location") != "/" {
			t.Errorf("%s = %d to %q, want 307 to /", uid, rec.Code, rec.Header().Get("Location"))
		}
	}
}

func TestPrerender(t *testing.T) {
	app, _ := newTestApp(t)
	if err := app.Prerender(context.Background()); err != nil {
		t.Fatalf("Prerender failed: %v", err)
	}
	for _, uid := range []string{"terceiro", "segundo"} {
		if _, state := app.Pages.Lookup(uid); state != PageFresh {
			t.Errorf("%s state = %v, want fresh", uid, state)
		}
	}
	if rec := get(app, "/post/terceiro"); !strings.HasPrefix(rec.Body.String(), "post terceiro") {
		t.Errorf("prerendered page body = %q", rec.Body.String())
	}
}

func TestAPIPost(t *testing.T) {
	app, _ := newTestApp(t)

	rec := get(app, "/api/post/primeiro")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var res PageResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Found() || res.Page.Post.Title != "Primeiro" {
		t.Fatalf("result = %s", rec.Body.String())
	}
	if res.Page.Adjacency.Previous != nil || linkUID(res.Page.Adjacency.Next) != "segundo" {
		t.Errorf("adjacency = %+v", res.Page.Adjacency)
	}

	rec = get(app, "/api/post/nao-existe")
	if !strings.Contains(rec.Body.String(), `"redirect":"/"`) {
		t.Errorf("missing post = %s", rec.Body.String())
	}
}

func TestTrailingSlashRedirect(t *testing.T) {
	app, _ := newTestApp(t)
	rec := get(app, "/post/segundo/")
	if rec.Code != http.StatusMovedPermanently || rec.Header().Get("Location") != "/post/segundo" {
		t.Errorf("got %d to %q, want 301 to /post/segundo", rec.Code, rec.Header().Get("Location"))
	}
}

func TestPreviewRejectsInvalidToken(t *testing.T) {
	app, tokens := newTestApp(t)
	other, _ := tokens.Issue("p1")

	for _, target := range []string{
		"/api/preview",
		"/api/preview?token=garbage&documentId=d1",
		"/api/preview?token=" + url.QueryEscape(other) + "&documentId=d1",
	} {
		rec := get(app, target)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want 401", target, rec.Code)
		}
		if got := strings.TrimSpace(rec.Body.String()); got != `{"message":"Invalid token"}` {
			t.Errorf("%s body = %s", target, got)
		}
		if cookieNamed(rec, previewSessionName) != nil {
			t.Errorf("%s set a preview cookie", target)
		}
	}
}

func TestPreviewRateLimited(t *testing.T) {
	app, _ := newTestApp(t)
	for i := 0; i < 10; i++ {
		get(app, "/api/preview?token=bad&documentId=d1")
	}
	if rec := get(app, "/api/preview?token=bad&documentId=d1"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

func TestPreviewSession(t *testing.T) {
	app, tokens := newTestApp(t)
	ref, err := tokens.Issue("d1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	rec := get(app, "/api/preview?token="+url.QueryEscape(ref)+"&documentId=d1")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/post/rascunho" {
		t.Fatalf("preview = %d to %q, want 303 to /post/rascunho", rec.Code, rec.Header().Get("Location"))
	}
	cookie := cookieNamed(rec, previewSessionName)
	if cookie == nil {
		t.Fatal("preview cookie not set")
	}

	rec = get(app, "/post/rascunho", cookie)
	if got := rec.Body.String(); got != "post rascunho prev= next= preview=true" {
		t.Errorf("draft page = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}

	rec = get(app, "/", cookie)
	if got := rec.Body.String(); !strings.HasPrefix(got, "home terceiro,segundo") {
		t.Errorf("preview listing = %q", got)
	}

	rec = get(app, "/api/exit-preview", cookie)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Errorf("exit = %d to %q", rec.Code, rec.Header().Get("Location"))
	}
	if c := cookieNamed(rec, previewSessionName); c == nil || c.MaxAge >= 0 {
		t.Errorf("exit should expire the preview cookie, got %+v", c)
	}
}

// previewCookie opens a preview session for documentID.
func previewCookie(t *testing.T, app *App, tokens *PreviewTokens, documentID string) *http.Cookie {
	t.Helper()
	ref, err := tokens.Issue(documentID)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	rec := get(app, "/api/preview?token="+url.QueryEscape(ref)+"&documentId="+documentID)
	cookie := cookieNamed(rec, previewSessionName)
	if rec.Code != http.StatusSeeOther || cookie == nil {
		t.Fatalf("preview = %d, cookie %v", rec.Code, cookie)
	}
	return cookie
}

func TestPreviewCursorReplayedWithoutSession(t *testing.T) {
	app, tokens := newTestApp(t)
	cookie := previewCookie(t, app, tokens, "d1")

	rec := get(app, "/", cookie)
	body := rec.Body.String()
	if !strings.HasPrefix(body, "home terceiro,segundo next=") {
		t.Fatalf("preview listing = %q", body)
	}
	cursor := strings.TrimPrefix(body, "home terceiro,segundo next=")

	rec = get(app, "/api/posts?cursor="+url.QueryEscape(cursor))
	if rec.Code != http.StatusOK {
		t.Fatalf("replay status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "rascunho") {
		t.Errorf("cursor from a preview session leaked a draft: %s", rec.Body.String())
	}

	rec = get(app, "/api/posts?cursor="+url.QueryEscape(cursor), cookie)
	if !strings.Contains(rec.Body.String(), "rascunho") {
		t.Errorf("preview session lost the draft on the next page: %s", rec.Body.String())
	}
}

func TestAPIPostsRejectsForgedCursor(t *testing.T) {
	app, _ := newTestApp(t)
	forged := NewCursorCodec("not-the-server-secret").EncodeQuery(nil, QueryOptions{PageSize: 100})

	rec := get(app, "/api/posts?cursor="+url.QueryEscape(string(forged)))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"Invalid cursor"`) {
		t.Errorf("forged cursor = %d %s", rec.Code, rec.Body.String())
	}
}

func TestExpiredPreviewSession(t *testing.T) {
	app, tokens := newTestApp(t)
	cookie := previewCookie(t, app, tokens, "d1")
	issued := tokens.now()
	tokens.now = func() time.Time { return issued.Add(2 * time.Hour) }

	rec := get(app, "/api/post/segundo", cookie)
	var res struct {
		Page struct {
			Preview bool `json:"preview"`
		} `json:"page"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Page.Preview {
		t.Error("page built with an expired ref is marked as preview")
	}
	if got := rec.Header().Get("Cache-Control"); got == "no-store" {
		t.Errorf("Cache-Control = %q, want the public revalidation header", got)
	}
	if c := cookieNamed(rec, previewSessionName); c == nil || c.MaxAge >= 0 {
		t.Errorf("expired preview session should be cleared, got %+v", c)
	}

	rec = get(app, "/api/post/rascunho", cookie)
	if !strings.Contains(rec.Body.String(), `"redirect":"/"`) {
		t.Errorf("draft with an expired session = %s", rec.Body.String())
	}
}

func TestSitemapFeedRobots(t *testing.T) {
	app, _ := newTestApp(t)

	rec := get(app, "/sitemap.xml")
	body := rec.Body.String()
	for _, want := range []string{
		"<loc>https://blog.example.com/post/primeiro</loc>",
		"<loc>https://blog.example.com/post/terceiro</loc>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("sitemap missing %s", want)
		}
	}
	if strings.Contains(body, "rascunho") {
		t.Error("sitemap lists a draft")
	}

	rec = get(app, "/feed.xml")
	if !strings.Contains(rec.Body.String(), "<title>Segundo</title>") {
		t.Errorf("feed = %s", rec.Body.String())
	}

	rec = get(app, "/robots.txt")
	if !strings.Contains(rec.Body.String(), "Sitemap: https://blog.example.com/sitemap.xml") {
		t.Errorf("robots = %s", rec.Body.String())
	}

	rec = get(app, "/health")
	if rec.Code != http.StatusOK || rec.Header().Get("X-Request-Id") == "" {
		t.Errorf("health = %d %v", rec.Code, rec.Header())
	}
}

func TestNotFoundPage(t *testing.T) {
	app, _ := newTestApp(t)
	rec := get(app, "/no/such/route")
	if rec.Code != http.StatusNotFound || rec.Body.String() != "not found" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestAdminLoginAndPreviewLink(t *testing.T) {
	app, _ := newTestApp(t)

	rec := get(app, "/admin")
	if rec.Body.String() != "login error=false" {
		t.Fatalf("admin = %q", rec.Body.String())
	}
	csrf := cookieNamed(rec, "_csrf")
	if csrf == nil {
		t.Fatal("csrf cookie not set")
	}

	post := func(target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		for _, c := range cookies {
			req.AddCookie(c)
		}
		return serve(app, req)
	}

	if rec := post("/admin/login", url.Values{"password": {"admin-pass"}}); rec.Code != http.StatusForbidden {
		t.Errorf("login without csrf = %d, want 403", rec.Code)
	}

	rec = post("/admin/login", url.Values{"password": {"wrong"}, "_csrf": {csrf.Value}}, csrf)
	if rec.Code != http.StatusUnauthorized || rec.Body.String() != "login error=true" {
		t.Errorf("wrong password = %d %q", rec.Code, rec.Body.String())
	}

	rec = post("/admin/login", url.Values{"password": {"admin-pass"}, "_csrf": {csrf.Value}}, csrf)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login = %d, want 303", rec.Code)
	}
	admin := cookieNamed(rec, adminSessionName)
	if admin == nil {
		t.Fatal("admin cookie not set")
	}

	rec = get(app, "/admin", admin, csrf)
	if got := rec.Body.String(); got != "dashboard drafts=rascunho msg=" {
		t.Errorf("dashboard = %q", got)
	}

	rec = post("/admin/preview", url.Values{"document_id": {"d1"}, "_csrf": {csrf.Value}}, admin, csrf)
	loc := rec.Header().Get("Location")
	if rec.Code != http.StatusSeeOther || !strings.HasPrefix(loc, "/api/preview?") {
		t.Fatalf("admin preview = %d to %q", rec.Code, loc)
	}
	rec = get(app, loc)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/post/rascunho" {
		t.Errorf("issued link = %d to %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestAdminRevalidate(t *testing.T) {
	app, _ := newTestApp(t)
	if _, err := app.Pages.Get(context.Background(), "primeiro"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, state := app.Pages.Lookup("primeiro"); state != PageFresh {
		t.Fatalf("state = %v, want fresh", state)
	}

	rec := get(app, "/admin")
	csrf := cookieNamed(rec, "_csrf")
	post := func(form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/admin/revalidate", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		for _, c := range cookies {
			req.AddCookie(c)
		}
		return serve(app, req)
	}

	rec = post(url.Values{"uid": {"primeiro"}, "_csrf": {csrf.Value}}, csrf)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/admin" {
		t.Fatalf("anonymous revalidate = %d to %q", rec.Code, rec.Header().Get("Location"))
	}
	if _, state := app.Pages.Lookup("primeiro"); state != PageFresh {
		t.Fatalf("anonymous request dropped the page")
	}

	login := httptest.NewRequest(http.MethodPost, "/admin/login",
		strings.NewReader(url.Values{"password": {"admin-pass"}, "_csrf": {csrf.Value}}.Encode()))
	login.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	login.AddCookie(csrf)
	admin := cookieNamed(serve(app, login), adminSessionName)
	if admin == nil {
		t.Fatal("admin cookie not set")
	}

	rec = post(url.Values{"uid": {"primeiro"}, "_csrf": {csrf.Value}}, admin, csrf)
	if rec.Code != http.StatusSeeOther || !strings.HasPrefix(rec.Header().Get("Location"), "/admin?msg=") {
		t.Fatalf("revalidate = %d to %q", rec.Code, rec.Header().Get("Location"))
	}
	if _, state := app.Pages.Lookup("primeiro"); state != PagePending {
		t.Errorf("state after revalidate = %v, want pending", state)
	}
	app.Pages.Wait()
}

func TestCustomRoutes(t *testing.T) {
	s, tokens := setupTestStore(t)
	app := New(SiteConfig{SessionSecret: "secret"}, plainViews(),
		WithContentSource(s),
		WithPreviewTokens(tokens),
		WithStaticDir(t.TempDir()),
		WithCustomRoutes(func(a *App) {
			a.Echo.GET("/about", func(c echo.Context) error {
				return c.String(http.StatusOK, "about "+a.Config.Name)
			})
		}),
	)
	if err := app.Setup(); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer app.Close()
	if rec := get(app, "/about"); rec.Code != http.StatusOK || rec.Body.String() != "about "+app.Config.Name {
		t.Errorf("custom route = %d %q", rec.Code, rec.Body.String())
	}
}

func TestAdminDisabledWithoutPassword(t *testing.T) {
	s, tokens := setupTestStore(t)
	app := New(SiteConfig{SessionSecret: "secret"}, plainViews(), WithContentSource(s), WithPreviewTokens(tokens))
	if err := app.Setup(); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer app.Close()
	if rec := get(app, "/admin"); rec.Code != http.StatusNotFound {
		t.Errorf("admin status = %d, want 404", rec.Code)
	}
}

func TestSetupRequiresSessionSecret(t *testing.T) {
	s, _ := setupTestStore(t)
	app := New(SiteConfig{}, plainViews(), WithContentSource(s))
	if err := app.Setup(); err == nil {
		t.Error("Setup without a session secret should fail")
	}
}

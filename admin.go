package spacetraveling

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

func (a *App) handleAdmin(c echo.Context) error {
	if !IsAdmin(c) {
		return Render(c, a.Views.AdminLogin(false, CsrfToken(c)))
	}
	return a.renderAdminDashboard(c, c.QueryParam("msg"))
}

func (a *App) handleAdminLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	if a.checkPassword(c.FormValue("password")) {
		if err := setAdminSession(c); err != nil {
			return err
		}
		return c.Redirect(http.StatusSeeOther, "/admin")
	}
	a.loginLimiter.Record(ip)
	return RenderStatus(c, http.StatusUnauthorized, a.Views.AdminLogin(true, CsrfToken(c)))
}

// checkPassword prefers the bcrypt hash and falls back to the plain password.
func (a *App) checkPassword(pass string) bool {
	if a.Config.AdminPasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(a.Config.AdminPasswordHash), []byte(pass)) == nil
	}
	if a.Config.AdminPassword == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(pass), []byte(a.Config.AdminPassword)) == 1
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin")
}

// handleAdminPreview issues a preview token for a draft and sends the
// editor through the public preview endpoint.
func (a *App) handleAdminPreview(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin")
	}
	issuer, ok := a.Source.(PreviewIssuer)
	if !ok {
		return c.Redirect(http.StatusSeeOther, "/admin?msg=Preview+links+are+issued+by+the+CMS+for+this+backend.")
	}
	documentID := strings.TrimSpace(c.FormValue("document_id"))
	if documentID == "" {
		return c.Redirect(http.StatusSeeOther, "/admin?msg=Document+id+is+required.")
	}
	token, err := issuer.IssuePreviewToken(documentID)
	if err != nil {
		return err
	}
	log.Info().Str("document_id", documentID).Msg("issued preview token")
	q := url.Values{}
	q.Set("token", token)
	q.Set("documentId", documentID)
	return c.Redirect(http.StatusSeeOther, "/api/preview?"+q.Encode())
}

// handleAdminRevalidate drops cached post pages so the next request
// regenerates them. An empty uid drops every page.
func (a *App) handleAdminRevalidate(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin")
	}
	uid := strings.TrimSpace(c.FormValue("uid"))
	if uid == "" {
		a.Pages.Invalidate()
		log.Info().Msg("invalidated all post pages")
		return c.Redirect(http.StatusSeeOther, "/admin?msg=All+pages+will+be+regenerated.")
	}
	a.Pages.Invalidate(uid)
	log.Info().Str("uid", uid).Msg("invalidated post page")
	q := url.Values{}
	q.Set("msg", "Page "+uid+" will be regenerated.")
	return c.Redirect(http.StatusSeeOther, "/admin?"+q.Encode())
}

func (a *App) renderAdminDashboard(c echo.Context, msg string) error {
	var drafts []PostSummary
	if lister, ok := a.Source.(DraftLister); ok {
		docs, err := lister.ListDrafts(c.Request().Context())
		if err != nil {
			return err
		}
		drafts = make([]PostSummary, len(docs))
		for i, d := range docs {
			drafts[i] = FormatSummary(d)
		}
	} else if msg == "" {
		msg = "Drafts are managed in the CMS for this backend."
	}
	return Render(c, a.Views.AdminDashboard(drafts, msg, CsrfToken(c)))
}

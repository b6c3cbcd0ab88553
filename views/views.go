package views

import (
	"github.com/a-h/templ"

	"github.com/eringen/spacetraveling"
)

// Default returns the built-in views for site.
func Default(site spacetraveling.SiteConfig) spacetraveling.ViewFuncs {
	return spacetraveling.ViewFuncs{
		Home:          Home,
		PostListItems: PostListItems,
		Post:          Post,
		Loading:       Loading,
		AdminLogin: func(showError bool, csrfToken string) templ.Component {
			return AdminLogin(site, showError, csrfToken)
		},
		AdminDashboard: func(drafts []spacetraveling.PostSummary, message, csrfToken string) templ.Component {
			return AdminDashboard(site, drafts, message, csrfToken)
		},
		NotFound: func() templ.Component {
			return NotFound(site)
		},
		ServerError: func() templ.Component {
			return ServerError(site)
		},
	}
}

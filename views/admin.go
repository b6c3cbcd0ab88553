package views

import (
	"bytes"
	"html"

	"github.com/a-h/templ"

	"github.com/eringen/spacetraveling"
)

// AdminLogin renders the admin password form.
func AdminLogin(site spacetraveling.SiteConfig, showError bool, csrfToken string) templ.Component {
	return layout(site, PageMeta{Title: "Admin"}, func(buf *bytes.Buffer) {
		buf.WriteString(`<main class="admin"><h1>Admin</h1>`)
		if showError {
			buf.WriteString(`<p class="error">Senha inválida.</p>`)
		}
		buf.WriteString(`<form method="post" action="/admin/login">`)
		writeCSRF(buf, csrfToken)
		buf.WriteString(`<label>Senha <input type="password" name="password" required autofocus/></label>`)
		buf.WriteString(`<button type="submit">Entrar</button></form></main>`)
	})
}

// AdminDashboard lists unpublished documents with a preview button each.
func AdminDashboard(site spacetraveling.SiteConfig, drafts []spacetraveling.PostSummary, message, csrfToken string) templ.Component {
	return layout(site, PageMeta{Title: "Admin"}, func(buf *bytes.Buffer) {
		buf.WriteString(`<main class="admin"><h1>Rascunhos</h1>`)
		if message != "" {
			buf.WriteString(`<p class="message">` + html.EscapeString(message) + `</p>`)
		}
		if len(drafts) == 0 {
			buf.WriteString(`<p>Nenhum rascunho.</p>`)
		}
		buf.WriteString(`<ul class="drafts">`)
		for _, d := range drafts {
			title := d.Title
			if title == "" {
				title = d.UID
			}
			buf.WriteString(`<li><span>` + html.EscapeString(title) + `</span>`)
			buf.WriteString(`<form method="post" action="/admin/preview">`)
			writeCSRF(buf, csrfToken)
			buf.WriteString(`<input type="hidden" name="document_id" value="` + html.EscapeString(d.ID) + `"/>`)
			buf.WriteString(`<button type="submit">Preview</button></form></li>`)
		}
		buf.WriteString(`</ul>`)
		buf.WriteString(`<h2>Páginas</h2><form method="post" action="/admin/revalidate">`)
		writeCSRF(buf, csrfToken)
		buf.WriteString(`<input type="text" name="uid" placeholder="uid (vazio = todas)"/>`)
		buf.WriteString(`<button type="submit">Regenerar</button></form>`)
		buf.WriteString(`<form method="post" action="/admin/logout">`)
		writeCSRF(buf, csrfToken)
		buf.WriteString(`<button type="submit">Sair</button></form></main>`)
	})
}

func writeCSRF(buf *bytes.Buffer, token string) {
	buf.WriteString(`<input type="hidden" name="_csrf" value="` + html.EscapeString(token) + `"/>`)
}

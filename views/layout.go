// Package views provides the default HTML views for spacetraveling.
package views

import (
	"bytes"
	"context"
	"html"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/eringen/spacetraveling"
)

const htmxSrc = "https://unpkg.com/htmx.org@2.0.4"

// PageMeta carries per-page metadata into the document head.
type PageMeta struct {
	Title       string
	Description string
	URL         string
	JSONLD      string
}

// component adapts a buffer-writing function to templ.Component.
func component(fn func(buf *bytes.Buffer)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var buf bytes.Buffer
		fn(&buf)
		_, err := w.Write(buf.Bytes())
		return err
	})
}

// layout wraps body in the site document.
func layout(site spacetraveling.SiteConfig, meta PageMeta, body func(buf *bytes.Buffer)) templ.Component {
	return component(func(buf *bytes.Buffer) {
		title := site.Name
		if meta.Title != "" {
			title = meta.Title + " | " + site.Name
		}
		description := meta.Description
		if description == "" {
			description = site.Description
		}
		buf.WriteString(`<!DOCTYPE html><html lang="pt-BR"><head><meta charset="utf-8"/>`)
		buf.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1"/>`)
		buf.WriteString("<title>" + html.EscapeString(title) + "</title>")
		if description != "" {
			buf.WriteString(`<meta name="description" content="` + html.EscapeString(description) + `"/>`)
		}
		if meta.URL != "" {
			buf.WriteString(`<link rel="canonical" href="` + html.EscapeString(meta.URL) + `"/>`)
		}
		buf.WriteString(`<link rel="alternate" type="application/rss+xml" href="/feed.xml"/>`)
		if meta.JSONLD != "" {
			buf.WriteString(`<script type="application/ld+json">` + meta.JSONLD + `</script>`)
		}
		buf.WriteString(`<script src="` + htmxSrc + `" defer></script>`)
		buf.WriteString(`</head><body>`)
		writeHeader(buf, site)
		body(buf)
		buf.WriteString(`</body></html>`)
	})
}

func writeHeader(buf *bytes.Buffer, site spacetraveling.SiteConfig) {
	buf.WriteString(`<header class="header"><a href="/" class="logo">`)
	buf.WriteString(html.EscapeString(site.Name))
	buf.WriteString(`<span>.</span></a></header>`)
}

var monthsPT = [...]string{"jan", "fev", "mar", "abr", "mai", "jun", "jul", "ago", "set", "out", "nov", "dez"}

// FormatDate renders a CMS timestamp as "25 mar 2021". Drafts and
// unparsable values yield "".
func FormatDate(ts *string) string {
	if ts == nil {
		return ""
	}
	t, err := spacetraveling.ParseTimestamp(*ts)
	if err != nil {
		return ""
	}
	day := strconv.Itoa(t.Day())
	if t.Day() < 10 {
		day = "0" + day
	}
	return day + " " + monthsPT[t.Month()-1] + " " + strconv.Itoa(t.Year())
}

// FormatEdited renders the "edited" note of a post, or "" when the post was
// never changed after its first publication.
func FormatEdited(published, updated *string) string {
	if published == nil || updated == nil || *published == *updated {
		return ""
	}
	t, err := spacetraveling.ParseTimestamp(*updated)
	if err != nil {
		return ""
	}
	return "* editado em " + FormatDate(updated) + ", às " + t.Format("15:04")
}

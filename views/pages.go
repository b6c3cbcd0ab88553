package views

import (
	"bytes"
	"html"
	"net/url"
	"strconv"

	"github.com/a-h/templ"

	"github.com/eringen/spacetraveling"
	"github.com/eringen/spacetraveling/richtext"
)

// Home renders the listing page with its first page of posts.
func Home(site spacetraveling.SiteConfig, page spacetraveling.PostListPage) templ.Component {
	meta := PageMeta{
		URL:    spacetraveling.BuildURL(site.URL),
		JSONLD: spacetraveling.WebsiteJsonLD(site),
	}
	return layout(site, meta, func(buf *bytes.Buffer) {
		buf.WriteString(`<main class="posts" id="posts">`)
		writePostList(buf, page)
		buf.WriteString(`</main>`)
	})
}

// PostListItems renders the summaries of one listing page followed by the
// "load more" control. It replaces the previous control when fetched by htmx.
func PostListItems(page spacetraveling.PostListPage) templ.Component {
	return component(func(buf *bytes.Buffer) {
		writePostList(buf, page)
	})
}

func writePostList(buf *bytes.Buffer, page spacetraveling.PostListPage) {
	for _, p := range page.Results {
		buf.WriteString(`<a class="post-summary" href="` + html.EscapeString(p.Path()) + `">`)
		buf.WriteString("<h2>" + html.EscapeString(p.Title) + "</h2>")
		buf.WriteString("<p>" + html.EscapeString(p.Subtitle) + "</p>")
		buf.WriteString(`<div class="details">`)
		buf.WriteString(`<span class="date">` + FormatDate(p.PublishedAt) + `</span>`)
		buf.WriteString(`<span class="author">` + html.EscapeString(p.Author) + `</span>`)
		buf.WriteString(`</div></a>`)
	}
	if page.NextCursor != "" {
		href := "/?cursor=" + url.QueryEscape(string(page.NextCursor))
		buf.WriteString(`<a class="load-more" href="` + html.EscapeString(href) + `" hx-get="` + html.EscapeString(href) + `" hx-target="this" hx-swap="outerHTML">`)
		buf.WriteString("Carregar mais posts</a>")
	}
}

// Post renders a post detail page.
func Post(site spacetraveling.SiteConfig, page spacetraveling.PostPage) templ.Component {
	post := page.Post
	meta := PageMeta{
		Title:       post.Title,
		Description: post.Subtitle,
		URL:         spacetraveling.PostURL(site.URL, post.UID),
		JSONLD:      spacetraveling.BlogPostingJsonLD(post, site),
	}
	return layout(site, meta, func(buf *bytes.Buffer) {
		if src := richtext.SafeURL(post.BannerURL); src != "" {
			buf.WriteString(`<div class="banner"><img src="` + src + `" alt=""/></div>`)
		}
		buf.WriteString(`<article class="post">`)
		buf.WriteString("<h1>" + html.EscapeString(post.Title) + "</h1>")
		buf.WriteString(`<div class="details">`)
		if date := FormatDate(post.PublishedAt); date != "" {
			buf.WriteString(`<span class="date">` + date + `</span>`)
		}
		buf.WriteString(`<span class="author">` + html.EscapeString(post.Author) + `</span>`)
		buf.WriteString(`<span class="reading-time">` + strconv.Itoa(page.ReadingTime) + ` min</span>`)
		buf.WriteString(`</div>`)
		if edited := FormatEdited(post.PublishedAt, post.UpdatedAt); edited != "" {
			buf.WriteString(`<p class="edited">` + html.EscapeString(edited) + `</p>`)
		}
		for i, s := range post.Content {
			buf.WriteString(`<section>`)
			buf.WriteString(`<h2 id="` + html.EscapeString(richtext.HeadingID(i+1, s.Heading)) + `">` + html.EscapeString(s.Heading) + `</h2>`)
			richtext.RenderBlocks(buf, s.Body)
			buf.WriteString(`</section>`)
		}
		buf.WriteString(`</article>`)
		writeAdjacency(buf, page.Adjacency)
		if page.Preview {
			buf.WriteString(`<aside class="preview"><a href="/api/exit-preview">Sair do modo Preview</a></aside>`)
		}
	})
}

func writeAdjacency(buf *bytes.Buffer, adj spacetraveling.Adjacency) {
	if adj.Previous == nil && adj.Next == nil {
		return
	}
	buf.WriteString(`<nav class="adjacent">`)
	if p := adj.Previous; p != nil {
		buf.WriteString(`<a class="previous" href="` + html.EscapeString(p.Path()) + `">`)
		buf.WriteString("<span>" + html.EscapeString(p.Title) + "</span><strong>Post anterior</strong></a>")
	}
	if n := adj.Next; n != nil {
		buf.WriteString(`<a class="next" href="` + html.EscapeString(n.Path()) + `">`)
		buf.WriteString("<span>" + html.EscapeString(n.Title) + "</span><strong>Próximo post</strong></a>")
	}
	buf.WriteString(`</nav>`)
}

// Loading renders the placeholder served while a post page is generated.
func Loading(site spacetraveling.SiteConfig) templ.Component {
	return layout(site, PageMeta{}, func(buf *bytes.Buffer) {
		buf.WriteString(`<main class="loading"><p>Carregando...</p></main>`)
	})
}

// NotFound renders the 404 page.
func NotFound(site spacetraveling.SiteConfig) templ.Component {
	return layout(site, PageMeta{Title: "Página não encontrada"}, func(buf *bytes.Buffer) {
		buf.WriteString(`<main class="error"><h1>404</h1><p>Página não encontrada.</p><a href="/">Voltar ao início</a></main>`)
	})
}

// ServerError renders the 500 page.
func ServerError(site spacetraveling.SiteConfig) templ.Component {
	return layout(site, PageMeta{Title: "Erro"}, func(buf *bytes.Buffer) {
		buf.WriteString(`<main class="error"><h1>500</h1><p>Algo deu errado. Tente novamente mais tarde.</p></main>`)
	})
}

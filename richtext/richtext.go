// Package richtext renders CMS rich-text blocks as HTML templ components.
package richtext

import (
	"bytes"
	"context"
	"html"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/eringen/spacetraveling"
)

// RichText returns a templ.Component that renders blocks as HTML.
func RichText(blocks []spacetraveling.TextBlock) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var buf bytes.Buffer
		RenderBlocks(&buf, blocks)
		_, err := w.Write(buf.Bytes())
		return err
	})
}

// RenderBlocks writes the HTML representation of blocks to buf. Consecutive
// list items are wrapped in one list element.
func RenderBlocks(buf *bytes.Buffer, blocks []spacetraveling.TextBlock) {
	inList := false
	inOrderedList := false

	flushList := func() {
		if inList {
			buf.WriteString("</ul>")
			inList = false
		}
	}
	flushOrderedList := func() {
		if inOrderedList {
			buf.WriteString("</ol>")
			inOrderedList = false
		}
	}

	for _, b := range blocks {
		text := FormatSpans(b.Text, b.Spans)
		switch b.Type {
		case "list-item":
			flushOrderedList()
			if !inList {
				buf.WriteString("<ul>")
				inList = true
			}
			buf.WriteString("<li>" + text + "</li>")
		case "o-list-item":
			flushList()
			if !inOrderedList {
				buf.WriteString("<ol>")
				inOrderedList = true
			}
			buf.WriteString("<li>" + text + "</li>")
		case "heading1", "heading2", "heading3", "heading4", "heading5", "heading6":
			flushList()
			flushOrderedList()
			tag := "h" + strings.TrimPrefix(b.Type, "heading")
			buf.WriteString("<" + tag + ">" + text + "</" + tag + ">")
		case "preformatted":
			flushList()
			flushOrderedList()
			buf.WriteString("<pre>" + text + "</pre>")
		default:
			flushList()
			flushOrderedList()
			buf.WriteString("<p>" + text + "</p>")
		}
	}
	flushList()
	flushOrderedList()
}

type spanEdge struct {
	pos   int
	open  bool
	index int
	tag   string
}

// FormatSpans escapes text and wraps the ranges of strong, em and hyperlink
// spans in their tags. Offsets outside the text are clamped; unknown span
// types are ignored.
func FormatSpans(text string, spans []spacetraveling.Span) string {
	runes := []rune(text)
	var edges []spanEdge
	for i, sp := range spans {
		start, end := clamp(sp.Start, len(runes)), clamp(sp.End, len(runes))
		if start >= end {
			continue
		}
		open, closeTag := spanTags(sp)
		if open == "" {
			continue
		}
		edges = append(edges,
			spanEdge{pos: start, open: true, index: i, tag: open},
			spanEdge{pos: end, open: false, index: i, tag: closeTag},
		)
	}
	if len(edges) == 0 {
		return html.EscapeString(text)
	}
	// Closing edges come before opening ones at the same offset, and inner
	// spans close before outer ones.
	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.pos != b.pos {
			return a.pos < b.pos
		}
		if a.open != b.open {
			return !a.open
		}
		if a.open {
			return a.index < b.index
		}
		return a.index > b.index
	})

	var out strings.Builder
	last := 0
	for _, e := range edges {
		out.WriteString(html.EscapeString(string(runes[last:e.pos])))
		out.WriteString(e.tag)
		last = e.pos
	}
	out.WriteString(html.EscapeString(string(runes[last:])))
	return out.String()
}

func spanTags(sp spacetraveling.Span) (open, closeTag string) {
	switch sp.Type {
	case "strong":
		return "<strong>", "</strong>"
	case "em":
		return "<em>", "</em>"
	case "hyperlink":
		if sp.Data == nil {
			return "", ""
		}
		href := SafeURL(sp.Data.URL)
		if href == "" {
			return "", ""
		}
		attrs := `href="` + href + `"`
		if sp.Data.Target == "_blank" {
			attrs += ` target="_blank" rel="noopener noreferrer"`
		}
		return "<a " + attrs + ">", "</a>"
	}
	return "", ""
}

func clamp(n, max int) int {
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}

// HeadingID returns an anchor id for the n-th section heading.
func HeadingID(n int, heading string) string {
	slug := spacetraveling.Slugify(heading)
	if slug == "" {
		return "section-" + strconv.Itoa(n)
	}
	return slug
}

// SafeURL validates and sanitizes a URL for use in HTML attributes.
func SafeURL(raw string) string {
	val := strings.TrimSpace(html.UnescapeString(raw))
	if val == "" {
		return ""
	}
	if strings.HasPrefix(val, "/") || strings.HasPrefix(val, "#") {
		return html.EscapeString(val)
	}
	parsed, err := url.Parse(val)
	if err != nil || parsed.Scheme == "" {
		return ""
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https", "mailto", "tel":
		return html.EscapeString(val)
	default:
		return ""
	}
}

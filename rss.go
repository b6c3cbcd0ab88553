package spacetraveling

import (
	"encoding/xml"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	atomNS = "http://www.w3.org/2005/Atom"
	dcNS   = "http://purl.org/dc/elements/1.1/"
)

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	AtomNS  string     `xml:"xmlns:atom,attr"`
	DCNS    string     `xml:"xmlns:dc,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string      `xml:"title"`
	Link          string      `xml:"link"`
	Description   string      `xml:"description"`
	Language      string      `xml:"language"`
	LastBuildDate string      `xml:"lastBuildDate,omitempty"`
	TTL           int         `xml:"ttl,omitempty"`
	Self          rssAtomLink `xml:"atom:link"`
	Entries       []rssEntry  `xml:"item"`
}

type rssAtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssGUID struct {
	Value       string `xml:",chardata"`
	IsPermaLink bool   `xml:"isPermaLink,attr"`
}

// rssEntry uses dc:creator for the author: RSS <author> must be an email.
type rssEntry struct {
	Title   string  `xml:"title"`
	Link    string  `xml:"link"`
	Summary string  `xml:"description,omitempty"`
	Creator string  `xml:"dc:creator,omitempty"`
	PubDate string  `xml:"pubDate,omitempty"`
	GUID    rssGUID `xml:"guid"`
}

// buildFeed assembles the RSS 2.0 document for posts, newest first. The
// channel ttl follows the page revalidation interval.
func buildFeed(cfg SiteConfig, posts []PostSummary) rssFeed {
	ch := rssChannel{
		Title:       cfg.Name,
		Link:        BuildURL(cfg.URL),
		Description: cfg.Description,
		Language:    "pt-BR",
		TTL:         int(cfg.Revalidate / time.Minute),
		Self:        rssAtomLink{Href: BuildURL(cfg.URL, "feed.xml"), Rel: "self", Type: "application/rss+xml"},
		Entries:     make([]rssEntry, 0, len(posts)),
	}
	var newest time.Time
	for _, p := range posts {
		link := PostURL(cfg.URL, p.UID)
		entry := rssEntry{
			Title:   p.Title,
			Link:    link,
			Summary: p.Subtitle,
			Creator: p.Author,
			GUID:    rssGUID{Value: p.ID, IsPermaLink: false},
		}
		if at, ok := summaryTime(p); ok {
			entry.PubDate = at.Format(time.RFC1123Z)
			if at.After(newest) {
				newest = at
			}
		}
		ch.Entries = append(ch.Entries, entry)
	}
	if !newest.IsZero() {
		ch.LastBuildDate = newest.Format(time.RFC1123Z)
	}
	return rssFeed{Version: "2.0", AtomNS: atomNS, DCNS: dcNS, Channel: ch}
}

func summaryTime(p PostSummary) (time.Time, bool) {
	if p.PublishedAt == nil {
		return time.Time{}, false
	}
	t, err := ParseTimestamp(*p.PublishedAt)
	return t, err == nil
}

// writeXML sends v with the XML declaration.
func writeXML(c echo.Context, contentType string, v any) error {
	out, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, contentType, append([]byte(xml.Header), out...))
}

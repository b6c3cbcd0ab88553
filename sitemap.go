package spacetraveling

import "encoding/xml"

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	Entries []urlSetItem `xml:"url"`
}

type urlSetItem struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
}

// buildSitemap lists the home page and every published post. The home page
// lastmod is the newest publication date.
func buildSitemap(cfg SiteConfig, posts []PostSummary) urlSet {
	home := urlSetItem{Loc: BuildURL(cfg.URL), ChangeFreq: "daily"}
	set := urlSet{XMLNS: sitemapNS, Entries: []urlSetItem{home}}
	newest := ""
	for _, p := range posts {
		item := urlSetItem{Loc: PostURL(cfg.URL, p.UID), ChangeFreq: "monthly"}
		if at, ok := summaryTime(p); ok {
			item.LastMod = at.UTC().Format("2006-01-02")
			if item.LastMod > newest {
				newest = item.LastMod
			}
		}
		set.Entries = append(set.Entries, item)
	}
	set.Entries[0].LastMod = newest
	return set
}

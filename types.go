package spacetraveling

import (
	"encoding/json"
	"time"
)

// Post is the canonical content entity rendered on a post page.
type Post struct {
	ID          string    `json:"id"`
	UID         string    `json:"uid"`
	PublishedAt *string   `json:"first_publication_date"`
	UpdatedAt   *string   `json:"last_publication_date"`
	Title       string    `json:"title"`
	Subtitle    string    `json:"subtitle"`
	Author      string    `json:"author"`
	BannerURL   string    `json:"banner_url"`
	Content     []Section `json:"content"`
}

// Section is a titled group of text blocks inside a post.
type Section struct {
	Heading string      `json:"heading"`
	Body    []TextBlock `json:"body"`
}

// TextBlock is one rich-text block (usually a paragraph).
type TextBlock struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Spans []Span `json:"spans"`
}

// Span marks a formatted range inside a TextBlock. Offsets count runes.
type Span struct {
	Start int       `json:"start"`
	End   int       `json:"end"`
	Type  string    `json:"type"`
	Data  *SpanData `json:"data,omitempty"`
}

// SpanData carries the target of hyperlink spans.
type SpanData struct {
	URL    string `json:"url,omitempty"`
	Target string `json:"target,omitempty"`
}

// PublishedTime parses PublishedAt. ok is false for drafts.
func (p Post) PublishedTime() (t time.Time, ok bool) {
	if p.PublishedAt == nil {
		return time.Time{}, false
	}
	t, err := ParseTimestamp(*p.PublishedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Path returns the detail page path of the post.
func (p Post) Path() string {
	return PostPath(p.UID)
}

// PostSummary is the listing projection of a Post.
type PostSummary struct {
	ID          string  `json:"id"`
	UID         string  `json:"uid"`
	PublishedAt *string `json:"first_publication_date"`
	Title       string  `json:"title"`
	Subtitle    string  `json:"subtitle"`
	Author      string  `json:"author"`
}

// Path returns the detail page path of the summarised post.
func (s PostSummary) Path() string {
	return PostPath(s.UID)
}

// Cursor is an opaque continuation token. The empty cursor marks the end of a listing.
type Cursor string

// PostListPage is one page of the post listing.
type PostListPage struct {
	Results    []PostSummary `json:"results"`
	NextCursor Cursor        `json:"-"`
}

// PostLink is the short form of an adjacent post.
type PostLink struct {
	UID   string `json:"uid"`
	Title string `json:"title"`
}

// Path returns the detail page path of the linked post.
func (l PostLink) Path() string {
	return PostPath(l.UID)
}

// Adjacency holds the neighbours of a post in publication order.
// A nil field means there is no such post.
type Adjacency struct {
	Previous *PostLink `json:"previous"`
	Next     *PostLink `json:"next"`
}

// PreviewRequest is the input of a single preview resolution.
type PreviewRequest struct {
	Token      string
	DocumentID string
}

// PostPage is everything a post detail page needs.
type PostPage struct {
	Post        Post      `json:"post"`
	Adjacency   Adjacency `json:"adjacency"`
	ReadingTime int       `json:"reading_time"`
	Preview     bool      `json:"preview"`
}

// PageResult is the outcome of building a post page. Exactly one of Page or
// Redirect is set.
type PageResult struct {
	Page       *PostPage     `json:"page,omitempty"`
	Redirect   string        `json:"redirect,omitempty"`
	Revalidate time.Duration `json:"-"`
}

// Found reports whether the result carries a renderable page.
func (r PageResult) Found() bool {
	return r.Page != nil
}

type postListPageJSON struct {
	Results  []PostSummary `json:"results"`
	NextPage *string       `json:"next_page"`
}

// MarshalJSON writes the page with next_page set to null at the end of a listing.
func (p PostListPage) MarshalJSON() ([]byte, error) {
	out := postListPageJSON{Results: p.Results}
	if out.Results == nil {
		out.Results = []PostSummary{}
	}
	if p.NextCursor != "" {
		next := string(p.NextCursor)
		out.NextPage = &next
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the wire form produced by MarshalJSON.
func (p *PostListPage) UnmarshalJSON(data []byte) error {
	var in postListPageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p.Results = in.Results
	p.NextCursor = ""
	if in.NextPage != nil {
		p.NextCursor = Cursor(*in.NextPage)
	}
	return nil
}

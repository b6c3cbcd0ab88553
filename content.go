package spacetraveling

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// PostType is the CMS document type of blog posts.
const PostType = "posts"

var (
	// ErrNotFound is returned when a requested document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidCursor is returned for cursors that cannot be decoded.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// ContentSource is the query contract of the external content store.
type ContentSource interface {
	// Query returns one page of documents matching every predicate.
	Query(ctx context.Context, predicates []Predicate, opts QueryOptions) (RawPage, error)
	// QueryCursor resumes the query that produced cursor, reading with ref
	// (the caller's preview ref, empty for published content).
	QueryCursor(ctx context.Context, cursor Cursor, ref string) (RawPage, error)
	// GetByUID returns the document of docType with the given uid, or ErrNotFound.
	GetByUID(ctx context.Context, docType, uid string, opts QueryOptions) (RawDocument, error)
	// ResolvePreview validates token against documentID and returns the
	// destination computed by resolve. It returns "" when the token does
	// not resolve.
	ResolvePreview(ctx context.Context, token, documentID string, resolve LinkResolver, defaultPath string) (string, error)
}

// DocumentWriter is implemented by content stores that accept writes (seeding).
type DocumentWriter interface {
	SaveDocument(ctx context.Context, doc RawDocument) error
	DeleteDocument(ctx context.Context, id string) error
}

// DraftLister is implemented by content stores that can list unpublished documents.
type DraftLister interface {
	ListDrafts(ctx context.Context) ([]RawDocument, error)
}

// PreviewIssuer is implemented by content stores that mint their own preview tokens.
type PreviewIssuer interface {
	IssuePreviewToken(documentID string) (string, error)
}

// RawDocument is a document as delivered by the content source.
type RawDocument struct {
	ID                   string      `json:"id"`
	UID                  string      `json:"uid"`
	Type                 string      `json:"type"`
	FirstPublicationDate *string     `json:"first_publication_date"`
	LastPublicationDate  *string     `json:"last_publication_date"`
	Data                 RawPostData `json:"data"`
}

// RawPostData is the custom-type payload of a post document.
type RawPostData struct {
	Title    string       `json:"title,omitempty"`
	Subtitle string       `json:"subtitle,omitempty"`
	Author   string       `json:"author,omitempty"`
	Banner   *RawImage    `json:"banner,omitempty"`
	Content  []RawSection `json:"content,omitempty"`
}

// RawImage is an image field.
type RawImage struct {
	URL string `json:"url"`
}

// RawSection is one group of the content repeatable zone.
type RawSection struct {
	Heading string      `json:"heading"`
	Body    []TextBlock `json:"body"`
}

// Link returns the fields a LinkResolver needs.
func (d RawDocument) Link() DocumentLink {
	return DocumentLink{ID: d.ID, UID: d.UID, Type: d.Type}
}

// RawPage is one page of query results.
type RawPage struct {
	Results      []RawDocument
	Page         int
	TotalPages   int
	TotalResults int
	NextCursor   Cursor
}

// PredicateKind names a supported query predicate.
type PredicateKind string

const (
	PredicateType            PredicateKind = "type"
	PredicateID              PredicateKind = "id"
	PredicateUID             PredicateKind = "uid"
	PredicatePublishedBefore PredicateKind = "published_before"
	PredicatePublishedAfter  PredicateKind = "published_after"
)

// Predicate is one filter of a content query.
type Predicate struct {
	Kind  PredicateKind `json:"kind"`
	Value string        `json:"value,omitempty"`
	Time  time.Time     `json:"time,omitempty"`
}

// DocumentType matches documents of type t.
func DocumentType(t string) Predicate {
	return Predicate{Kind: PredicateType, Value: t}
}

// DocumentID matches the document with the given id.
func DocumentID(id string) Predicate {
	return Predicate{Kind: PredicateID, Value: id}
}

// DocumentUID matches documents with the given uid. Combine with DocumentType.
func DocumentUID(uid string) Predicate {
	return Predicate{Kind: PredicateUID, Value: uid}
}

// PublishedBefore matches documents first published strictly before t.
func PublishedBefore(t time.Time) Predicate {
	return Predicate{Kind: PredicatePublishedBefore, Time: t.UTC()}
}

// PublishedAfter matches documents first published strictly after t.
func PublishedAfter(t time.Time) Predicate {
	return Predicate{Kind: PredicatePublishedAfter, Time: t.UTC()}
}

// OrderField is a sortable document field.
type OrderField string

const (
	OrderPublishedAt OrderField = "document.first_publication_date"
	OrderID          OrderField = "document.id"
)

// Ordering sorts query results by one field.
type Ordering struct {
	Field OrderField `json:"field"`
	Desc  bool       `json:"desc,omitempty"`
}

// NewestFirst orders by publication date descending with the id as tie-break.
var NewestFirst = []Ordering{{Field: OrderPublishedAt, Desc: true}, {Field: OrderID, Desc: true}}

// OldestFirst orders by publication date ascending with the id as tie-break.
var OldestFirst = []Ordering{{Field: OrderPublishedAt}, {Field: OrderID}}

const (
	defaultQueryPageSize = 20
	maxQueryPageSize     = 100
)

// QueryOptions controls paging, ordering and projection of a query.
type QueryOptions struct {
	PageSize  int        `json:"page_size,omitempty"`
	Page      int        `json:"page,omitempty"`
	Orderings []Ordering `json:"orderings,omitempty"`
	// Fetch restricts data fields, e.g. "posts.title". Empty means all fields.
	Fetch []string `json:"fetch,omitempty"`
	// Ref is a preview ref. Empty reads published documents only. It is
	// never serialised.
	Ref string `json:"-"`
}

// Normalize applies paging defaults and bounds.
func (o QueryOptions) Normalize() QueryOptions {
	if o.PageSize <= 0 {
		o.PageSize = defaultQueryPageSize
	}
	if o.PageSize > maxQueryPageSize {
		o.PageSize = maxQueryPageSize
	}
	if o.Page < 1 {
		o.Page = 1
	}
	return o
}

// TotalPages returns the number of pages needed for total results.
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// ProjectFields keeps only the data fields listed in fetch ("type.field").
// Document metadata is always kept.
func ProjectFields(doc RawDocument, fetch []string) RawDocument {
	if len(fetch) == 0 {
		return doc
	}
	keep := make(map[string]bool, len(fetch))
	for _, f := range fetch {
		typ, field, ok := strings.Cut(f, ".")
		if !ok || typ != doc.Type {
			continue
		}
		keep[field] = true
	}
	var data RawPostData
	if keep["title"] {
		data.Title = doc.Data.Title
	}
	if keep["subtitle"] {
		data.Subtitle = doc.Data.Subtitle
	}
	if keep["author"] {
		data.Author = doc.Data.Author
	}
	if keep["banner"] {
		data.Banner = doc.Data.Banner
	}
	if keep["content"] {
		data.Content = doc.Data.Content
	}
	doc.Data = data
	return doc
}

// DocumentLink is the part of a document a LinkResolver looks at.
type DocumentLink struct {
	ID   string
	UID  string
	Type string
}

// LinkResolver maps a document to a site path.
type LinkResolver func(doc DocumentLink) string

// DefaultLinkResolver sends posts to their detail page and everything else home.
func DefaultLinkResolver(doc DocumentLink) string {
	if doc.Type == PostType && doc.UID != "" {
		return PostPath(doc.UID)
	}
	return "/"
}

// PostPath returns the detail page path for uid.
func PostPath(uid string) string {
	return "/post/" + url.PathEscape(uid)
}

const timestampLayout = "2006-01-02T15:04:05-0700"

// ParseTimestamp parses CMS timestamps ("2021-03-25T19:25:28+0000") and RFC 3339.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(timestampLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// FormatTimestamp renders t in the CMS timestamp layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

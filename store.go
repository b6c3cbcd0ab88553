package spacetraveling

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Store is a ContentSource backed by a SQLite database of CMS-shaped documents.
type Store struct {
	db      *sql.DB
	tokens  *PreviewTokens
	cursors *CursorCodec
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and runs schema migrations. tokens verifies preview refs;
// with a nil tokens drafts are never visible. cursors signs listing cursors;
// nil uses a per-process key.
func NewStore(path string, tokens *PreviewTokens, cursors *CursorCodec) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets readers proceed during seed writes; busy_timeout makes writers
	// wait instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA cache_size=-8000;
		PRAGMA mmap_size=268435456;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	if cursors == nil {
		cursors = NewCursorCodec("")
	}
	s := &Store{db: db, tokens: tokens, cursors: cursors}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    uid TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL,
    first_publication_date TEXT,
    last_publication_date TEXT,
    published_at INTEGER,
    data TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS documents_type_uid ON documents(type, uid) WHERE uid != '';
CREATE INDEX IF NOT EXISTS documents_type_published ON documents(type, published_at, id);
`)
	return err
}

const documentColumns = `id, uid, type, first_publication_date, last_publication_date, data`

// Query returns one page of documents matching every predicate.
func (s *Store) Query(ctx context.Context, predicates []Predicate, opts QueryOptions) (RawPage, error) {
	opts = opts.Normalize()
	where, args, err := s.whereClause(predicates, opts.Ref)
	if err != nil {
		return RawPage{}, err
	}
	orderBy, err := orderClause(opts.Orderings)
	if err != nil {
		return RawPage{}, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE `+where, args...).Scan(&total); err != nil {
		return RawPage{}, fmt.Errorf("count documents: %w", err)
	}

	offset := (opts.Page - 1) * opts.PageSize
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE `+where+` ORDER BY `+orderBy+` LIMIT ? OFFSET ?`,
		append(args, opts.PageSize, offset)...)
	if err != nil {
		return RawPage{}, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]RawDocument, 0, opts.PageSize)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return RawPage{}, err
		}
		docs = append(docs, ProjectFields(doc, opts.Fetch))
	}
	if err := rows.Err(); err != nil {
		return RawPage{}, err
	}

	return RawPage{
		Results:      docs,
		Page:         opts.Page,
		TotalPages:   TotalPages(total, opts.PageSize),
		TotalResults: total,
		NextCursor:   s.cursors.NextQuery(predicates, opts, total),
	}, nil
}

// QueryCursor resumes the query encoded in cursor with the caller's ref.
func (s *Store) QueryCursor(ctx context.Context, cursor Cursor, ref string) (RawPage, error) {
	predicates, opts, err := s.cursors.DecodeQuery(cursor)
	if err != nil {
		return RawPage{}, err
	}
	opts.Ref = ref
	return s.Query(ctx, predicates, opts)
}

// ValidRef reports whether ref is a live preview ref for this store.
func (s *Store) ValidRef(_ context.Context, ref string) bool {
	return s.tokens.Valid(ref)
}

// GetByUID returns the document of docType with uid, or ErrNotFound.
func (s *Store) GetByUID(ctx context.Context, docType, uid string, opts QueryOptions) (RawDocument, error) {
	opts.PageSize = 1
	opts.Page = 1
	page, err := s.Query(ctx, []Predicate{DocumentType(docType), DocumentUID(uid)}, opts)
	if err != nil {
		return RawDocument{}, err
	}
	if len(page.Results) == 0 {
		return RawDocument{}, ErrNotFound
	}
	return page.Results[0], nil
}

// ResolvePreview verifies token as a ref issued for documentID.
func (s *Store) ResolvePreview(ctx context.Context, token, documentID string, resolve LinkResolver, defaultPath string) (string, error) {
	return ResolveTokenPreview(ctx, s.tokens, token, documentID, s.getByID, resolve, defaultPath)
}

// IssuePreviewToken returns a preview ref for documentID.
func (s *Store) IssuePreviewToken(documentID string) (string, error) {
	if s.tokens == nil {
		return "", errors.New("preview tokens are not configured")
	}
	return s.tokens.Issue(documentID)
}

// getByID returns a document by id regardless of publication status.
func (s *Store) getByID(ctx context.Context, id string) (RawDocument, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RawDocument{}, ErrNotFound
	}
	return doc, err
}

// ListDrafts returns every document that has never been published.
func (s *Store) ListDrafts(ctx context.Context) ([]RawDocument, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE published_at IS NULL ORDER BY type, uid, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []RawDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// SaveDocument upserts a document by id.
func (s *Store) SaveDocument(ctx context.Context, doc RawDocument) error {
	if doc.ID == "" || doc.Type == "" {
		return errors.New("save document: id and type are required")
	}
	var publishedAt sql.NullInt64
	if doc.FirstPublicationDate != nil {
		t, err := ParseTimestamp(*doc.FirstPublicationDate)
		if err != nil {
			return fmt.Errorf("save document %s: %w", doc.ID, err)
		}
		publishedAt = sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
	}
	data, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO documents (id, uid, type, first_publication_date, last_publication_date, published_at, data)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    uid = excluded.uid,
    type = excluded.type,
    first_publication_date = excluded.first_publication_date,
    last_publication_date = excluded.last_publication_date,
    published_at = excluded.published_at,
    data = excluded.data`,
		doc.ID, doc.UID, doc.Type,
		nullString(doc.FirstPublicationDate), nullString(doc.LastPublicationDate),
		publishedAt, string(data))
	return err
}

// DeleteDocument removes a document by id.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

func (s *Store) whereClause(predicates []Predicate, ref string) (string, []any, error) {
	var conds []string
	var args []any
	if !s.tokens.Valid(ref) {
		conds = append(conds, "published_at IS NOT NULL")
	}
	for _, p := range predicates {
		switch p.Kind {
		case PredicateType:
			conds = append(conds, "type = ?")
			args = append(args, p.Value)
		case PredicateID:
			conds = append(conds, "id = ?")
			args = append(args, p.Value)
		case PredicateUID:
			conds = append(conds, "uid = ?")
			args = append(args, p.Value)
		case PredicatePublishedBefore:
			conds = append(conds, "published_at < ?")
			args = append(args, p.Time.UnixMilli())
		case PredicatePublishedAfter:
			conds = append(conds, "published_at > ?")
			args = append(args, p.Time.UnixMilli())
		default:
			return "", nil, fmt.Errorf("unsupported predicate %q", p.Kind)
		}
	}
	if len(conds) == 0 {
		return "1 = 1", nil, nil
	}
	return strings.Join(conds, " AND "), args, nil
}

func orderClause(orderings []Ordering) (string, error) {
	if len(orderings) == 0 {
		orderings = NewestFirst
	}
	parts := make([]string, 0, len(orderings))
	for _, o := range orderings {
		var col string
		switch o.Field {
		case OrderPublishedAt:
			col = "published_at"
		case OrderID:
			col = "id"
		default:
			return "", fmt.Errorf("unsupported ordering %q", o.Field)
		}
		if o.Desc {
			col += " DESC"
		}
		parts = append(parts, col)
	}
	return strings.Join(parts, ", "), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (RawDocument, error) {
	var doc RawDocument
	var first, last sql.NullString
	var data string
	if err := r.Scan(&doc.ID, &doc.UID, &doc.Type, &first, &last, &data); err != nil {
		return RawDocument{}, err
	}
	if first.Valid {
		doc.FirstPublicationDate = &first.String
	}
	if last.Valid {
		doc.LastPublicationDate = &last.String
	}
	if err := json.Unmarshal([]byte(data), &doc.Data); err != nil {
		return RawDocument{}, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return doc, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

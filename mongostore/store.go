// Package mongostore is a ContentSource backed by a MongoDB collection of
// CMS-shaped documents.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/eringen/spacetraveling"
)

const collectionName = "documents"

// Store queries documents stored in MongoDB.
type Store struct {
	client  *mongo.Client
	coll    *mongo.Collection
	tokens  *spacetraveling.PreviewTokens
	cursors *spacetraveling.CursorCodec
}

// document is the stored form of a spacetraveling.RawDocument. published_at
// is null for drafts.
type document struct {
	ID                   string                     `bson:"_id"`
	UID                  string                     `bson:"uid"`
	Type                 string                     `bson:"type"`
	FirstPublicationDate *string                    `bson:"first_publication_date"`
	LastPublicationDate  *string                    `bson:"last_publication_date"`
	PublishedAt          *time.Time                 `bson:"published_at"`
	Data                 spacetraveling.RawPostData `bson:"data"`
}

// Connect opens a client for uri, checks the connection and ensures indexes.
// A nil cursors signs listing cursors with a per-process key.
func Connect(ctx context.Context, uri, database string, tokens *spacetraveling.PreviewTokens, cursors *spacetraveling.CursorCodec) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	if cursors == nil {
		cursors = spacetraveling.NewCursorCodec("")
	}
	s := &Store{
		client:  client,
		coll:    client.Database(database).Collection(collectionName),
		tokens:  tokens,
		cursors: cursors,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	log.Info().Str("database", database).Msg("connected to MongoDB")
	return s, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "type", Value: 1}, {Key: "uid", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "uid", Value: bson.D{{Key: "$gt", Value: ""}}}}),
		},
		{
			Keys: bson.D{{Key: "type", Value: 1}, {Key: "published_at", Value: -1}, {Key: "_id", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// Query returns one page of documents matching every predicate.
func (s *Store) Query(ctx context.Context, predicates []spacetraveling.Predicate, opts spacetraveling.QueryOptions) (spacetraveling.RawPage, error) {
	opts = opts.Normalize()
	filter, err := buildFilter(predicates, s.tokens.Valid(opts.Ref))
	if err != nil {
		return spacetraveling.RawPage{}, err
	}
	sort, err := buildSort(opts.Orderings)
	if err != nil {
		return spacetraveling.RawPage{}, err
	}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return spacetraveling.RawPage{}, fmt.Errorf("count documents: %w", err)
	}

	findOpts := options.Find().
		SetSort(sort).
		SetSkip(int64((opts.Page - 1) * opts.PageSize)).
		SetLimit(int64(opts.PageSize))
	cursor, err := s.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return spacetraveling.RawPage{}, fmt.Errorf("find documents: %w", err)
	}
	var stored []document
	if err := cursor.All(ctx, &stored); err != nil {
		return spacetraveling.RawPage{}, fmt.Errorf("decode documents: %w", err)
	}

	docs := make([]spacetraveling.RawDocument, len(stored))
	for i, d := range stored {
		docs[i] = spacetraveling.ProjectFields(fromStored(d), opts.Fetch)
	}
	return spacetraveling.RawPage{
		Results:      docs,
		Page:         opts.Page,
		TotalPages:   spacetraveling.TotalPages(int(total), opts.PageSize),
		TotalResults: int(total),
		NextCursor:   s.cursors.NextQuery(predicates, opts, int(total)),
	}, nil
}

// QueryCursor resumes the query encoded in cursor with the caller's ref.
func (s *Store) QueryCursor(ctx context.Context, cursor spacetraveling.Cursor, ref string) (spacetraveling.RawPage, error) {
	predicates, opts, err := s.cursors.DecodeQuery(cursor)
	if err != nil {
		return spacetraveling.RawPage{}, err
	}
	opts.Ref = ref
	return s.Query(ctx, predicates, opts)
}

// ValidRef reports whether ref is a live preview ref for this store.
func (s *Store) ValidRef(_ context.Context, ref string) bool {
	return s.tokens.Valid(ref)
}

// GetByUID returns the document of docType with uid, or ErrNotFound.
func (s *Store) GetByUID(ctx context.Context, docType, uid string, opts spacetraveling.QueryOptions) (spacetraveling.RawDocument, error) {
	opts.PageSize = 1
	opts.Page = 1
	page, err := s.Query(ctx, []spacetraveling.Predicate{
		spacetraveling.DocumentType(docType),
		spacetraveling.DocumentUID(uid),
	}, opts)
	if err != nil {
		return spacetraveling.RawDocument{}, err
	}
	if len(page.Results) == 0 {
		return spacetraveling.RawDocument{}, spacetraveling.ErrNotFound
	}
	return page.Results[0], nil
}

// ResolvePreview verifies token as a ref issued for documentID.
func (s *Store) ResolvePreview(ctx context.Context, token, documentID string, resolve spacetraveling.LinkResolver, defaultPath string) (string, error) {
	return spacetraveling.ResolveTokenPreview(ctx, s.tokens, token, documentID, s.getByID, resolve, defaultPath)
}

// IssuePreviewToken returns a preview ref for documentID.
func (s *Store) IssuePreviewToken(documentID string) (string, error) {
	if s.tokens == nil {
		return "", errors.New("preview tokens are not configured")
	}
	return s.tokens.Issue(documentID)
}

func (s *Store) getByID(ctx context.Context, id string) (spacetraveling.RawDocument, error) {
	var d document
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return spacetraveling.RawDocument{}, spacetraveling.ErrNotFound
	}
	if err != nil {
		return spacetraveling.RawDocument{}, err
	}
	return fromStored(d), nil
}

// ListDrafts returns every document that has never been published.
func (s *Store) ListDrafts(ctx context.Context) ([]spacetraveling.RawDocument, error) {
	cursor, err := s.coll.Find(ctx,
		bson.D{{Key: "published_at", Value: nil}},
		options.Find().SetSort(bson.D{{Key: "type", Value: 1}, {Key: "uid", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	var stored []document
	if err := cursor.All(ctx, &stored); err != nil {
		return nil, err
	}
	docs := make([]spacetraveling.RawDocument, len(stored))
	for i, d := range stored {
		docs[i] = fromStored(d)
	}
	return docs, nil
}

// SaveDocument upserts a document by id.
func (s *Store) SaveDocument(ctx context.Context, doc spacetraveling.RawDocument) error {
	d, err := toStored(doc)
	if err != nil {
		return err
	}
	_, err = s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: d.ID}}, d, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save document %s: %w", d.ID, err)
	}
	return nil
}

// DeleteDocument removes a document by id.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	return err
}

func toStored(doc spacetraveling.RawDocument) (document, error) {
	if doc.ID == "" || doc.Type == "" {
		return document{}, errors.New("save document: id and type are required")
	}
	d := document{
		ID:                   doc.ID,
		UID:                  doc.UID,
		Type:                 doc.Type,
		FirstPublicationDate: doc.FirstPublicationDate,
		LastPublicationDate:  doc.LastPublicationDate,
		Data:                 doc.Data,
	}
	if doc.FirstPublicationDate != nil {
		t, err := spacetraveling.ParseTimestamp(*doc.FirstPublicationDate)
		if err != nil {
			return document{}, fmt.Errorf("save document %s: %w", doc.ID, err)
		}
		d.PublishedAt = &t
	}
	return d, nil
}

func fromStored(d document) spacetraveling.RawDocument {
	return spacetraveling.RawDocument{
		ID:                   d.ID,
		UID:                  d.UID,
		Type:                 d.Type,
		FirstPublicationDate: d.FirstPublicationDate,
		LastPublicationDate:  d.LastPublicationDate,
		Data:                 d.Data,
	}
}

// buildFilter translates predicates into a query filter. Unless drafts are
// included, documents without a publication time are excluded.
func buildFilter(predicates []spacetraveling.Predicate, includeDrafts bool) (bson.D, error) {
	filter := bson.D{}
	published := bson.D{}
	if !includeDrafts {
		published = append(published, bson.E{Key: "$ne", Value: nil})
	}
	for _, p := range predicates {
		switch p.Kind {
		case spacetraveling.PredicateType:
			filter = append(filter, bson.E{Key: "type", Value: p.Value})
		case spacetraveling.PredicateID:
			filter = append(filter, bson.E{Key: "_id", Value: p.Value})
		case spacetraveling.PredicateUID:
			filter = append(filter, bson.E{Key: "uid", Value: p.Value})
		case spacetraveling.PredicatePublishedBefore:
			published = append(published, bson.E{Key: "$lt", Value: p.Time})
		case spacetraveling.PredicatePublishedAfter:
			published = append(published, bson.E{Key: "$gt", Value: p.Time})
		default:
			return nil, fmt.Errorf("unsupported predicate %q", p.Kind)
		}
	}
	if len(published) > 0 {
		filter = append(filter, bson.E{Key: "published_at", Value: published})
	}
	return filter, nil
}

func buildSort(orderings []spacetraveling.Ordering) (bson.D, error) {
	if len(orderings) == 0 {
		orderings = spacetraveling.NewestFirst
	}
	sort := make(bson.D, 0, len(orderings))
	for _, o := range orderings {
		var key string
		switch o.Field {
		case spacetraveling.OrderPublishedAt:
			key = "published_at"
		case spacetraveling.OrderID:
			key = "_id"
		default:
			return nil, fmt.Errorf("unsupported ordering %q", o.Field)
		}
		dir := 1
		if o.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: key, Value: dir})
	}
	return sort, nil
}

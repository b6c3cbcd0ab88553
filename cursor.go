package spacetraveling

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// cursorIssuer keeps query cursors and preview refs apart even if both were
// signed with related keys.
const cursorIssuer = "spacetraveling/cursor"

// CursorCodec seals the query state behind an opaque cursor. Cursors are
// HS256 JWTs, so a client can replay a cursor but cannot alter the query it
// resumes. Preview refs are never part of a cursor: the reader's session
// supplies the ref when the cursor is resumed.
type CursorCodec struct {
	key []byte
}

// NewCursorCodec derives the signing key from secret. An empty secret gets a
// random key, which makes cursors valid for the life of the process only.
func NewCursorCodec(secret string) *CursorCodec {
	key := make([]byte, 32)
	if secret == "" {
		rand.Read(key)
		return &CursorCodec{key: key}
	}
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(cursorIssuer))
	if _, err := io.ReadFull(r, key); err != nil {
		panic(fmt.Sprintf("derive cursor key: %v", err))
	}
	return &CursorCodec{key: key}
}

type cursorClaims struct {
	Query json.RawMessage `json:"q"`
	jwt.RegisteredClaims
}

type queryCursor struct {
	Predicates []Predicate  `json:"p"`
	Options    QueryOptions `json:"o"`
}

// Seal signs v into a cursor.
func (c *CursorCodec) Seal(v any) (Cursor, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	claims := cursorClaims{
		Query:            payload,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: cursorIssuer},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign cursor: %w", err)
	}
	return Cursor(signed), nil
}

// Open verifies cursor and decodes its payload into v. Cursors that were not
// sealed with this codec's key yield ErrInvalidCursor.
func (c *CursorCodec) Open(cursor Cursor, v any) error {
	if cursor == "" {
		return ErrInvalidCursor
	}
	var claims cursorClaims
	_, err := jwt.ParseWithClaims(string(cursor), &claims,
		func(t *jwt.Token) (interface{}, error) {
			return c.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cursorIssuer),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if err := json.Unmarshal(claims.Query, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return nil
}

// EncodeQuery packs a query into a cursor. opts.Ref is dropped.
func (c *CursorCodec) EncodeQuery(predicates []Predicate, opts QueryOptions) Cursor {
	opts.Ref = ""
	cursor, err := c.Seal(queryCursor{Predicates: predicates, Options: opts})
	if err != nil {
		return ""
	}
	return cursor
}

// DecodeQuery unpacks a cursor produced by EncodeQuery. The returned options
// carry no preview ref.
func (c *CursorCodec) DecodeQuery(cursor Cursor) ([]Predicate, QueryOptions, error) {
	var qc queryCursor
	if err := c.Open(cursor, &qc); err != nil {
		return nil, QueryOptions{}, err
	}
	qc.Options.Ref = ""
	return qc.Predicates, qc.Options.Normalize(), nil
}

// NextQuery returns the cursor of the page after opts, or "" when opts is
// the last page of total results.
func (c *CursorCodec) NextQuery(predicates []Predicate, opts QueryOptions, total int) Cursor {
	opts = opts.Normalize()
	if opts.Page*opts.PageSize >= total {
		return ""
	}
	opts.Page++
	return c.EncodeQuery(predicates, opts)
}

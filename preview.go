package spacetraveling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidPreviewToken is returned when a preview token does not resolve
// to a destination.
var ErrInvalidPreviewToken = errors.New("invalid preview token")

// PreviewResolver turns a preview request into the site path the editor
// should land on.
type PreviewResolver struct {
	source      ContentSource
	resolve     LinkResolver
	defaultPath string
}

// NewPreviewResolver creates a PreviewResolver using DefaultLinkResolver.
func NewPreviewResolver(source ContentSource) *PreviewResolver {
	return &PreviewResolver{source: source, resolve: DefaultLinkResolver, defaultPath: "/"}
}

// Resolve validates req against the content source and returns the
// destination path. Unresolvable requests yield ErrInvalidPreviewToken.
func (r *PreviewResolver) Resolve(ctx context.Context, req PreviewRequest) (string, error) {
	if req.Token == "" || req.DocumentID == "" {
		return "", ErrInvalidPreviewToken
	}
	dest, err := r.source.ResolvePreview(ctx, req.Token, req.DocumentID, r.resolve, r.defaultPath)
	if err != nil {
		return "", fmt.Errorf("resolve preview: %w", err)
	}
	if dest == "" {
		return "", ErrInvalidPreviewToken
	}
	return dest, nil
}

// RefValidator is implemented by content sources that can tell whether a
// preview ref is still live.
type RefValidator interface {
	ValidRef(ctx context.Context, ref string) bool
}

// PreviewActive reports whether ref opens a preview on source. Sources that
// cannot check refs accept any non-empty ref.
func PreviewActive(ctx context.Context, source ContentSource, ref string) bool {
	if ref == "" {
		return false
	}
	if v, ok := source.(RefValidator); ok {
		return v.ValidRef(ctx, ref)
	}
	return true
}

const previewIssuer = "spacetraveling"

// PreviewTokens issues and verifies signed preview refs for content stores
// hosted by this service. A ref names the document it was issued for and
// expires after the configured TTL.
type PreviewTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewPreviewTokens creates a PreviewTokens signing with secret.
func NewPreviewTokens(secret string, ttl time.Duration) *PreviewTokens {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PreviewTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a preview ref for documentID.
func (p *PreviewTokens) Issue(documentID string) (string, error) {
	if documentID == "" {
		return "", errors.New("issue preview token: empty document id")
	}
	now := p.now()
	claims := jwt.RegisteredClaims{
		Issuer:    previewIssuer,
		Subject:   documentID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign preview token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of token and returns the document
// id it was issued for.
func (p *PreviewTokens) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (interface{}, error) {
			return p.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(previewIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPreviewToken, err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidPreviewToken
	}
	return claims.Subject, nil
}

// Valid reports whether ref is a live preview ref.
func (p *PreviewTokens) Valid(ref string) bool {
	if p == nil || ref == "" {
		return false
	}
	_, err := p.Verify(ref)
	return err == nil
}

// ResolveTokenPreview implements ContentSource.ResolvePreview for stores
// that verify their own refs. get loads a document by id including drafts.
func ResolveTokenPreview(
	ctx context.Context,
	tokens *PreviewTokens,
	token, documentID string,
	get func(ctx context.Context, id string) (RawDocument, error),
	resolve LinkResolver,
	defaultPath string,
) (string, error) {
	if tokens == nil {
		return "", nil
	}
	subject, err := tokens.Verify(token)
	if err != nil || subject != documentID {
		return "", nil
	}
	doc, err := get(ctx, documentID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if dest := resolve(doc.Link()); dest != "" {
		return dest, nil
	}
	return defaultPath, nil
}

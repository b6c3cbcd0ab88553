package spacetraveling

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// Content backends selectable with CONTENT_BACKEND.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
	BackendCMS    = "cms"
)

// SiteConfig holds all configuration for a spacetraveling site.
type SiteConfig struct {
	Name        string // Site name (default "spacetraveling")
	URL         string // Canonical URL (default "http://localhost:3000")
	Description string // Site description for RSS and meta tags

	Addr         string // Listen address (default ":3000")
	DatabasePath string // SQLite path (default "data/content.db")

	ContentBackend string // sqlite, mongo or cms (default sqlite)
	CMSEndpoint    string // CMS API endpoint, e.g. https://repo.cdn.prismic.io/api/v2
	CMSAccessToken string // CMS access token, optional
	MongoURI       string // MongoDB connection URI
	MongoDatabase  string // MongoDB database name (default "spacetraveling")

	SessionSecret     string        // Required: session signing secret
	PreviewSecret     string        // Preview ref signing secret (default SessionSecret)
	PreviewTokenTTL   time.Duration // Lifetime of issued preview refs (default 1h)
	AdminPassword     string        // Plain admin password, optional
	AdminPasswordHash string        // bcrypt admin password hash, preferred over AdminPassword
	CookieSecure      bool          // Set true for HTTPS

	PageSize       int           // Listing page size (default 2)
	PrerenderLimit int           // Posts built at startup (default 2)
	Revalidate     time.Duration // Post page freshness (default 12h)
	PageCacheSize  int           // Post pages kept in memory (default 1000)
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "spacetraveling"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/content.db"
	}
	if c.ContentBackend == "" {
		c.ContentBackend = BackendSQLite
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = "spacetraveling"
	}
	if c.PreviewSecret == "" {
		c.PreviewSecret = c.SessionSecret
	}
	if c.PreviewTokenTTL == 0 {
		c.PreviewTokenTTL = time.Hour
	}
	if c.PageSize <= 0 {
		c.PageSize = 2
	}
	if c.PrerenderLimit <= 0 {
		c.PrerenderLimit = DefaultPrerenderLimit
	}
	if c.Revalidate <= 0 {
		c.Revalidate = DefaultRevalidate
	}
	if c.PageCacheSize <= 0 {
		c.PageCacheSize = DefaultPageCacheSize
	}
}

// AdminEnabled reports whether an admin credential is configured.
func (c SiteConfig) AdminEnabled() bool {
	return c.AdminPassword != "" || c.AdminPasswordHash != ""
}

// LoadConfig reads a SiteConfig from the environment and applies defaults.
func LoadConfig() (SiteConfig, error) {
	cfg := SiteConfig{
		Name:              os.Getenv("SITE_NAME"),
		URL:               os.Getenv("SITE_URL"),
		Description:       os.Getenv("SITE_DESCRIPTION"),
		Addr:              os.Getenv("ADDR"),
		DatabasePath:      os.Getenv("DATABASE_PATH"),
		ContentBackend:    os.Getenv("CONTENT_BACKEND"),
		CMSEndpoint:       os.Getenv("CMS_API_ENDPOINT"),
		CMSAccessToken:    os.Getenv("CMS_ACCESS_TOKEN"),
		MongoURI:          os.Getenv("MONGODB_URI"),
		MongoDatabase:     os.Getenv("MONGODB_DATABASE"),
		SessionSecret:     os.Getenv("SESSION_SECRET"),
		PreviewSecret:     os.Getenv("PREVIEW_SECRET"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
	}

	var err error
	if cfg.CookieSecure, err = envBool("COOKIE_SECURE"); err != nil {
		return SiteConfig{}, err
	}
	if cfg.PreviewTokenTTL, err = envDuration("PREVIEW_TOKEN_TTL"); err != nil {
		return SiteConfig{}, err
	}
	if cfg.Revalidate, err = envDuration("REVALIDATE_INTERVAL"); err != nil {
		return SiteConfig{}, err
	}
	if cfg.PageSize, err = envInt("PAGE_SIZE"); err != nil {
		return SiteConfig{}, err
	}
	if cfg.PrerenderLimit, err = envInt("PRERENDER_LIMIT"); err != nil {
		return SiteConfig{}, err
	}
	if cfg.PageCacheSize, err = envInt("PAGE_CACHE_SIZE"); err != nil {
		return SiteConfig{}, err
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return SiteConfig{}, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c SiteConfig) Validate() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("spacetraveling: SESSION_SECRET is required")
	}
	switch c.ContentBackend {
	case BackendSQLite:
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("spacetraveling: MONGODB_URI is required for the mongo backend")
		}
	case BackendCMS:
		if c.CMSEndpoint == "" {
			return fmt.Errorf("spacetraveling: CMS_API_ENDPOINT is required for the cms backend")
		}
	default:
		return fmt.Errorf("spacetraveling: unknown CONTENT_BACKEND %q", c.ContentBackend)
	}
	return nil
}

func envBool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("spacetraveling: %s: %w", key, err)
	}
	return b, nil
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("spacetraveling: %s: %w", key, err)
	}
	return n, nil
}

// envDuration accepts Go durations ("12h") or plain seconds ("43200").
func envDuration(key string) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("spacetraveling: %s: %w", key, err)
	}
	return d, nil
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Option configures additional App behavior.
type Option func(*App)

// WithContentSource sets the content source instead of opening one from the
// configured backend. Sources implementing io.Closer are closed by App.Close.
func WithContentSource(src ContentSource) Option {
	return func(a *App) {
		a.Source = src
		if c, ok := src.(io.Closer); ok {
			a.closers = append(a.closers, c)
		}
	}
}

// WithPreviewTokens sets the signer of preview refs, shared with a content
// source opened by the caller.
func WithPreviewTokens(t *PreviewTokens) Option {
	return func(a *App) {
		a.tokens = t
	}
}

// WithCustomRoutes registers additional routes on the Echo instance.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir sets the directory for static assets (default "public").
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

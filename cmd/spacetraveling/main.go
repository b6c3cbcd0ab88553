package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/eringen/spacetraveling"
	"github.com/eringen/spacetraveling/cms"
	"github.com/eringen/spacetraveling/mongostore"
	"github.com/eringen/spacetraveling/scaffold"
	"github.com/eringen/spacetraveling/views"
)

// version is set at build time via ldflags.
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()
	setupLogging()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe()
	case "seed":
		path := ""
		if len(os.Args) > 2 {
			path = os.Args[2]
		}
		err = runSeed(path)
	case "export":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: spacetraveling export <site-url>")
			os.Exit(1)
		}
		err = runExport(os.Args[2])
	case "version":
		fmt.Printf("spacetraveling %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("command failed")
	}
}

func setupLogging() {
	level, err := zerolog.ParseLevel(spacetraveling.EnvOr("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func printUsage() {
	fmt.Println(`spacetraveling - a blog served from an external content store

Usage:
  spacetraveling <command> [arguments]

Commands:
  serve            Start the HTTP server
  seed [file]      Load documents into the local store (bundled samples by default)
  export <url>     Print every post summary of a running site as JSON lines
  version          Print the version
  help             Show this help message

Configuration is read from the environment (and .env):
  SESSION_SECRET, CONTENT_BACKEND (sqlite|mongo|cms), DATABASE_PATH,
  MONGODB_URI, MONGODB_DATABASE, CMS_API_ENDPOINT, CMS_ACCESS_TOKEN,
  PREVIEW_SECRET, PREVIEW_TOKEN_TTL, REVALIDATE_INTERVAL, PAGE_SIZE,
  PRERENDER_LIMIT, PAGE_CACHE_SIZE, STATIC_DIR, ADMIN_PASSWORD, ADMIN_PASSWORD_HASH, COOKIE_SECURE,
  SITE_NAME, SITE_URL, SITE_DESCRIPTION, ADDR, LOG_LEVEL, LOG_FORMAT`)
}

// openSource opens the configured content backend. The sqlite backend is
// left to App.Setup unless the caller needs the store itself.
func openSource(ctx context.Context, cfg spacetraveling.SiteConfig, tokens *spacetraveling.PreviewTokens, forceLocal bool) (spacetraveling.ContentSource, error) {
	cursors := spacetraveling.NewCursorCodec(cfg.SessionSecret)
	switch cfg.ContentBackend {
	case spacetraveling.BackendCMS:
		return cms.NewClient(cfg.CMSEndpoint, cfg.CMSAccessToken, cursors), nil
	case spacetraveling.BackendMongo:
		return mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, tokens, cursors)
	default:
		if !forceLocal {
			return nil, nil
		}
		return spacetraveling.NewStore(cfg.DatabasePath, tokens, cursors)
	}
}

func runServe() error {
	cfg, err := spacetraveling.LoadConfig()
	if err != nil {
		return err
	}

	tokens := spacetraveling.NewPreviewTokens(cfg.PreviewSecret, cfg.PreviewTokenTTL)
	opts := []spacetraveling.Option{
		spacetraveling.WithPreviewTokens(tokens),
		spacetraveling.WithStaticDir(spacetraveling.EnvOr("STATIC_DIR", "public")),
	}
	src, err := openSource(context.Background(), cfg, tokens, false)
	if err != nil {
		return err
	}
	if src != nil {
		opts = append(opts, spacetraveling.WithContentSource(src))
	}
	app := spacetraveling.New(cfg, views.Default(cfg), opts...)
	defer func() {
		if err := app.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close app")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func runSeed(path string) error {
	cfg, err := spacetraveling.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.ContentBackend == spacetraveling.BackendCMS {
		return errors.New("seed: the cms backend is read-only")
	}

	var docs []spacetraveling.RawDocument
	if path == "" {
		docs, err = scaffold.SampleDocuments()
	} else {
		var b []byte
		if b, err = os.ReadFile(path); err == nil {
			docs, err = scaffold.ParseDocuments(b)
		}
	}
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	ctx := context.Background()
	tokens := spacetraveling.NewPreviewTokens(cfg.PreviewSecret, cfg.PreviewTokenTTL)
	src, err := openSource(ctx, cfg, tokens, true)
	if err != nil {
		return err
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}
	w, ok := src.(spacetraveling.DocumentWriter)
	if !ok {
		return fmt.Errorf("seed: backend %q does not accept writes", cfg.ContentBackend)
	}
	for _, d := range docs {
		if err := w.SaveDocument(ctx, d); err != nil {
			return err
		}
	}
	log.Info().Int("documents", len(docs)).Str("backend", cfg.ContentBackend).Msg("seeded content")
	return nil
}

func runExport(siteURL string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fetcher := spacetraveling.NewHTTPPageFetcher(siteURL)
	first, err := fetcher.FirstPage(ctx)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	posts, err := spacetraveling.NewPager(fetcher, first).LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	for _, p := range posts {
		if err := enc.Encode(p); err != nil {
			return err
		}
	}
	log.Info().Int("posts", len(posts)).Str("site", siteURL).Msg("exported listing")
	return nil
}

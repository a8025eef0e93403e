// Package app wires configuration, artifacts and the HTTP server together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/newscheck/internal/article"
	"github.com/hyperifyio/newscheck/internal/cache"
	"github.com/hyperifyio/newscheck/internal/extract"
	"github.com/hyperifyio/newscheck/internal/fetch"
	"github.com/hyperifyio/newscheck/internal/model"
	"github.com/hyperifyio/newscheck/internal/predict"
	"github.com/hyperifyio/newscheck/internal/robots"
	"github.com/hyperifyio/newscheck/internal/server"
	"github.com/hyperifyio/newscheck/internal/tokenize"
)

// App owns the loaded artifacts and the request pipeline. Everything it holds
// is read-only after New, so one App serves all requests.
type App struct {
	cfg        Config
	tokenizer  *tokenize.Tokenizer
	model      *model.Model
	httpCache  *cache.HTTPCache
	// httpClient is shared by the page fetcher and the robots gate.
	httpClient *http.Client
	pipeline   *predict.Pipeline
	engine     *gin.Engine
}

// ErrArtifactMismatch is returned when the tokenizer, model and configured
// sequence length do not agree.
var ErrArtifactMismatch = errors.New("artifact mismatch")

// New validates cfg, loads the tokenizer and model and builds the pipeline.
// Missing or malformed artifacts fail here rather than at the first request.
func New(cfg Config) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	tok, err := tokenize.Load(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	m, err := model.Load(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if n := m.InputLength(); n > 0 && n != cfg.SequenceMaxLen {
		return nil, fmt.Errorf("%w: model expects sequences of %d, configured maxlen is %d", ErrArtifactMismatch, n, cfg.SequenceMaxLen)
	}
	if tv, mv := tok.VocabularySize(), m.VocabularySize(); tv > mv {
		return nil, fmt.Errorf("%w: tokenizer emits ids up to %d, model embedding has %d rows", ErrArtifactMismatch, tv-1, mv)
	}
	log.Info().
		Str("model", cfg.ModelPath).
		Str("tokenizer", cfg.TokenizerPath).
		Strs("layers", m.Layers()).
		Int("vocabulary", tok.VocabularySize()).
		Int("maxlen", cfg.SequenceMaxLen).
		Msg("artifacts loaded")

	a := &App{cfg: cfg, tokenizer: tok, model: m}
	if cfg.CacheDir != "" {
		a.httpCache = openCache(cfg)
	}

	padding, _ := tokenize.ParseSide(cfg.Padding)
	truncating, _ := tokenize.ParseSide(cfg.Truncating)
	seq := tokenize.NewSequencer(tok, tokenize.PadOptions{MaxLen: cfg.SequenceMaxLen, Padding: padding, Truncating: truncating})

	httpClient := newFetchHTTPClient(cfg.FetchTimeout)
	a.httpClient = httpClient
	policy := fetch.HostPolicy{
		Allow:             cfg.DomainAllowlist,
		Deny:              cfg.DomainDenylist,
		AllowPrivateHosts: cfg.AllowPrivateHosts,
	}
	fetcher := &fetch.Client{
		HTTPClient:        httpClient,
		UserAgent:         cfg.FetchUserAgent,
		MaxAttempts:       cfg.FetchMaxAttempts,
		PerRequestTimeout: cfg.FetchTimeout,
		Cache:             a.httpCache,
		MaxConcurrent:     cfg.FetchMaxConcurrent,
		Policy:            policy,
	}
	var body extract.Extractor = extract.Readability{}
	if len(cfg.ExtractSelectors) > 0 {
		body = extract.Selector{Selectors: cfg.ExtractSelectors, Next: body}
	}
	articles := article.NewExtractor(fetcher, body)
	if cfg.FetchRespectRobots {
		articles.WithGate(&robots.Manager{
			HTTPClient: httpClient,
			Cache:      a.httpCache,
			UserAgent:  cfg.FetchUserAgent,
			Policy:     policy,
		})
	}
	a.pipeline = predict.New(articles, seq, m)

	engine, err := server.New(a.pipeline, server.Options{TemplatesDir: cfg.TemplatesDir, MaxRequestBytes: cfg.MaxRequestBytes})
	if err != nil {
		return nil, fmt.Errorf("build server: %w", err)
	}
	a.engine = engine
	return a, nil
}

// openCache applies the cache invalidation controls and returns the cache.
// Maintenance failures are logged and do not prevent startup.
func openCache(cfg Config) *cache.HTTPCache {
	if cfg.CacheClear {
		if err := cache.ClearDir(cfg.CacheDir); err != nil {
			log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
		}
	}
	if cfg.CacheMaxAge > 0 {
		n, err := cache.PurgeByAge(cfg.CacheDir, cfg.CacheMaxAge)
		if err != nil {
			log.Warn().Err(err).Msg("cache purge failed")
		} else if n > 0 {
			log.Info().Int("removed", n).Dur("maxAge", cfg.CacheMaxAge).Msg("purged stale cache entries")
		}
	}
	if cfg.CacheMaxBytes > 0 || cfg.CacheMaxEntries > 0 {
		n, err := cache.EnforceLimits(cfg.CacheDir, cfg.CacheMaxBytes, cfg.CacheMaxEntries)
		if err != nil {
			log.Warn().Err(err).Msg("cache limit enforcement failed")
		} else if n > 0 {
			log.Info().Int("removed", n).Msg("evicted cache entries over limit")
		}
	}
	return &cache.HTTPCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
}

// Handler returns the HTTP handler serving the page and the API.
func (a *App) Handler() http.Handler { return a.engine }

// Classify runs one request through the pipeline without HTTP.
func (a *App) Classify(ctx context.Context, req predict.Request) (predict.Outcome, error) {
	return a.pipeline.Run(ctx, req)
}

// Close drops idle keep-alive connections held by the fetch client.
func (a *App) Close() {
	if a.httpClient != nil {
		a.httpClient.CloseIdleConnections()
	}
}

// Run listens on the configured address and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then drains in-flight requests for
// up to the configured shutdown timeout.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Str("version", BuildVersion).Msg("listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := a.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	log.Info().Dur("timeout", timeout).Msg("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Describe summarizes the loaded artifacts for logs and the CLI.
func (a *App) Describe() string {
	return fmt.Sprintf("model=%s layers=[%s] vocabulary=%d maxlen=%d",
		a.cfg.ModelPath, strings.Join(a.model.Layers(), " "), a.tokenizer.VocabularySize(), a.cfg.SequenceMaxLen)
}

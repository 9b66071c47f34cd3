// Package api serves the chapters HTTP API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/chapters-api/pkg/cache"
	"github.com/Sternrassler/chapters-api/pkg/chapters"
	"github.com/Sternrassler/chapters-api/pkg/metrics"
	"github.com/Sternrassler/chapters-api/pkg/ratelimit"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Config holds HTTP server settings.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// AdminToken authorizes uploads. Empty disables uploads.
	AdminToken string `yaml:"admin_token"`

	// MaxUploadBytes bounds the multipart upload body.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that sets them.
	TrustProxy bool `yaml:"trust_proxy"`

	// QueryTimeout bounds the store queries behind one list request.
	QueryTimeout time.Duration `yaml:"query_timeout"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxUploadBytes:  10 << 20,
		QueryTimeout:    10 * time.Second,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Deps are the collaborators the server is built from.
type Deps struct {
	Store    chapters.Store
	Importer *chapters.Importer

	// Cache may be nil, in which case every read goes to the store.
	Cache *cache.Manager

	Limiter *ratelimit.Limiter
}

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the chapters API.
type Server struct {
	store    chapters.Store
	importer *chapters.Importer
	cache    *cache.Manager
	limiter  *ratelimit.Limiter
	config   Config
	logger   zerolog.Logger

	group singleflight.Group

	// writes counts completed uploads. A list load that observes a change
	// while it ran does not populate the cache.
	writes atomic.Uint64
}

// NewServer creates the API server.
func NewServer(deps Deps, cfg Config, logger zerolog.Logger) *Server {
	if deps.Store == nil {
		panic("chapter store cannot be nil")
	}
	if deps.Importer == nil {
		deps.Importer = chapters.NewImporter(deps.Store, chapters.DefaultImportConfig(), logger)
	}
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.AdminToken == "" {
		logger.Warn().Msg("No admin token configured, uploads are disabled")
	}

	return &Server{
		store:    deps.Store,
		importer: deps.Importer,
		cache:    deps.Cache,
		limiter:  deps.Limiter,
		config:   cfg,
		logger:   logger,
	}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	if s.config.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Instrument)
	r.Use(requestLogger(s.logger)...)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware())
		}

		r.Get("/", s.root)

		r.Route("/api/v1/chapters", func(r chi.Router) {
			r.With(CacheAside(s.cache)).Get("/", s.listChapters)
			r.Get("/{id}", s.getChapter)
			r.With(RequireAdmin(s.config.AdminToken)).Post("/", s.uploadChapters)
		})
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Routes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

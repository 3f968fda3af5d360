// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects the store, services,
// handlers and middleware, decides which URL maps to which handler, and
// starts and stops the HTTP server.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config ─► OpenStore ─► repository.Store (sqlite.DB or postgres.DB)
//	                                  │
//	              service.AuthService ◄┤► service.EntryService
//	                     │                       │
//	          handler.AuthHandler      handler.EntryHandler
//
// Everything is assembled in New, the composition root. Handlers never see
// the store; services never see HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/journal/internal/auth"
	"github.com/sakif/journal/internal/config"
	"github.com/sakif/journal/internal/export"
	"github.com/sakif/journal/internal/handler"
	"github.com/sakif/journal/internal/metrics"
	"github.com/sakif/journal/internal/middleware"
	"github.com/sakif/journal/internal/repository"
	postgresRepo "github.com/sakif/journal/internal/repository/postgres"
	sqliteRepo "github.com/sakif/journal/internal/repository/sqlite"
	"github.com/sakif/journal/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store. Start closes it after the HTTP server has
// drained, so in-flight requests never see a closed database.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	store   repository.Store
	metrics *metrics.Metrics
	limiter *middleware.RateLimiter
}

// OpenStore opens the backend DatabaseURL selects and brings its schema up
// to date.
//
// IMPORT ALIAS:
// repository/sqlite and repository/postgres are imported as sqliteRepo and
// postgresRepo so they do not read like the driver packages.
func OpenStore(ctx context.Context, cfg config.Config) (repository.Store, error) {
	// Each branch returns its own nil so a failed open never yields a non-nil
	// interface holding a nil pointer.
	switch cfg.Backend() {
	case config.BackendPostgres:
		db, err := postgresRepo.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		path := cfg.SQLitePath()
		if path != ":memory:" {
			// like `mkdir -p`; 0755 = owner rwx, others r-x
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(ctx, path)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}

// New opens the store described by cfg and builds the server around it.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Backend(), err)
	}

	s, err := NewWithStore(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

// NewWithStore builds the server around an already opened store. The server
// takes ownership of store and closes it on shutdown.
func NewWithStore(cfg config.Config, store repository.Store, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		metrics: metrics.New(),
	}

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                           → store ping
//	GET    /metrics                           → Prometheus
//	POST   /api/register   (alias /api/signup) → create account      [rate limited]
//	POST   /api/login                         → password login       [rate limited]
//	GET    /auth/github/login                 → start OAuth          [if configured]
//	GET    /auth/github/callback              → finish OAuth         [if configured]
//	GET    /api/me                            → current user         [bearer]
//	GET    /api/entries                       → list / search        [bearer]
//	POST   /api/entries                       → create               [bearer]
//	GET    /api/entries/calendar              → per-day counts       [bearer]
//	GET    /api/entries/export.pdf            → PDF of the list      [bearer]
//	GET    /api/entries/{id}                  → read                 [bearer]
//	PUT    /api/entries/{id}                  → replace              [bearer]
//	DELETE /api/entries/{id}                  → delete               [bearer]
//	GET    /api/entries/{id}/export.pdf       → PDF of one entry     [bearer]
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added:
//  1. RequestID : unique ID per request, echoed in logs and error logs
//  2. RealIP    : client IP from X-Forwarded-For, used by the rate limiter
//  3. Logger    : one structured line per request
//  4. Instrument: Prometheus request metrics
//  5. Recoverer : a panic becomes a 500 instead of killing the process
//  6. CORS      : the browser app is served from a different origin
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(s.metrics.Instrument)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "Location"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// === Auth stack ===
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(s.config.BcryptCost)

	// A nil *GitHubProvider stored in the interface would not compare equal
	// to nil, so the interface variable is only assigned when configured.
	var github handler.GitHubAuthenticator
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHub.ClientID, s.config.GitHub.ClientSecret, s.config.GitHubCallbackURL())
	}

	// === Services and handlers ===
	authService := service.NewAuthService(s.store, tokens, passwords, s.logger, s.metrics)
	entryService := service.NewEntryService(s.store, s.logger, s.metrics)

	authHandler := handler.NewAuthHandler(authService, github, s.config.AppURL, s.logger)
	entryHandler := handler.NewEntryHandler(entryService, export.NewPDFRenderer(), s.logger)
	healthHandler := handler.NewHealthHandler(s.store, s.config.Backend(), s.logger)

	s.limiter = middleware.NewRateLimiter(s.config.AuthRateLimit, s.config.AuthRateBurst,
		middleware.WithRejectHandler(handler.RateLimited),
		middleware.WithRejectHook(s.metrics.RateLimited),
	)
	requireAuth := auth.RequireAuth(tokens, handler.ErrorWriter(s.logger))

	// === Routes ===
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	if authHandler.GitHubEnabled() {
		s.router.Route("/auth/github", func(r chi.Router) {
			r.Get("/login", authHandler.HandleGitHubLogin)
			r.Get("/callback", authHandler.HandleGitHubCallback)
		})
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(20 * time.Second))

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Handler)
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/signup", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", authHandler.HandleMe)

			r.Route("/entries", func(r chi.Router) {
				r.Get("/", entryHandler.HandleList)
				r.Post("/", entryHandler.HandleCreate)
				r.Get("/calendar", entryHandler.HandleCalendar)
				r.Get("/export.pdf", entryHandler.HandleExport)
				r.Get("/{id}", entryHandler.HandleGet)
				r.Put("/{id}", entryHandler.HandleUpdate)
				r.Delete("/{id}", entryHandler.HandleDelete)
				r.Get("/{id}/export.pdf", entryHandler.HandleExportEntry)
			})
		})
	})

	return nil
}

// Start starts the HTTP server and blocks until it stops.
//
// GRACEFUL SHUTDOWN:
// On SIGINT/SIGTERM:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the store (flushes the SQLite WAL, releases the file lock)
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	defer s.store.Close()

	sweeperDone := make(chan struct{})
	defer close(sweeperDone)
	s.limiter.StartSweeper(time.Minute, sweeperDone)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // PDF exports of a long journal take a moment
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("store", s.config.Backend()),
			slog.Bool("github", s.config.GitHubEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Package server is the composition root of the HTTP side: it builds the
// services from their dependencies, mounts the handlers on a chi router and
// runs the http.Server with graceful shutdown.
//
// Handlers never see repositories and services never see HTTP; this package
// is the only place where both are in scope.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/pisure/internal/auth"
	"github.com/sakif/pisure/internal/authz"
	"github.com/sakif/pisure/internal/events"
	"github.com/sakif/pisure/internal/handler"
	"github.com/sakif/pisure/internal/metrics"
	"github.com/sakif/pisure/internal/middleware"
	"github.com/sakif/pisure/internal/model"
	sqliteRepo "github.com/sakif/pisure/internal/repository/sqlite"
	"github.com/sakif/pisure/internal/service"
	"github.com/sakif/pisure/internal/storage"
)

// Config holds the settings the router and http.Server need.
type Config struct {
	Port           int
	CORSOrigins    []string
	SecureCookies  bool
	MaxUploadBytes int64
}

// Deps are the long-lived clients built by main. The server owns DB and
// Publisher from New on and closes them when Start returns.
type Deps struct {
	DB        *sqliteRepo.DB
	Store     storage.Store
	Publisher events.Publisher
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService
	Notifier  *auth.Notifier
	Policy    authz.Policy
	GitHub    *auth.GitHubProvider // optional
}

type Server struct {
	router *chi.Mux
	config Config
	deps   Deps
	logger *slog.Logger

	unsubscribe func()
}

// New wires services and handlers and sets up the routes.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.DB == nil || deps.Store == nil || deps.Publisher == nil || deps.Tokens == nil ||
		deps.Passwords == nil || deps.Notifier == nil || deps.Policy == nil {
		return nil, errors.New("server: missing dependency")
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	s.unsubscribe = deps.Notifier.Subscribe(s.onSessionChange)
	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// onSessionChange logs sign-ins and sign-outs and counts them.
func (s *Server) onSessionChange(session model.Session) {
	if session.Authenticated() {
		metrics.SessionEvents.WithLabelValues("sign_in").Inc()
		s.logger.Debug("session started", slog.String("userID", session.UserID))
		return
	}
	metrics.SessionEvents.WithLabelValues("sign_out").Inc()
	s.logger.Debug("session ended")
}

// setupRoutes configures middleware and routes.
//
// ROUTES:
//
//	POST   /auth/signup | /auth/login | /auth/logout
//	GET    /auth/github/login | /auth/github/callback
//	GET    /api/me                         session
//	GET    /api/assets | /api/assets/search | /api/assets/{id}
//	POST   /api/assets/{id}/download
//	POST   /api/assets                     session
//	GET    /api/profiles/{username}
//	PUT    /api/profiles/me                session
//	GET    /api/admin/assets/pending       Moderate
//	POST   /api/admin/assets/{id}/approve  Moderate
//	DELETE /api/admin/assets/{id}          Moderate
//	GET    /media/*                        local storage only
//	GET    /metrics
//
// MIDDLEWARE ORDER MATTERS: RequestID must run before Logger so every log
// line carries the id, and Recoverer sits inside Logger so a panic is still
// logged as a 500.
func (s *Server) setupRoutes() {
	d := s.deps

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Metrics)
	// Without configured origins the API is same-origin only; cors would
	// otherwise default to "*".
	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// === Services ===
	moderation := service.NewModeration(d.DB, d.Store, d.Policy, d.Publisher, s.logger)
	uploader := service.NewUploader(d.Store, moderation, d.Policy, s.config.MaxUploadBytes, s.logger)
	catalog := service.NewCatalog(d.DB, d.DB, d.Store, s.logger)
	accounts := service.NewAuthService(d.DB, d.DB, d.Tokens, d.Passwords, d.Notifier, d.Policy, s.logger)
	profiles := service.NewProfileService(d.DB, s.logger)

	// === Handlers ===
	authHandler := handler.NewAuthHandler(accounts, d.GitHub, d.Tokens.TTL(), s.config.SecureCookies, s.logger)
	assetHandler := handler.NewAssetHandler(catalog, moderation, s.logger)
	uploadHandler := handler.NewUploadHandler(uploader, s.config.MaxUploadBytes, s.logger)
	adminHandler := handler.NewAdminHandler(moderation, s.logger)
	profileHandler := handler.NewProfileHandler(catalog, profiles, s.logger)
	healthHandler := handler.NewHealthHandler(d.DB, s.logger)

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	// Blobs of the local store are served by the app itself; MinIO serves
	// its own.
	if local, ok := d.Store.(*storage.Local); ok {
		mediaHandler := handler.NewMediaHandler(catalog, local.Root(), s.logger)
		s.router.Get(storage.MediaPrefix+"*", mediaHandler.HandleMedia)
	}

	resolver := auth.NewSessionResolver(d.Tokens, d.DB)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(resolver, s.logger))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.HandleSignup)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		})

		r.Route("/api", func(r chi.Router) {
			r.Get("/assets", assetHandler.HandleLatest)
			r.Get("/assets/search", assetHandler.HandleSearch)
			r.Get("/assets/{id}", assetHandler.HandleDetail)
			r.Post("/assets/{id}/download", assetHandler.HandleDownload)
			r.Get("/profiles/{username}", profileHandler.HandleGallery)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireSession)
				r.Get("/me", authHandler.HandleMe)
				r.Post("/assets", uploadHandler.HandleUpload)
				r.Put("/profiles/me", profileHandler.HandleUpdateMe)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireCapability(d.Policy, authz.Moderate))
				r.Get("/assets/pending", adminHandler.HandlePending)
				r.Post("/assets/{id}/approve", adminHandler.HandleApprove)
				r.Delete("/assets/{id}", adminHandler.HandleReject)
			})
		})
	})
}

// Start runs the server until SIGINT/SIGTERM, then drains in-flight requests
// for up to 30 seconds and closes the database and the event publisher.
func (s *Server) Start() error {
	defer s.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads of large videos need far longer than a JSON call.
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// close releases what the server owns. It is called once, by Start.
func (s *Server) close() {
	s.unsubscribe()
	if err := s.deps.Publisher.Close(); err != nil {
		s.logger.Error("closing event publisher", slog.String("error", err.Error()))
	}
	if err := s.deps.DB.Close(); err != nil {
		s.logger.Error("closing database", slog.String("error", err.Error()))
	}
}

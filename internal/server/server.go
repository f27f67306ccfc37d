// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware, and routes,
// and decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go creates:
//
//	config.Config, slog.Logger, mail.Sender → passed to Server
//
// Server.New() creates:
//
//	sqlite.DB → AccountService, PostService → AccountHandler, PostHandler
//
// This is the "composition root" pattern: all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/ivr-board/internal/auth"
	"github.com/sakif/ivr-board/internal/config"
	"github.com/sakif/ivr-board/internal/handler"
	"github.com/sakif/ivr-board/internal/mail"
	"github.com/sakif/ivr-board/internal/middleware"
	"github.com/sakif/ivr-board/internal/model"
	sqliteRepo "github.com/sakif/ivr-board/internal/repository/sqlite"
	"github.com/sakif/ivr-board/internal/service"
	"github.com/sakif/ivr-board/internal/session"
)

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database connection. Start() closes it during
// graceful shutdown; callers that never Start must call Close.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	mailer   mail.Sender
	sessions *session.Manager
}

// New creates a new Server with the given config.
//
// Each layer only receives what it needs:
// - Services get repository interfaces (not the concrete sqlite.DB)
// - Handlers get services (not the repository or DB)
func New(cfg *config.Config, logger *slog.Logger, mailer mail.Sender) (*Server, error) {
	sessions, err := session.NewManager(cfg.Security.SecretKey, cfg.Security.SessionTTL.Duration, cfg.Security.SecureCookies)
	if err != nil {
		return nil, fmt.Errorf("creating session manager: %w", err)
	}

	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		mailer:   mailer,
		sessions: sessions,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close() // Clean up DB if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET/POST /                        → login + registration, or the feed
// GET      /dropsession             → sign out
// GET      /confirm_email/{token}   → redeem a confirmation link
// GET/POST /get_info                → recover login details by email
// GET/POST /get_confirm/{userID}    → resend confirmation (owner only)
// GET/POST /edit/{userID}           → profile (owner only)
// GET/POST /add_{slug}              → new post, one route per post type
// GET/POST /update/{kind}/{postID}  → edit own post
// GET      /delete/{postID}         → delete own post
// GET      /myposts                 → own posts
// GET      /healthz                 → health check (JSON)
// GET      /static/*                → static files
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns unique ID to each request (for tracing)
// 2. RealIP: extracts real client IP from proxy headers
// 3. Recoverer: catches panics and returns 500 instead of crashing
// 4. Sessions: decodes the cookie into the request context
// 5. Logger: logs each request, now able to see the request and user ids
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(s.sessions.Middleware)
	s.router.Use(middleware.Logger(s.logger))

	// === Static Files ===
	// GET /static/style.css → serves {StaticDir}/style.css
	fileServer := http.FileServer(http.Dir(s.config.Server.StaticDir))
	s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))

	renderer, err := handler.NewRenderer(s.config.Server.TemplateDir, s.logger)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	tokens, err := auth.NewTokenService(s.config.Security.SecretKey)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(s.config.Security.BcryptCost)

	// DEPENDENCY CHAIN:
	//   s.db implements repository.UserRepository and repository.PostRepository
	//   services receive the interfaces, handlers receive the services
	accounts := service.NewAccountService(s.db, passwords, tokens, s.mailer, service.AccountConfig{
		BaseURL:            s.config.Server.BaseURL,
		ConfirmTokenMaxAge: s.config.Security.ConfirmTokenMaxAge.Duration,
		MailTimeout:        s.config.Mail.Timeout.Duration,
	}, s.logger)
	posts := service.NewPostService(s.db, s.logger)

	accountHandler := handler.NewAccountHandler(accounts, posts, renderer, s.sessions, s.logger)
	postHandler := handler.NewPostHandler(posts, renderer, s.sessions, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	s.router.Get("/healthz", healthHandler.HandleHealth)

	// === Public Routes ===
	s.router.Get("/", accountHandler.HandleIndex)
	s.router.Post("/", accountHandler.HandleIndexForm)
	s.router.Get("/dropsession", accountHandler.HandleLogout)
	s.router.Get("/confirm_email/{token}", accountHandler.HandleConfirmEmail)
	s.router.Get("/get_info", accountHandler.HandleRecoverPage)
	s.router.Post("/get_info", accountHandler.HandleRecover)

	// === Signed-in Routes ===
	s.router.Group(func(r chi.Router) {
		r.Use(session.RequireIdentity)

		r.Get("/get_confirm/{userID}", accountHandler.HandleConfirmPage)
		r.Post("/get_confirm/{userID}", accountHandler.HandleConfirmResend)
		r.Get("/edit/{userID}", accountHandler.HandleEditPage)
		r.Post("/edit/{userID}", accountHandler.HandleEdit)

		for _, kind := range model.PostTypes {
			r.Get("/add_"+kind.Slug(), postHandler.HandleAddPage(kind))
			r.Post("/add_"+kind.Slug(), postHandler.HandleAdd(kind))
		}
		r.Get("/update/{kind}/{postID}", postHandler.HandleUpdatePage)
		r.Post("/update/{kind}/{postID}", postHandler.HandleUpdate)
		r.Get("/delete/{postID}", postHandler.HandleDelete)
		r.Get("/myposts", postHandler.HandleMyPosts)
	})

	return nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // covers a slow SMTP round trip
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", s.config.Server.BaseURL),
			slog.String("database", s.config.Database.Path),
			slog.String("environment", s.config.Environment),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
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

// Package server is the composition point for HTTP: it mounts the
// handlers on a chi router, runs the background workers and shuts
// everything down in order.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/accountkeeper/internal/auth"
	"github.com/sakif/accountkeeper/internal/handler"
	"github.com/sakif/accountkeeper/internal/metrics"
	"github.com/sakif/accountkeeper/internal/middleware"
	"github.com/sakif/accountkeeper/internal/session"
)

// Worker is a background loop that returns once ctx is cancelled.
type Worker func(ctx context.Context)

// Deps are the already-constructed collaborators the server wires
// together. Metrics and GitHub may be nil; the matching routes are then
// not mounted.
type Deps struct {
	Accounts handler.Accounts
	Tokens   *auth.TokenService
	Sessions *session.Manager
	Metrics  *metrics.Metrics
	GitHub   handler.GitHubOAuth
	// Workers run for the lifetime of Start, e.g. the outbox dispatcher.
	Workers []Worker
	// Closers are closed after the HTTP server and workers have stopped.
	Closers []io.Closer
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router *chi.Mux
	port   int
	logger *slog.Logger
	deps   Deps
}

func New(port int, logger *slog.Logger, deps Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		port:   port,
		logger: logger,
		deps:   deps,
	}
	// The session janitor runs alongside any caller-supplied workers.
	s.deps.Workers = append(s.deps.Workers, deps.Sessions.Run)
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes mounts:
//
//	GET    /healthz
//	GET    /metrics                       (when metrics are enabled)
//	GET    /auth/github/login             (when GitHub is configured)
//	GET    /auth/github/callback
//	POST   /api/signup
//	GET    /api/signup/confirm
//	GET    /api/captcha
//	POST   /api/login
//	POST   /api/session
//	POST   /api/logout
//	POST   /api/password/reset-request
//	POST   /api/password/reset
//	POST   /api/password/change           (auth)
//	PUT    /api/preferences               (auth)
//	DELETE /api/account                   (auth)
//
// Middleware order: request ID, real IP, panic recovery, request log.
// Session attachment and token parsing apply to the account routes only.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler())
	}

	accounts := handler.NewAccountHandler(s.deps.Accounts, s.logger)
	authH := handler.NewAuthHandler(s.deps.Accounts, s.deps.Tokens, s.deps.GitHub, s.logger)

	s.router.Group(func(r chi.Router) {
		r.Use(s.deps.Sessions.Middleware)
		r.Use(auth.OptionalAuth(s.deps.Tokens))

		if s.deps.GitHub != nil {
			r.Get("/auth/github/login", authH.HandleGitHubLogin)
			r.Get("/auth/github/callback", authH.HandleGitHubCallback)
		}

		r.Route("/api", func(r chi.Router) {
			r.Post("/signup", accounts.HandleSignup)
			r.Get("/signup/confirm", accounts.HandleConfirm)
			r.Get("/captcha", accounts.HandleCaptcha)

			r.Post("/login", authH.HandleLogin)
			r.Post("/session", authH.HandleSession)
			r.Post("/logout", authH.HandleLogout)

			r.Post("/password/reset-request", accounts.HandleResetRequest)
			r.Post("/password/reset", accounts.HandleReset)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuth(s.deps.Tokens))
				r.Post("/password/change", accounts.HandleChangePassword)
				r.Put("/preferences", accounts.HandleSavePreferences)
				r.Delete("/account", accounts.HandleCloseAccount)
			})
		})
	})
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests,
// stops the workers and closes the closers.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run is Start with the shutdown trigger supplied by the caller.
func (s *Server) Run(ctx context.Context) error {
	defer s.closeAll()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, w := range s.deps.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w(workerCtx)
		}()
	}
	defer func() {
		cancelWorkers()
		wg.Wait()
	}()

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.Int("port", s.port))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

func (s *Server) closeAll() {
	for _, c := range s.deps.Closers {
		if err := c.Close(); err != nil {
			s.logger.Error("closing resource", slog.String("error", err.Error()))
		}
	}
}

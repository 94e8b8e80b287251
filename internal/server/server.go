// Package server assembles the router and owns the HTTP server
// lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/lunalab/luna-kernel/internal/auth"
	"github.com/lunalab/luna-kernel/internal/handler"
	"github.com/lunalab/luna-kernel/internal/middleware"
	"github.com/lunalab/luna-kernel/internal/service"
)

// Config holds the server's dependencies and settings. Tokens and
// Passwords are optional; when nil the API runs unauthenticated, which
// is the expected mode for a kernel bound to localhost.
type Config struct {
	Port      int
	Service   *service.NotebookService
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService
	Logger    *slog.Logger
}

// Server wraps the HTTP server with its routes and dependencies.
type Server struct {
	cfg  Config
	http *http.Server
}

func New(cfg Config) *Server {
	s := &Server{cfg: cfg}
	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.routes(),
		// No global write timeout: the event stream endpoint holds its
		// response open indefinitely.
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	execution := handler.NewExecutionHandler(s.cfg.Service, s.cfg.Logger)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(s.cfg.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if s.cfg.Tokens != nil {
		authHandler := handler.NewAuthHandler(s.cfg.Tokens, s.cfg.Passwords, s.cfg.Logger)
		r.Post("/auth/token", authHandler.HandleToken)
	}

	r.Route("/api/notebooks/{notebookID}", func(r chi.Router) {
		if s.cfg.Tokens != nil {
			r.Use(auth.RequireAuth(s.cfg.Tokens))
		}

		r.Post("/executions", execution.HandleSubmit)
		r.Post("/interrupt", execution.HandleInterrupt)
		r.Post("/open", execution.HandleOpen)
		r.Delete("/", execution.HandleClose)
		r.Get("/events", execution.HandleEvents)
		r.Get("/history", execution.HandleHistory)
		r.Get("/history/{executionID}/artifacts/{index}", execution.HandleArtifact)
		r.Delete("/history", execution.HandlePurgeHistory)
	})

	return r
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	s.cfg.Logger.Info("server starting", slog.Int("port", s.cfg.Port))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listening: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections, drains in-flight requests, then
// closes every notebook session so queued work is flushed before exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cfg.Logger.Info("server shutting down")
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutting down http: %w", err)
	}
	return s.cfg.Service.CloseAll(ctx)
}

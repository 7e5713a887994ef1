package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/session"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/desertthunder/crate/internal/tasks"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 10 * time.Second
	defaultPageSize = 50
)

// Server exposes the transfer API.
type Server struct {
	engine   *tasks.Engine
	sessions *session.Manager
	registry *services.Registry
	source   services.Library
	logger   *log.Logger
	user     string
	lockDir  string
	pageSize int
	now      func() time.Time
	router   chi.Router
}

type Option func(*Server)

// WithUser sets the user part of the one-transfer-per-destination key.
func WithUser(user string) Option {
	return func(s *Server) { s.user = user }
}

// WithLockDir enables cross-process transfer locks in dir.
func WithLockDir(dir string) Option {
	return func(s *Server) { s.lockDir = dir }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithPageSize(n int) Option {
	return func(s *Server) { s.pageSize = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New wires the API. source is read to resolve requested ids; registry holds the destinations.
func New(engine *tasks.Engine, sessions *session.Manager, registry *services.Registry, source services.Library, opts ...Option) *Server {
	s := &Server{
		engine:   engine,
		sessions: sessions,
		registry: registry,
		source:   source,
		logger:   shared.NewLogger(nil),
		user:     "local",
		pageSize: defaultPageSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Route("/transfers", func(r chi.Router) {
			r.Get("/", s.listTransfers)
			r.Post("/", s.createTransfer)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getTransfer)
				r.Delete("/", s.cancelTransfer)
				r.Get("/events", s.transferEvents)
				r.Get("/report", s.transferReport)
				r.Get("/guide", s.transferGuide)
			})
		})
	})
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve listens on addr until ctx is done, sweeping expired sessions in the background.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.sweep(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.Sweep(s.now()); n > 0 {
				s.logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}

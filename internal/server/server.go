// Package server exposes a read-only HTTP view of a running coordinator and
// of the stored audit trail.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/ossim/internal/store"
	"github.com/me/ossim/internal/ui"
	"github.com/me/ossim/pkg/model"
)

// SnapshotSource provides the coordinator's latest process-table snapshot.
type SnapshotSource interface {
	Latest() *model.TableSnapshot
}

// Server is the status API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	startTime time.Time
	source    SnapshotSource // optional; nil when no run is active
	store     store.Store    // optional; nil without an audit database
	runID     string
	mode      model.ExecutionMode
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithRun tags the server with the run it is attached to.
func WithRun(id string, mode model.ExecutionMode) Option {
	return func(s *Server) {
		s.runID = id
		s.mode = mode
	}
}

// New creates a new Server with all routes registered. src and st may be nil.
func New(src SnapshotSource, st store.Store, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		startTime: time.Now(),
		source:    src,
		store:     st,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)
		r.Get("/table", s.handleTable)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Get("/snapshots", s.handleListSnapshots)
				r.Get("/events", s.handleListEvents)
			})
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusSeeOther)
	})
	r.Route("/ui", ui.New(s.source, s.store, s.logger).RegisterRoutes)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
// ready, if not nil, receives the bound address once listening.
func (s *Server) Serve(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if ready != nil {
		ready(ln.Addr())
	}
	s.logger.Info("status server listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("status server stopped")
	return nil
}

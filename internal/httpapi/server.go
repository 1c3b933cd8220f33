// Package httpapi exposes environments, connections and cursors to remote
// callers. Each handle is registered under a random reference id; the
// routes mirror the driver operations one to one.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/ocisql/internal/database"
	"github.com/koustreak/ocisql/internal/logger"
	"github.com/koustreak/ocisql/internal/metrics"
	"github.com/koustreak/ocisql/internal/native"
)

// Config holds the server settings.
type Config struct {
	Addr string

	// Int64 and Prefetch are the defaults of environments created without
	// explicit options.
	Int64    bool
	Prefetch int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the settings used by `ocisql serve`.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		Int64:           true,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server serves the handle API over one native library.
type Server struct {
	cfg  Config
	lib  native.Library
	log  *logger.Logger
	refs *refs
}

// New returns a server creating its environments over lib.
func New(lib native.Library, cfg Config, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		cfg:  cfg,
		lib:  lib,
		log:  log.With().Str("component", "httpapi").Logger(),
		refs: newRefs(),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/constants", s.constants)
	r.Get("/metrics", s.metrics)

	r.Route("/environments", func(r chi.Router) {
		r.Post("/", s.createEnvironment)
		r.Delete("/{id}", s.closeEnvironment)
		r.Post("/{id}/connections", s.connect)
	})

	r.Route("/connections/{id}", func(r chi.Router) {
		r.Post("/poll", s.pollConnect)
		r.Post("/execute", s.execute)
		r.Post("/resume", s.resume)
		r.Post("/commit", s.commit)
		r.Post("/rollback", s.rollback)
		r.Post("/abort", s.abort)
		r.Post("/reset", s.reset)
		r.Put("/autocommit", s.setAutoCommit)
		r.Delete("/", s.closeConnection)
	})

	r.Route("/cursors/{id}", func(r chi.Router) {
		r.Post("/fetch", s.fetch)
		r.Get("/columns", s.columns)
		r.Delete("/", s.closeCursor)
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoWith("listening", map[string]interface{}{"addr": s.cfg.Addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("stopped")
	return nil
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.DebugWith("request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"request_id": middleware.GetReqID(r.Context()),
			"duration":   time.Since(start).String(),
		})
	})
}

func (s *Server) constants(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, database.Constants())
}

func (s *Server) metrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WritePrometheus(w)
}

// Package opsserver serves the operational HTTP endpoints: liveness,
// Prometheus metrics and the language table.
package opsserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/language"
)

const (
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Server wraps the chi router of the ops endpoints
type Server struct {
	router     *chi.Mux
	registry   *language.Registry
	logger     *zap.Logger
	addr       string
	httpServer *http.Server
}

type healthResponse struct {
	Status string `json:"status"`
}

type languageResponse struct {
	ID      string `json:"id"`
	Command string `json:"command"`
}

// New creates the ops server listening on addr
func New(addr string, registry *language.Registry, logger *zap.Logger) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		registry: registry,
		logger:   logger,
		addr:     addr,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loggingMiddleware)

	s.routes()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/languages", s.handleLanguages)
}

// Handler returns the router for use in tests or other servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listen address and serves in the background.
// Bind errors are returned; later serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.logger.Info("ops server listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down ops server: %w", err)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, healthResponse{Status: "ok"})
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	ids := s.registry.IDs()
	languages := make([]languageResponse, 0, len(ids))
	for _, id := range ids {
		spec, err := s.registry.Lookup(id)
		if err != nil {
			continue
		}
		languages = append(languages, languageResponse{ID: id, Command: strings.Join(spec.Command, " ")})
	}
	s.writeJSON(w, languages)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// loggingMiddleware logs each request at debug level
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Package api exposes the supervisor's read-only live-status HTTP surface.
// It is informational plumbing: nothing here feeds back into control flow.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/edgi-govdata-archiving/wm-crawl-supervisor/internal/supervisor"
)

// StateSource yields a point-in-time snapshot of a controller's retry state.
// *supervisor.Controller satisfies it.
type StateSource interface {
	Snapshot() supervisor.RetryState
}

// Server wires HTTP handlers to the running controllers.
type Server struct {
	router  chi.Router
	sources map[string]StateSource
	logger  *zap.Logger
}

// NewServer constructs a Server over the given collection state sources and
// Prometheus gatherer (nil selects the default gatherer).
func NewServer(sources map[string]StateSource, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sources: sources,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Route("/v1", func(r chi.Router) {
		r.Get("/collections", s.listCollections)
		r.Get("/collections/{collection}/status", s.getStatus)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listCollections(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": names})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "collection")
	source, ok := s.sources[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown collection"})
		return
	}
	writeJSON(w, http.StatusOK, source.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic serving status request",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.Time("at", time.Now().UTC()),
					)
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

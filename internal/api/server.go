package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/allofdaniel/placecrawl/internal/metrics"
	"github.com/allofdaniel/placecrawl/internal/progress/sinks"
)

// StatusSource reports the state of the current run.
type StatusSource interface {
	Snapshot() sinks.Status
}

// ResultsSource exposes the resolved place URLs.
type ResultsSource interface {
	Get(id string) (string, bool)
	Snapshot() map[string]string
	Len() int
}

// Server serves health probes, Prometheus metrics and read-only run state.
type Server struct {
	router  chi.Router
	status  StatusSource
	results ResultsSource
	metrics *metrics.Metrics
	logger  *zap.Logger
	srv     *http.Server
}

const requestTimeout = 30 * time.Second

// NewServer constructs a Server with middleware and routes. results may be nil,
// in which case the /v1/results routes answer 503.
func NewServer(status StatusSource, results ResultsSource, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		status:  status,
		results: results,
		metrics: m,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(m.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.getStatus)
		r.Route("/results", func(r chi.Router) {
			r.Get("/", s.listResults)
			r.Get("/{place_id}", s.getResult)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background. The bound address is
// returned so callers can pass ":0".
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", addr, err)
	}
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()
	s.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
	return ln.Addr().String(), nil
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	st := s.status.Snapshot()
	if st.State == sinks.StateError {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": st.State, "error": st.LastError})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "state": st.State})
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.status.Snapshot())
}

type resultsResponse struct {
	Count   int               `json:"count"`
	Results map[string]string `json:"results"`
}

func (s *Server) listResults(w http.ResponseWriter, _ *http.Request) {
	if s.results == nil {
		writeError(w, http.StatusServiceUnavailable, "results unavailable")
		return
	}
	snap := s.results.Snapshot()
	writeJSON(w, http.StatusOK, resultsResponse{Count: len(snap), Results: snap})
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeError(w, http.StatusServiceUnavailable, "results unavailable")
		return
	}
	id := chi.URLParam(r, "place_id")
	url, ok := s.results.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "place not resolved")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "url": url})
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request by the server middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("request_id", RequestID(r.Context())),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

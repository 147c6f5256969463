package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/batchwatch/internal/config"
	"github.com/JakeFAU/batchwatch/internal/dashboard"
	"github.com/JakeFAU/batchwatch/internal/metrics"
	"github.com/JakeFAU/batchwatch/internal/stream"
	"github.com/JakeFAU/batchwatch/internal/terminate"
)

const (
	requestTimeout    = 30 * time.Second
	keepAliveInterval = 30 * time.Second
)

// Snapshotter returns the current dashboard view.
type Snapshotter interface {
	Snapshot() dashboard.View
}

// ReadinessChecker reports whether the service can serve live data.
type ReadinessChecker interface {
	Ready() bool
}

// RequestIDGenerator mints identifiers for incoming requests.
type RequestIDGenerator interface {
	RequestID() string
}

// Server wires HTTP handlers to the dashboard, stream broker and terminator.
type Server struct {
	router     chi.Router
	dashboard  Snapshotter
	broker     *stream.Broker
	terminator terminate.Terminator
	readiness  ReadinessChecker
	ids        RequestIDGenerator
	cfg        config.Config
	logger     *zap.Logger
	keepAlive  time.Duration
}

// NewServer constructs a Server with middleware and routes. Extra gatherers
// are merged into the /metrics output.
func NewServer(
	snapshots Snapshotter,
	broker *stream.Broker,
	terminator terminate.Terminator,
	readiness ReadinessChecker,
	ids RequestIDGenerator,
	cfg config.Config,
	logger *zap.Logger,
	gatherers ...prometheus.Gatherer,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if terminator == nil {
		terminator = terminate.Disabled{}
	}
	s := &Server{
		dashboard:  snapshots,
		broker:     broker,
		terminator: terminator,
		readiness:  readiness,
		ids:        ids,
		cfg:        cfg,
		logger:     logger,
		keepAlive:  keepAliveInterval,
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherers...))

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(requestTimeout))
			r.Get("/dashboard", s.getDashboard)
			r.Post("/terminate", s.postTerminate)
		})
		r.Get("/dashboard/events", s.streamEvents)
		r.Get("/dashboard/ws", s.streamWebSocket)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.readiness != nil && !s.readiness.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not subscribed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getDashboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dashboard.Snapshot())
}

func (s *Server) postTerminate(w http.ResponseWriter, r *http.Request) {
	if _, disabled := s.terminator.(terminate.Disabled); disabled {
		writeError(w, http.StatusNotImplemented, terminate.ErrNotConfigured.Error())
		return
	}
	metrics.ObserveTerminateRequest("http")
	terminate.Fire(r.Context(), s.terminator, s.cfg.TerminateTimeout(), s.logger.With(
		zap.String("request_id", requestIDFrom(r.Context())),
	))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" && s.ids != nil {
			reqID = s.ids.RequestID()
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
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", requestIDFrom(r.Context())),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
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

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

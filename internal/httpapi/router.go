// Package httpapi exposes the timestamping Service over HTTP: POST /add,
// POST /add-batch, POST /check, POST /update-tree, GET /stats, plus
// GET /metrics when a Prometheus registry is wired in. Routing uses the
// standard library's ServeMux — no router dependency appears anywhere in
// the reference stack this service is modeled on — wrapped with rs/cors
// and a zap request-logging middleware that stamps every request with a
// uuid correlation id.
//
// © 2025 merkle-timestamp authors. MIT License.
package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/Voskan/merkle-timestamp/pkg/timestamp"
)

// Server wires a timestamp.Service to HTTP handlers.
type Server struct {
	svc    *timestamp.Service
	logger *zap.Logger
}

// NewServer constructs a Server. logger may be nil, in which case a no-op
// logger is used and no request is ever logged.
func NewServer(svc *timestamp.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{svc: svc, logger: logger}
}

// Handler builds the full HTTP handler: routes, CORS, request logging, and
// (when reg is non-nil) a /metrics endpoint serving the given registry.
func (s *Server) Handler(reg *prometheus.Registry, corsOrigins []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /add", s.handleAdd)
	mux.HandleFunc("POST /add-batch", s.handleAddBatch)
	mux.HandleFunc("POST /check", s.handleCheck)
	mux.HandleFunc("POST /update-tree", s.handleUpdateTree)
	mux.HandleFunc("GET /stats", s.handleStats)

	if reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	c := cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})

	return c.Handler(s.withRequestLogging(mux))
}

// withRequestLogging stamps every request with a correlation id (exposed to
// the client as X-Request-Id) and logs method, path, status, and duration
// at Info level. Handlers never log on their own — this is the single seam.
func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-Id", reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		s.logger.Info("http request",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/discharge-forecast-service/internal/observability"
	"github.com/couchcryptid/discharge-forecast-service/internal/query"
)

// Consulter answers point queries.
type Consulter interface {
	Consult(ctx context.Context, lat, lon float64) (query.Result, error)
}

// Server exposes the query endpoints alongside health, readiness and metrics.
type Server struct {
	httpServer *http.Server
	consulter  Consulter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /test, /healthz, /readyz and /metrics
// routes, plus /consultar when consulter is non-nil.
func NewServer(addr string, consulter Consulter, ready sharedobs.ReadinessChecker, metrics *observability.Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		consulter: consulter,
		metrics:   metrics,
		logger:    logger,
	}

	if consulter != nil {
		mux.HandleFunc("GET /consultar", s.handleConsult)
	}
	mux.HandleFunc("GET /test", handleTest)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer.Handler = withRequestID(mux, logger)
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func handleTest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "service is running"}) //nolint:errcheck // string map always encodes
}

func (s *Server) handleConsult(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { s.metrics.QueryDuration.Observe(time.Since(start).Seconds()) }()

	params, err := parseConsultQuery(r)
	if err != nil {
		s.metrics.QueryRequests.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.consulter.Consult(r.Context(), *params.Lat, *params.Lon)
	switch {
	case errors.Is(err, query.ErrNoSnapshot):
		s.metrics.QueryRequests.WithLabelValues("no_snapshot").Inc()
		s.logger.Warn("consult without snapshot", "request_id", requestID(r.Context()), "error", err)
		writeError(w, http.StatusNotFound, "no forecast data available")
		return
	case err != nil:
		s.metrics.QueryRequests.WithLabelValues("upstream_error").Inc()
		s.logger.Error("consult failed", "request_id", requestID(r.Context()),
			"lat", *params.Lat, "lon", *params.Lon, "error", err)
		writeError(w, http.StatusInternalServerError, "forecast data could not be loaded")
		return
	}

	if err := writeJSON(w, http.StatusOK, newConsultResponse(res)); err != nil {
		s.metrics.QueryRequests.WithLabelValues("encode_error").Inc()
		s.logger.Error("encode consult response failed", "request_id", requestID(r.Context()),
			"lat", *params.Lat, "lon", *params.Lon, "error", err)
		return
	}
	s.metrics.QueryRequests.WithLabelValues("ok").Inc()
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg}) //nolint:errcheck // string map always encodes
}

// writeJSON encodes v before committing the status. When v cannot be encoded
// the client gets a 500 with an error body and the encoding error is returned.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	body, err := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"response could not be encoded"}` + "\n")) //nolint:errcheck // best-effort response
		return err
	}
	w.WriteHeader(status)
	w.Write(append(body, '\n')) //nolint:errcheck // best-effort response
	return nil
}

// parseFloatParam returns nil for a missing parameter.
func parseFloatParam(r *http.Request, name string) (*float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errors.New(name + " must be a number")
	}
	return &v, nil
}

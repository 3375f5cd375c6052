// Package http provides the HTTP surface of the ingest gateway.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ingestgate/ingestgate/adapters/metrics"
	"github.com/ingestgate/ingestgate/app"
	"github.com/ingestgate/ingestgate/domain/decision"
	"github.com/ingestgate/ingestgate/domain/gateway"
	"github.com/ingestgate/ingestgate/domain/ingest"
)

// maxBodyBytes caps buffered request bodies. Analytics payloads are
// small; anything past this is not legitimate ingest traffic.
const maxBodyBytes = 10 << 20

// errorBody is the JSON error envelope returned to ingest clients.
type errorBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// IngestHandler wraps the ingest service for HTTP handling.
type IngestHandler struct {
	service *app.IngestService
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewIngestHandler creates a new ingest HTTP handler.
func NewIngestHandler(service *app.IngestService, logger zerolog.Logger) *IngestHandler {
	return &IngestHandler{service: service, logger: logger}
}

// NewIngestHandlerWithMetrics creates a new ingest HTTP handler with metrics.
func NewIngestHandlerWithMetrics(service *app.IngestService, logger zerolog.Logger, m *metrics.Collector) *IngestHandler {
	return &IngestHandler{service: service, logger: logger, metrics: m}
}

// ServeHTTP handles requests addressed to the reserved ingest namespaces.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := h.buildRequest(w, r)
	if !ok {
		return
	}

	result := h.service.Handle(ctx, req)
	h.logDecision(req, result)

	if result.Error != nil {
		// Quota headers ride along on rejections too.
		for k, v := range result.Response.Headers {
			w.Header().Set(k, v)
		}
		writeError(w, result.Error)
		return
	}

	for k, v := range result.Response.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(result.Response.Status)
	if len(result.Response.Body) > 0 {
		if _, err := w.Write(result.Response.Body); err != nil {
			h.logger.Error().Err(err).Msg("failed to write response body")
		}
	}
}

func (h *IngestHandler) buildRequest(w http.ResponseWriter, r *http.Request) (gateway.Request, bool) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to read request body")
			writeError(w, &gateway.ErrorResponse{
				Status:  400,
				Code:    "bad_request",
				Message: "Failed to read request body",
			})
			return gateway.Request{}, false
		}
	}

	return gateway.Request{
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.RawQuery,
		Headers:   extractHeaders(r),
		Body:      body,
		ClientKey: extractClientKey(r),
		UserAgent: r.UserAgent(),
		TraceID:   middleware.GetReqID(r.Context()),
	}, true
}

func (h *IngestHandler) logDecision(req gateway.Request, result app.HandleResult) {
	event := h.logger.Info()
	status := 0

	if result.Error != nil {
		if result.Tag == decision.TagAllowed {
			// Admitted but the collector forward failed.
			event = h.logger.Error()
		} else {
			event = h.logger.Warn()
		}
		status = result.Error.Status
		event.Str("error_code", result.Error.Code)
	} else {
		status = result.Response.Status
		event.Int64("latency_ms", result.Response.LatencyMs)
	}

	ns := string(result.Namespace)
	if h.metrics != nil {
		h.metrics.DecisionsTotal.WithLabelValues(string(result.Tag), ns).Inc()
		switch result.Tag {
		case decision.TagRateLimited:
			h.metrics.RateLimitHits.WithLabelValues(ns).Inc()
		case decision.TagBlockedInvalidPath:
			h.metrics.BlockedPaths.WithLabelValues(ns).Inc()
		}
		if result.Error != nil && result.Error.Status >= 500 {
			h.metrics.UpstreamErrors.WithLabelValues("collector").Inc()
		}
		if result.Error == nil {
			h.metrics.UpstreamDuration.
				WithLabelValues("collector", statusLabel(result.Response.Status)).
				Observe(float64(result.Response.LatencyMs) / 1000)
		}
	}

	event.
		Str("decision", string(result.Tag)).
		Str("namespace", ns).
		Str("method", req.Method).
		Str("path", req.Path).
		Str("client_key", req.ClientKey).
		Int("status", status).
		Str("trace_id", req.TraceID).
		Msg("ingest request")
}

// ProxyUpstream streams a request/response pair to an upstream.
type ProxyUpstream interface {
	Proxy(w http.ResponseWriter, r *http.Request, clientKey, traceID string) error
}

// PassthroughHandler forwards non-ingest traffic to the application
// upstream without admission checks or quota headers. Bodies are
// streamed, not buffered: application traffic is not subject to the
// ingest size cap and must pass through byte-for-byte.
type PassthroughHandler struct {
	upstream ProxyUpstream
	logger   zerolog.Logger
}

// NewPassthroughHandler creates a new passthrough handler.
func NewPassthroughHandler(upstream ProxyUpstream, logger zerolog.Logger) *PassthroughHandler {
	return &PassthroughHandler{upstream: upstream, logger: logger}
}

// ServeHTTP forwards the request untouched.
func (h *PassthroughHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := h.upstream.Proxy(w, r, extractClientKey(r), middleware.GetReqID(r.Context()))
	if err == nil {
		return
	}

	h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("app upstream error")
	if !errors.Is(err, errStreamInterrupted) {
		writeError(w, &gateway.ErrUpstreamError)
	}
}

// extractHeaders extracts forwardable headers from the request.
// Note: Go stores the Host header in r.Host, not r.Header["Host"].
func extractHeaders(r *http.Request) map[string]string {
	headers := make(map[string]string)

	if r.Host != "" {
		headers["Host"] = r.Host
	}

	for k, v := range r.Header {
		if isHopByHop(k) {
			continue
		}
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return headers
}

// extractClientKey derives the rate-limit key for a request. Forwarded
// headers are trusted as-is: the gateway is expected to sit behind an
// edge proxy that sets them.
func extractClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

// writeError writes the JSON error envelope.
func writeError(w http.ResponseWriter, err *gateway.ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	json.NewEncoder(w).Encode(errorBody{
		Error:      err.Message,
		RetryAfter: err.RetryAfter,
	})
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	upstreams []HealthChecker
}

// HealthChecker interface for checking upstream health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(upstreams ...HealthChecker) *HealthHandler {
	return &HealthHandler{upstreams: upstreams}
}

// Liveness returns a simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Readiness checks if the service and its upstreams are ready.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, u := range h.upstreams {
		if u == nil {
			continue
		}
		if err := u.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Version returns the service version.
func Version(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(VersionResponse{
		Version: "dev",
		Service: "ingestgate",
	})
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics        *metrics.Collector
	MetricsHandler http.Handler // Optional metrics exporter handler (for /metrics endpoint)
	RequestTimeout time.Duration
}

// NewRouter creates the main HTTP router.
func NewRouter(ingestHandler *IngestHandler, passthrough *PassthroughHandler, healthHandler *HealthHandler, logger zerolog.Logger) chi.Router {
	return NewRouterWithConfig(ingestHandler, passthrough, healthHandler, logger, RouterConfig{})
}

// NewRouterWithConfig creates the main HTTP router with optional config.
func NewRouterWithConfig(ingestHandler *IngestHandler, passthrough *PassthroughHandler, healthHandler *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	// Health endpoints
	r.Get("/health", healthHandler.Liveness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Get("/health/ready", healthHandler.Readiness)

	// Metrics endpoint (prefer exporter handler, fall back to promhttp)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	} else if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Get("/version", Version)

	// Reserved ingest namespaces
	r.HandleFunc(ingest.EventsPrefix, ingestHandler.ServeHTTP)
	r.HandleFunc(ingest.EventsPrefix+"/*", ingestHandler.ServeHTTP)
	r.HandleFunc(ingest.DBPrefix, ingestHandler.ServeHTTP)
	r.HandleFunc(ingest.DBPrefix+"/*", ingestHandler.ServeHTTP)

	// Everything else passes through to the application upstream,
	// untouched.
	r.NotFound(passthrough.ServeHTTP)

	return r
}

// NewMetricsMiddleware creates middleware that records request metrics.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip metrics for internal endpoints
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start).Seconds()
			status := statusLabel(ww.Status())
			ns := namespaceLabel(r.URL.Path)

			m.RequestsTotal.WithLabelValues(r.Method, ns, status).Inc()
			m.RequestDuration.WithLabelValues(r.Method, ns, status).Observe(duration)
		})
	}
}

// namespaceLabel maps a request path to a low-cardinality metric label.
func namespaceLabel(path string) string {
	switch ingest.Classify(path) {
	case ingest.NamespaceEvents:
		return "events"
	case ingest.NamespaceDB:
		return "db"
	}
	return "app"
}

// statusLabel returns a string label for the status code.
func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

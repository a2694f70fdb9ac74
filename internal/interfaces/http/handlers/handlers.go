package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/metrics"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/scan"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/stream"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// WithRequestID stores the request id on ctx
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id stored on ctx, or "unknown"
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return "unknown"
}

// BreakerReporter exposes the upstream circuit breaker state
type BreakerReporter interface {
	BreakerState() string
}

// Deps are the collaborators the handlers read from
type Deps struct {
	Service  *scan.Service
	Metrics  *metrics.Registry
	Hub      *stream.Hub
	Upstream BreakerReporter
	Version  string
}

// Handlers manages all HTTP endpoint handlers
type Handlers struct {
	svc      *scan.Service
	metrics  *metrics.Registry
	hub      *stream.Hub
	upstream BreakerReporter
	version  string
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps Deps) *Handlers {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	return &Handlers{
		svc:      deps.Service,
		metrics:  deps.Metrics,
		hub:      deps.Hub,
		upstream: deps.Upstream,
		version:  deps.Version,
	}
}

// writeJSON writes JSON response with proper error handling
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes standardized error response
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: RequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// writeServiceError maps service errors onto status codes
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, scan.ErrNoScan):
		h.writeError(w, r, http.StatusNotFound, "no_scan", "No scan has been ingested yet")
	case errors.Is(err, scan.ErrSymbolNotFound):
		h.writeError(w, r, http.StatusNotFound, "symbol_not_found", err.Error())
	case errors.Is(err, scan.ErrNoUpstream):
		h.writeError(w, r, http.StatusServiceUnavailable, "upstream_not_configured", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, r, http.StatusGatewayTimeout, "timeout", err.Error())
	default:
		log.Error().Err(err).Str("request_id", RequestID(r.Context())).Str("path", r.URL.Path).Msg("Request failed")
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// NotFound handles 404 responses
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}

// Health reports service status. A failing store marks the service degraded.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   h.version,
		Timestamp: time.Now().UTC(),
		Engine:    h.svc.Engine().Config().Describe(),
		Checks:    map[string]string{"store": "ok"},
	}

	if err := h.svc.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Checks["store"] = err.Error()
	}
	if h.upstream != nil {
		resp.Checks["upstream_breaker"] = h.upstream.BreakerState()
	}
	if h.hub != nil {
		resp.Clients = h.hub.Clients()
	}
	if snap, err := h.svc.Latest(r.Context()); err == nil {
		resp.ScanID = snap.Batch.Metadata.ScanID
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, resp)
}

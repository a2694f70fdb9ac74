package handlers

import (
	"time"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/explain"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/quality"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/view"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse reports liveness of the service and its dependencies
type HealthResponse struct {
	Status    string            `json:"status"` // ok, degraded
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	ScanID    string            `json:"scan_id,omitempty"`
	Engine    string            `json:"engine"`
	Checks    map[string]string `json:"checks"`
	Clients   int               `json:"stream_clients"`
}

// SignalsResponse is the filtered and sorted signal view
type SignalsResponse struct {
	ScanID  string              `json:"scan_id"`
	Count   int                 `json:"count"`
	Total   int                 `json:"total"`
	State   view.State          `json:"state"`
	Signals []quality.Annotated `json:"signals"`
}

// RejectionsResponse lists explained rejections
type RejectionsResponse struct {
	ScanID     string              `json:"scan_id"`
	Count      int                 `json:"count"`
	Rejections []explain.Breakdown `json:"rejections"`
}

// ExplainResponse explains every rejection of one symbol
type ExplainResponse struct {
	Symbol     string              `json:"symbol"`
	ScanID     string              `json:"scan_id"`
	Breakdowns []explain.Breakdown `json:"breakdowns"`
}

// Package gateway provides request/response value types for the ingest
// proxy layer.
package gateway

// Request represents an incoming request (value type).
// This is extracted from HTTP and passed to the decision pipeline.
type Request struct {
	// HTTP request details
	Method  string
	Path    string
	Query   string
	Headers map[string]string
	Body    []byte

	// Rate limit key material. ClientKey is derived from the forwarded
	// client address and identifies the counter bucket.
	ClientKey string
	UserAgent string
	TraceID   string
}

// Response represents a forwarded response (value type).
type Response struct {
	// HTTP response
	Status  int
	Headers map[string]string
	Body    []byte

	// Metadata (for logging)
	LatencyMs    int64
	UpstreamAddr string
}

// ErrorResponse represents an error to return to the client (value type).
// Message is the exact "error" field of the JSON body.
type ErrorResponse struct {
	Status     int
	Code       string
	Message    string
	RetryAfter int // seconds until retry is sensible; 429 only
}

// Common error responses
var (
	ErrInvalidPath = ErrorResponse{
		Status:  403,
		Code:    "invalid_path",
		Message: "Invalid path",
	}
	ErrRateLimited = ErrorResponse{
		Status:  429,
		Code:    "rate_limit_exceeded",
		Message: "Too many requests",
	}
	ErrUpstreamError = ErrorResponse{
		Status:  502,
		Code:    "upstream_error",
		Message: "Upstream service unavailable",
	}
)

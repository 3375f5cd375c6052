package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ingestgate/ingestgate/domain/gateway"
	"github.com/ingestgate/ingestgate/ports"
)

// UpstreamClient forwards requests to an upstream service.
type UpstreamClient struct {
	client  *http.Client
	baseURL *url.URL
	name    string
}

// UpstreamConfig contains configuration for the upstream client.
type UpstreamConfig struct {
	Name            string
	BaseURL         string
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// NewUpstreamClient creates a new upstream HTTP client.
func NewUpstreamClient(cfg UpstreamConfig) (*UpstreamClient, error) {
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("upstream %s: base URL must be absolute: %q", cfg.Name, cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = 100
	}

	idleConnTimeout := cfg.IdleConnTimeout
	if idleConnTimeout == 0 {
		idleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConns,
		IdleConnTimeout:     idleConnTimeout,
		DisableCompression:  false,
	}

	return &UpstreamClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL: baseURL,
		name:    cfg.Name,
	}, nil
}

// Name returns the upstream's configured name.
func (u *UpstreamClient) Name() string {
	return u.name
}

// Forward sends a request to the upstream and returns the response.
func (u *UpstreamClient) Forward(ctx context.Context, req gateway.Request) (gateway.Response, error) {
	start := time.Now()

	upstreamURL := u.baseURL.ResolveReference(&url.URL{
		Path:     req.Path,
		RawQuery: req.Query,
	})

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, upstreamURL.String(), body)
	if err != nil {
		return gateway.Response{}, fmt.Errorf("create request: %w", err)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	// Preserve original Host header for virtual hosting
	// Note: httpReq.Host is set to the URL's host by NewRequestWithContext,
	// and httpReq.Header.Set("Host", v) does NOT override httpReq.Host
	if host, ok := req.Headers["Host"]; ok && host != "" {
		httpReq.Host = host
	}

	// Add forwarding headers
	httpReq.Header.Set("X-Forwarded-For", req.ClientKey)
	httpReq.Header.Set("X-Forwarded-Proto", "https")
	if req.TraceID != "" {
		httpReq.Header.Set("X-Request-ID", req.TraceID)
	}

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return gateway.Response{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20)) // 50MB limit
	if err != nil {
		return gateway.Response{}, fmt.Errorf("read response: %w", err)
	}

	headers := make(map[string]string)
	for k, v := range resp.Header {
		if isHopByHop(k) {
			continue
		}
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	return gateway.Response{
		Status:       resp.StatusCode,
		Headers:      headers,
		Body:         respBody,
		LatencyMs:    time.Since(start).Milliseconds(),
		UpstreamAddr: u.baseURL.Host,
	}, nil
}

// Proxy streams a request to the upstream and the response back to the
// client without buffering either body. Used for the passthrough path,
// which carries arbitrary application traffic: uploads and responses of
// any size must arrive byte-for-byte intact, so the buffered Forward
// path and its size caps do not apply here.
func (u *UpstreamClient) Proxy(w http.ResponseWriter, r *http.Request, clientKey, traceID string) error {
	upstreamURL := u.baseURL.ResolveReference(&url.URL{
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	})

	httpReq, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL.String(), r.Body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.ContentLength = r.ContentLength

	for k, v := range r.Header {
		if isHopByHop(k) {
			continue
		}
		httpReq.Header[k] = v
	}
	httpReq.Host = r.Host

	httpReq.Header.Set("X-Forwarded-For", clientKey)
	httpReq.Header.Set("X-Forwarded-Proto", "https")
	if traceID != "" {
		httpReq.Header.Set("X-Request-ID", traceID)
	}

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	for k, v := range resp.Header {
		if isHopByHop(k) {
			continue
		}
		w.Header()[k] = v
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("stream response: %w: %v", errStreamInterrupted, err)
	}
	return nil
}

// errStreamInterrupted marks failures after response headers went out;
// the handler can only log these, not write an error body.
var errStreamInterrupted = errors.New("stream interrupted")

// HealthCheck verifies the upstream is reachable.
func (u *UpstreamClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "HEAD", u.baseURL.String(), nil)
	if err != nil {
		return err
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	// Any response (even 404) means upstream is reachable
	return nil
}

// Close closes the upstream client.
func (u *UpstreamClient) Close() error {
	u.client.CloseIdleConnections()
	return nil
}

func isHopByHop(header string) bool {
	switch strings.ToLower(header) {
	case "connection", "keep-alive", "proxy-authenticate", "proxy-authorization",
		"te", "trailers", "transfer-encoding", "upgrade":
		return true
	}
	return false
}

// Ensure interface compliance.
var _ ports.Upstream = (*UpstreamClient)(nil)

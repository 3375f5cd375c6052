package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	gatehttp "github.com/ingestgate/ingestgate/adapters/http"
	"github.com/ingestgate/ingestgate/domain/gateway"
)

func TestUpstreamForward(t *testing.T) {
	var seen *http.Request
	var seenHost string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
		seenHost = r.Host
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(201)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client, err := gatehttp.NewUpstreamClient(gatehttp.UpstreamConfig{
		Name:    "collector",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("NewUpstreamClient: %v", err)
	}
	defer client.Close()

	resp, err := client.Forward(context.Background(), gateway.Request{
		Method: "POST",
		Path:   "/ingest/capture",
		Query:  "compression=gzip",
		Headers: map[string]string{
			"Content-Type": "application/json",
			"Host":         "app.example.com",
		},
		Body:      []byte(`{"event":"pageview"}`),
		ClientKey: "1.2.3.4",
		TraceID:   "trace-1",
	})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	if resp.Status != 201 {
		t.Errorf("status = %d, want 201", resp.Status)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("body = %q", resp.Body)
	}
	if _, ok := resp.Headers["Connection"]; ok {
		t.Error("hop-by-hop header forwarded back")
	}
	if seen.URL.Path != "/ingest/capture" {
		t.Errorf("upstream path = %q", seen.URL.Path)
	}
	if seen.URL.RawQuery != "compression=gzip" {
		t.Errorf("upstream query = %q", seen.URL.RawQuery)
	}
	if seenHost != "app.example.com" {
		t.Errorf("upstream host = %q", seenHost)
	}
	if got := seen.Header.Get("X-Forwarded-For"); got != "1.2.3.4" {
		t.Errorf("X-Forwarded-For = %q", got)
	}
	if got := seen.Header.Get("X-Request-ID"); got != "trace-1" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestUpstreamHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
	}))
	defer server.Close()

	client, err := gatehttp.NewUpstreamClient(gatehttp.UpstreamConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewUpstreamClient: %v", err)
	}
	defer client.Close()

	// Any HTTP response means reachable.
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}

	server.Close()
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("expected error for closed upstream")
	}
}

func TestUpstreamConfigValidation(t *testing.T) {
	if _, err := gatehttp.NewUpstreamClient(gatehttp.UpstreamConfig{BaseURL: "not a url ::"}); err == nil {
		t.Error("expected error for malformed URL")
	}
	if _, err := gatehttp.NewUpstreamClient(gatehttp.UpstreamConfig{BaseURL: "/relative/only"}); err == nil {
		t.Error("expected error for relative URL")
	}
}

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/EdissonBeltGom/product/catalog"
	"github.com/EdissonBeltGom/product/observe"
	"github.com/EdissonBeltGom/product/resilience"
)

func TestClientRateLimit_PerClientBudget(t *testing.T) {
	registry := resilience.NewRegistry()
	server := NewServer(
		&stubService{products: map[string]catalog.Product{}},
		registry,
		resilience.NewMetricsRegistry(),
		observe.NopLogger(),
		tracenoop.NewTracerProvider().Tracer("test"),
		ServerConfig{
			AdminSecret: testSecret,
			ClientRateLimit: resilience.RateLimiterConfig{
				CapacityPerPeriod: 2,
				Period:            time.Minute,
			},
		},
	)
	handler := server.Handler()

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// The first client burns its budget.
	for i := 0; i < 2; i++ {
		if code := send("10.0.0.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, code)
		}
	}
	if code := send("10.0.0.1:1234"); code != http.StatusTooManyRequests {
		t.Errorf("over-budget status = %d, want 429", code)
	}

	// A different client has its own limiter.
	if code := send("10.0.0.2:1234"); code != http.StatusOK {
		t.Errorf("second client status = %d, want 200", code)
	}

	// Both limiters are visible under their ip- names.
	snaps := registry.LimiterSnapshots()
	if _, ok := snaps["ip-10.0.0.1"]; !ok {
		t.Errorf("limiter names = %v, want ip-10.0.0.1 present", snaps)
	}
	if _, ok := snaps["ip-10.0.0.2"]; !ok {
		t.Errorf("limiter names = %v, want ip-10.0.0.2 present", snaps)
	}
}

func TestClientAddr(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"plain remote", "10.0.0.1:4567", "", "10.0.0.1"},
		{"forwarded single", "10.0.0.1:4567", "203.0.113.7", "203.0.113.7"},
		{"forwarded chain", "10.0.0.1:4567", "203.0.113.7, 10.0.0.9", "203.0.113.7"},
		{"unparseable remote", "bogus", "", "bogus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientAddr(req); got != tt.want {
				t.Errorf("clientAddr() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAdminReset_ClearsMetrics(t *testing.T) {
	server, _, metrics := newTestServer(t, &stubService{products: map[string]catalog.Product{}})
	metrics.ObserveOutcome(context.Background(), "productService", 1, nil)

	token, err := AdminToken(testSecret, time.Minute)
	if err != nil {
		t.Fatalf("AdminToken() error = %v", err)
	}
	rec := doRequest(t, server.Handler(), http.MethodPost, "/admin/metrics/reset", "",
		map[string]string{"Authorization": "Bearer " + token})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if _, ok := metrics.Snapshot("productService"); ok {
		t.Error("metrics survived reset")
	}
}

func TestAdminLimiterCapacity(t *testing.T) {
	server, registry, _ := newTestServer(t, &stubService{products: map[string]catalog.Product{}})

	token, err := AdminToken(testSecret, time.Minute)
	if err != nil {
		t.Fatalf("AdminToken() error = %v", err)
	}
	auth := map[string]string{"Authorization": "Bearer " + token}

	// Unknown limiter name.
	rec := doRequest(t, server.Handler(), http.MethodPut,
		"/admin/rate-limiters/ghost/capacity", `{"capacity":10}`, auth)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown limiter status = %d, want 404", rec.Code)
	}

	if _, err := registry.RateLimiter("productService", resilience.RateLimiterConfig{CapacityPerPeriod: 5}); err != nil {
		t.Fatal(err)
	}

	// Invalid capacity.
	rec = doRequest(t, server.Handler(), http.MethodPut,
		"/admin/rate-limiters/productService/capacity", `{"capacity":-1}`, auth)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid capacity status = %d, want 400", rec.Code)
	}

	// Live update.
	rec = doRequest(t, server.Handler(), http.MethodPut,
		"/admin/rate-limiters/productService/capacity", `{"capacity":50}`, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200", rec.Code)
	}
	if got := registry.LimiterSnapshots()["productService"].Capacity; got != 50 {
		t.Errorf("capacity after update = %d, want 50", got)
	}
}

package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"seolens/internal/api"
	"seolens/internal/auth"
	"seolens/internal/observability/metrics"
	"seolens/internal/relay"
	"seolens/internal/storage"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *api.Handler) {
	t.Helper()
	store, err := storage.NewJSONRepository(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewJSONRepository: %v", err)
	}
	tokens, err := auth.NewService("server-test-secret")
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	relayClient, err := relay.NewClient("http://processor.invalid")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := api.NewHandler(store, tokens, relayClient, logger)
	handler.Metrics = metrics.New()
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	if cfg.Metrics == nil {
		cfg.Metrics = handler.Metrics
	}
	srv, err := New(handler, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, handler
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return payload["error"]
}

func TestAuthGateBlocksMissingToken(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/history", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if got := errorBody(t, rr); got != "access denied" {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestAuthGateRejectsBadToken(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if got := errorBody(t, rr); got != "invalid token" {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestAuthGateRejectsExpiredToken(t *testing.T) {
	issuedAt := time.Now().Add(-2 * time.Hour)
	expiredTokens, err := auth.NewService("server-test-secret", auth.WithClock(func() time.Time { return issuedAt }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	srv, handler := newTestServer(t, Config{})

	user, err := handler.Store.CreateUser(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "alice", "sup3rsecret")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	token, err := expiredTokens.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for expired token, got %d", rr.Code)
	}
}

func TestAuthGateAdmitsValidToken(t *testing.T) {
	srv, handler := newTestServer(t, Config{})

	user, err := handler.Store.CreateUser(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "alice", "sup3rsecret")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	token, err := handler.Tokens.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestPublicRoutesBypassAuthGate(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	for _, path := range []string{"/healthz", "/metrics"} {
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/signup", strings.NewReader(`{"username":"alice","password":"pw"}`)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup without token: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestLoginThrottlePerClientIP(t *testing.T) {
	srv, _ := newTestServer(t, Config{
		RateLimit: RateLimitConfig{LoginLimit: 2, LoginWindow: time.Minute},
	})

	body := `{"username":"alice","password":"wrong"}`
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body))
		req.RemoteAddr = "198.51.100.7:4411"
		last = httptest.NewRecorder()
		srv.Handler().ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after exhausting login budget, got %d", last.Code)
	}

	// A different client IP still gets through.
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.9:4411"
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code == http.StatusTooManyRequests {
		t.Fatalf("unrelated client should not be throttled, got %d", rr.Code)
	}
}

func TestGlobalRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Config{
		RateLimit: RateLimitConfig{GlobalRPS: 0.001, GlobalBurst: 1},
	})

	first := httptest.NewRecorder()
	srv.Handler().ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	srv.Handler().ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once bucket is drained, got %d", second.Code)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	srv, _ := newTestServer(t, Config{
		CORS: CORSConfig{AllowedOrigins: []string{"https://app.seolens.dev"}},
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	req.Header.Set("Origin", "https://app.seolens.dev")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.seolens.dev" {
		t.Fatalf("unexpected allow-origin %q", got)
	}

	blocked := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	blocked.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, blocked)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown origin, got %d", rr.Code)
	}
}

func TestResponsesCarryRequestID(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request ID on the response")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-supplied-1")
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "req-supplied-1" {
		t.Fatalf("expected supplied request ID to be echoed, got %q", got)
	}
}

package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRecorderWritesPrometheusText(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("post", "/api/upload", 200, 150*time.Millisecond)
	recorder.ObserveAuthEvent("login")
	recorder.RelayStarted("process")
	recorder.RelayCompleted("process")
	recorder.ObserveResultPersisted("process")

	var sb strings.Builder
	recorder.Write(&sb)
	output := sb.String()

	expected := []string{
		`seolens_http_requests_total{method="POST",path="/api/upload",status="200"} 1`,
		`seolens_auth_events_total{event="login"} 1`,
		`seolens_relay_submissions_total{action="process",status="start"} 1`,
		`seolens_relay_submissions_total{action="process",status="complete"} 1`,
		`seolens_relay_inflight 0`,
		`seolens_results_persisted_total{action="process"} 1`,
	}
	for _, line := range expected {
		if !strings.Contains(output, line) {
			t.Fatalf("expected output to contain %q\n%s", line, output)
		}
	}
}

func TestInflightGaugeNeverGoesNegative(t *testing.T) {
	recorder := New()
	recorder.RelayFailed("analyze")
	if got := recorder.InflightRelays(); got != 0 {
		t.Fatalf("expected gauge 0, got %d", got)
	}
	recorder.RelayStarted("analyze")
	recorder.RelayStarted("analyze")
	recorder.RelayFailed("analyze")
	if got := recorder.InflightRelays(); got != 1 {
		t.Fatalf("expected gauge 1, got %d", got)
	}
}

func TestHandlerSetsContentType(t *testing.T) {
	recorder := New()
	rr := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if got := rr.Header().Get("Content-Type"); got != "text/plain; version=0.0.4" {
		t.Fatalf("unexpected content type %q", got)
	}
}

func TestNormalizePathMasksIdentifiers(t *testing.T) {
	cases := map[string]string{
		"/":               "/",
		"/api/upload":     "/api/upload",
		"/api/history":    "/api/history",
		"/api/users/4821": "/api/users/:id",
	}
	for input, want := range cases {
		if got := normalizePath(input); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", input, got, want)
		}
	}
}

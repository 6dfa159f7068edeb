package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestLedgerCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Submission("created")
	m.Review(true, 50)
	m.Review(false, 0)
	m.Purchase("ok", 30)
	m.Purchase("insufficient_points", 0)
	m.ProofCleanupFailed()

	out := scrape(t, reg)
	for _, want := range []string{
		`homequest_submissions_total{result="created"} 1`,
		`homequest_reviews_total{outcome="approved"} 1`,
		`homequest_reviews_total{outcome="rejected"} 1`,
		`homequest_points_credited_total 50`,
		`homequest_points_debited_total 30`,
		`homequest_purchases_total{result="insufficient_points"} 1`,
		`homequest_proof_cleanup_failures_total 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestRequestStarted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	done := m.RequestStarted()
	done("GET", "GET /api/me", 200)

	out := scrape(t, reg)
	if !strings.Contains(out, `homequest_http_requests_total{method="GET",route="GET /api/me",status="200"} 1`) {
		t.Errorf("request counter missing:\n%s", out)
	}
	if !strings.Contains(out, `homequest_http_in_flight_requests 0`) {
		t.Error("expected in-flight gauge back at 0")
	}
}

func TestWatchClients(t *testing.T) {
	reg := prometheus.NewRegistry()
	WatchClients(reg, func() int { return 4 })

	if out := scrape(t, reg); !strings.Contains(out, "homequest_websocket_clients 4") {
		t.Errorf("client gauge missing:\n%s", out)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Submission("created")
	m.Review(true, 10)
	m.Purchase("ok", 10)
	m.ProofCleanupFailed()
	m.RequestStarted()("GET", "/", 200)
}

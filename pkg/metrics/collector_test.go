package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilCollectorsAreNoops(t *testing.T) {
	var api *APIMetrics
	var poller *PollerMetrics

	api.Observe("GET", "/x", 200, time.Millisecond)
	poller.RecordTick("batch", 3)
	poller.RecordFailure("batch")
	poller.SetPending("batch", 1)
}

func TestPollerMetrics(t *testing.T) {
	r := NewRegistry()
	r.Poller.RecordTick("batch", 2)
	r.Poller.RecordTick("batch", 1)
	r.Poller.RecordFailure("batch")
	r.Poller.SetPending("batch", 4)

	if got := testutil.ToFloat64(r.Poller.refetches.WithLabelValues("batch")); got != 3 {
		t.Errorf("refetches = %v, want 3", got)
	}
	if got := testutil.ToFloat64(r.Poller.pending.WithLabelValues("batch")); got != 4 {
		t.Errorf("pending = %v, want 4", got)
	}
}

func TestRouterServesMetrics(t *testing.T) {
	r := NewRegistry()
	r.API.Observe("GET", "/users/me", 200, 10*time.Millisecond)

	rr := httptest.NewRecorder()
	NewRouter(r).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `dsactl_api_requests_total{code="200",method="GET"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", rr.Body.String())
	}
}

func TestServe(t *testing.T) {
	s, err := Serve("127.0.0.1:0", NewRegistry())
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	defer s.Shutdown(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != "ok" {
		t.Errorf("body = %q", body)
	}
}

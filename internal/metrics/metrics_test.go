package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistry_Independent(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()

	a.RecordsEmitted.Inc()
	a.DispatchErrors.WithLabelValues("network").Inc()

	if got := testutil.ToFloat64(a.RecordsEmitted); got != 1 {
		t.Fatalf("expected 1 got %v", got)
	}
	if got := testutil.ToFloat64(b.RecordsEmitted); got != 0 {
		t.Fatalf("registries must not share counters, got %v", got)
	}
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.Requests.Inc()
	r.DispatchErrors.WithLabelValues("log").Inc()

	rr := httptest.NewRecorder()
	r.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)

	for _, want := range []string{"gateway_requests_total 1", `dump_dispatch_errors_total{sink="log"} 1`} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}

package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/permaweb/ao-cu/metrics"
)

func TestExposition(t *testing.T) {
	r := metrics.New()
	r.EvaluationCounter.WithLabelValues("cranked", "user", "false").Inc()
	r.GasUsed.Add(42)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "cu_evaluation_total") {
		t.Fatalf("expected cu_evaluation_total in exposition, got: %s", body)
	}
	if !strings.Contains(body, "cu_gas_used_total 42") {
		t.Fatalf("expected gas counter value, got: %s", body)
	}
}

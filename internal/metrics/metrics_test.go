package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordsProviderAndPairs(t *testing.T) {
	m := New()

	m.ObserveProviderRequest("success", 120*time.Millisecond)
	m.ObserveProviderRequest("error", time.Second)
	m.ObserveProviderRetry()
	m.ObservePair("classified", true)
	m.ObservePair("skipped", false)

	if got := testutil.ToFloat64(m.ProviderRequests.WithLabelValues("success")); got != 1 {
		t.Errorf("expected 1 successful request, got %v", got)
	}
	if got := testutil.ToFloat64(m.ProviderRetries); got != 1 {
		t.Errorf("expected 1 retry, got %v", got)
	}
	if got := testutil.ToFloat64(m.Contradictions); got != 1 {
		t.Errorf("expected 1 contradiction, got %v", got)
	}
}

func TestMetrics_RunGauge(t *testing.T) {
	m := New()
	m.RunStarted()
	m.RunStarted()
	m.RunFinished("async", "completed", true)

	if got := testutil.ToFloat64(m.ActiveRuns); got != 1 {
		t.Errorf("expected 1 active run, got %v", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveProviderRequest("success", time.Second)
	m.ObservePair("skipped", false)
	m.RunStarted()
	m.RunFinished("sync", "completed", false)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObservePair("classified", false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "req_analyzer_pairs_processed_total") {
		t.Error("expected pair counter in exposition output")
	}
}

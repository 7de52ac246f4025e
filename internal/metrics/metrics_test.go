package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordEvent("items", "INSERT", OutcomeApplied, time.Millisecond)
	m.RecordRemoteCall("insert_dish", nil, time.Millisecond)
	m.SetMirrorSize(1, 2)
	m.RecordRequest("/healthz", 200)
	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.RecordEvent("items", "INSERT", OutcomeApplied, time.Millisecond)
	m.RecordEvent("items", "INSERT", OutcomeApplied, time.Millisecond)
	m.RecordEvent("dishes", "DELETE", OutcomeOrphan, time.Millisecond)
	m.RecordRemoteCall("insert_dish", errors.New("boom"), time.Millisecond)

	if got := testutil.ToFloat64(m.events.WithLabelValues("items", "INSERT", OutcomeApplied)); got != 2 {
		t.Errorf("applied inserts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.remoteCalls.WithLabelValues("insert_dish", "error")); got != 1 {
		t.Errorf("failed calls = %v, want 1", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.SetMirrorSize(3, 7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "prep_mirror_items 7") {
		t.Errorf("exposition missing mirror gauge:\n%s", body)
	}
}

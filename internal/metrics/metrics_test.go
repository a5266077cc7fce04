package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()
	m.RecordResponse("exact_match", "direct")
	m.RecordResponse("exact_match", "direct")
	m.RecordAdapter("best_match", "declined")
	m.RecordLearn("error")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ResponsesTotal.WithLabelValues("exact_match", "direct")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdapterResults.WithLabelValues("best_match", "declined")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LearnTotal.WithLabelValues("error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordResponse("a", "direct")
		m.RecordAdapter("a", "candidate")
		m.RecordLearn("success")
		m.ObserveRequest("GET", "/health", "200", time.Millisecond)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRequest("POST", "/respond", "200", 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "learnbot_http_request_duration_seconds"))
}

package monitoring

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics()

	m.RecordSubmission(OutcomeCreated)
	m.RecordSubmission(OutcomeCreated)
	m.RecordSubmission(OutcomeDegraded)
	m.RecordNotification("smtp", true)
	m.RecordNotification("smtp", false)
	m.RecordReportBuild(nil, 20*time.Millisecond)
	m.RecordReportBuild(errors.New("boom"), time.Millisecond)
	m.RecordRateLimitBlock("memory")
	m.RecordPanic()
	m.RecordHTTPRequest("POST", "/api/contact", "201", 30*time.Millisecond)
	m.RecordHTTPRequest("GET", "", "404", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues(OutcomeCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues(OutcomeDegraded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("smtp", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("smtp", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportBuildsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportBuildsTotal.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitBlocks.WithLabelValues("memory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PanicsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordSubmission(OutcomeInvalid)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SubmissionsTotal.WithLabelValues(OutcomeInvalid)))
}

func TestMetrics_HTTPHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordSubmission(OutcomeFailed)

	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `portfolio_contact_submissions_total{outcome="failed"} 1`)
	assert.Contains(t, string(body), "portfolio_system_uptime_seconds")
	assert.Contains(t, string(body), "go_goroutines")
}
